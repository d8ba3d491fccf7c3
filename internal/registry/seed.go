package registry

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/log"
)

// SeedFile is the root structure of a node type seed manifest.
//
// Example:
//
//	node_types:
//	  - node_type_id: atomic.echo
//	    version: 0.1.0
//	    kind: atomic
type SeedFile struct {
	NodeTypes []NodeType `yaml:"node_types"`
}

// LoadSeedFile reads a YAML seed manifest and validates every entry. Any
// invalid entry fails the whole load so a bad manifest cannot be applied
// halfway.
func LoadSeedFile(path string) ([]NodeType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed manifest: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed manifest %s: %w", path, err)
	}
	if len(file.NodeTypes) == 0 {
		return nil, fmt.Errorf("no node types found in %s", path)
	}

	for i, nt := range file.NodeTypes {
		if err := nt.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d in %s: %w", i, path, err)
		}
	}
	return file.NodeTypes, nil
}

// ApplySeed publishes manifest entries into reg and returns how many were
// newly published. Entries already registered are skipped, so re-applying
// a grown manifest is safe and only publishes the additions.
func ApplySeed(ctx context.Context, reg NodeRegistry, types []NodeType) int {
	published := 0
	for _, nt := range types {
		if _, err := reg.PublishNodeType(ctx, nt); err != nil {
			if IsAlreadyExists(err) {
				log.Debug(log.CatSeed, "seed entry already registered", "ref", nt.Ref())
				continue
			}
			log.ErrorErr(log.CatSeed, "seed entry rejected", err, "ref", nt.Ref())
			continue
		}
		published++
	}
	return published
}
