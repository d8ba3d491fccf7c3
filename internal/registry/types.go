// Package registry implements the versioned node type registry: an
// in-memory store of published NodeType records addressed by
// (node_type_id, version), with latest-version resolution, filtered
// listing, and YAML seeding.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// NodeKind classifies how a node type executes.
type NodeKind string

const (
	// KindAtomic marks node types backed by a single executable unit.
	KindAtomic NodeKind = "atomic"
	// KindComposite marks node types assembled from other node types.
	KindComposite NodeKind = "composite"
)

// NodeType is one published node type record. The registry interprets
// NodeTypeID, Version, and Kind; the remaining fields are payload stored
// and returned verbatim.
type NodeType struct {
	NodeTypeID   string         `json:"node_type_id" yaml:"node_type_id"`
	Version      string         `json:"version" yaml:"version"`
	Kind         NodeKind       `json:"kind" yaml:"kind"`
	DisplayName  string         `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema  map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the fields the registry relies on. Kind is not checked
// against a closed set; unknown kinds are stored and matched by equality.
func (nt NodeType) Validate() error {
	if strings.TrimSpace(nt.NodeTypeID) == "" {
		return fmt.Errorf("node_type_id is required")
	}
	if strings.TrimSpace(nt.Version) == "" {
		return fmt.Errorf("version is required")
	}
	return nil
}

// Ref returns the "id@version" form used in log lines and error messages.
func (nt NodeType) Ref() string {
	return nt.NodeTypeID + "@" + nt.Version
}

// Health is the liveness snapshot returned by the health endpoint.
type Health struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// StatusOK is the only status a live registry reports.
const StatusOK = "ok"

// VersionInfo identifies the running service build and the HTTP API
// versions it serves.
type VersionInfo struct {
	ServiceName          string   `json:"service_name"`
	ServiceVersion       string   `json:"service_version"`
	SupportedAPIVersions []string `json:"supported_api_versions"`
}

// SupportedAPIVersions lists the API versions this build serves. A fresh
// slice is returned so callers cannot mutate the canonical list.
func SupportedAPIVersions() []string {
	return []string{"v1"}
}

// ListQuery filters a node type listing. The zero value matches everything.
type ListQuery struct {
	// Query is matched case-insensitively as a substring of node_type_id.
	// Surrounding whitespace is ignored; blank matches all ids.
	Query string
	// Kind keeps only node types of exactly this kind when non-empty.
	Kind NodeKind
}
