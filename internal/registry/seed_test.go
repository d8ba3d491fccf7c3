package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Helper Functions ===

// writeSeedFile writes content to a manifest file in a temp dir and
// returns its path.
func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node_types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validSeed = `node_types:
  - node_type_id: atomic.echo
    version: 0.1.0
    kind: atomic
    display_name: Echo
    description: Returns its input unchanged.
    input_schema:
      type: object
      properties:
        message:
          type: string
  - node_type_id: composite.pipeline
    version: 1.0.0
    kind: composite
    metadata:
      team: platform
`

// === Unit Tests: LoadSeedFile ===

func TestLoadSeedFile_ParsesManifest(t *testing.T) {
	path := writeSeedFile(t, validSeed)

	types, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, types, 2)

	require.Equal(t, "atomic.echo", types[0].NodeTypeID)
	require.Equal(t, "0.1.0", types[0].Version)
	require.Equal(t, KindAtomic, types[0].Kind)
	require.Equal(t, "Echo", types[0].DisplayName)
	require.Equal(t, "object", types[0].InputSchema["type"])

	require.Equal(t, "composite.pipeline", types[1].NodeTypeID)
	require.Equal(t, KindComposite, types[1].Kind)
	require.Equal(t, "platform", types[1].Metadata["team"])
}

func TestLoadSeedFile_MissingFile(t *testing.T) {
	_, err := LoadSeedFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read seed manifest")
}

func TestLoadSeedFile_MalformedYAML(t *testing.T) {
	path := writeSeedFile(t, "node_types: [\n")

	_, err := LoadSeedFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse seed manifest")
}

func TestLoadSeedFile_EmptyManifest(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no key", content: "other: value\n"},
		{name: "empty list", content: "node_types: []\n"},
		{name: "empty file", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSeedFile(t, tt.content)
			_, err := LoadSeedFile(path)
			require.Error(t, err)
			require.Contains(t, err.Error(), "no node types found")
		})
	}
}

func TestLoadSeedFile_InvalidEntryFailsWholeLoad(t *testing.T) {
	path := writeSeedFile(t, `node_types:
  - node_type_id: atomic.echo
    version: 0.1.0
    kind: atomic
  - node_type_id: atomic.broken
    kind: atomic
`)

	_, err := LoadSeedFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "seed entry 1")
	require.Contains(t, err.Error(), "version is required")
}

// === Unit Tests: ApplySeed ===

func TestApplySeed_PublishesAllEntries(t *testing.T) {
	reg := newTestRegistry()
	types, err := LoadSeedFile(writeSeedFile(t, validSeed))
	require.NoError(t, err)

	published := ApplySeed(context.Background(), reg, types)
	require.Equal(t, 2, published)
	require.Equal(t, 2, reg.Count())

	got, err := reg.GetNodeType(context.Background(), "atomic.echo", "0.1.0")
	require.NoError(t, err)
	require.Equal(t, "Echo", got.DisplayName)
}

func TestApplySeed_ReapplyIsIdempotent(t *testing.T) {
	reg := newTestRegistry()
	types, err := LoadSeedFile(writeSeedFile(t, validSeed))
	require.NoError(t, err)

	require.Equal(t, 2, ApplySeed(context.Background(), reg, types))
	require.Equal(t, 0, ApplySeed(context.Background(), reg, types))
	require.Equal(t, 2, reg.Count())
}

func TestApplySeed_PublishesOnlyAdditions(t *testing.T) {
	reg := newTestRegistry()
	types, err := LoadSeedFile(writeSeedFile(t, validSeed))
	require.NoError(t, err)
	require.Equal(t, 2, ApplySeed(context.Background(), reg, types))

	// A grown manifest publishes only the new entry.
	grown := append(types, newTestNodeType("atomic.map", "0.1.0", KindAtomic))
	require.Equal(t, 1, ApplySeed(context.Background(), reg, grown))
	require.Equal(t, 3, reg.Count())
}

func TestApplySeed_SkipsEntriesThatFailPublish(t *testing.T) {
	reg := newTestRegistry()

	// The bad entry is skipped; the rest still land.
	types := []NodeType{
		{NodeTypeID: "", Version: "0.1.0", Kind: KindAtomic},
		newTestNodeType("atomic.echo", "0.1.0", KindAtomic),
	}
	require.Equal(t, 1, ApplySeed(context.Background(), reg, types))
	require.Equal(t, 1, reg.Count())
}
