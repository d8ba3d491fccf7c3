package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/watcher"
)

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "node_types.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("node_types: []"), 0o644))

	w, err := watcher.New(watcher.Config{
		Path:        seedPath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err)

	// Rapid writes should coalesce into a single notification.
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(seedPath, []byte(fmt.Sprintf("# rev %d", i)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-onChange:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected notification but got timeout")
	}

	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFilesInDirectory(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "node_types.yaml")
	otherPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(seedPath, []byte("node_types: []"), 0o644))
	// Pre-create so later writes are Write events, not Create.
	require.NoError(t, os.WriteFile(otherPath, []byte("initial"), 0o644))

	w, err := watcher.New(watcher.Config{
		Path:        seedPath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(otherPath, []byte("changed"), 0o644))

	select {
	case <-onChange:
		t.Fatal("should not notify for unrelated files")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_SeesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "node_types.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("node_types: []"), 0o644))

	w, err := watcher.New(watcher.Config{
		Path:        seedPath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err)

	// Editor-style save: write a temp file, rename it over the target.
	tmpPath := filepath.Join(dir, ".node_types.yaml.tmp")
	require.NoError(t, os.WriteFile(tmpPath, []byte("# replaced"), 0o644))
	require.NoError(t, os.Rename(tmpPath, seedPath))

	select {
	case <-onChange:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected notification for atomic replace")
	}
}

func TestWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "node_types.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("node_types: []"), 0o644))

	w, err := watcher.New(watcher.Config{
		Path:        seedPath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = w.Start()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Stop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Stop() timed out")
	}
}

func TestWatcher_StopClosesNotificationChannel(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "node_types.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("node_types: []"), 0o644))

	w, err := watcher.New(watcher.Config{
		Path:        seedPath,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	onChange, err := w.Start()
	require.NoError(t, err)
	require.NoError(t, w.Stop())

	// Consumers ranging over the channel must terminate with the watcher.
	select {
	case _, ok := <-onChange:
		assert.False(t, ok, "channel should be closed after Stop")
	case <-time.After(1 * time.Second):
		t.Fatal("channel was not closed after Stop")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("/srv/registry/node_types.yaml")

	assert.Equal(t, "/srv/registry/node_types.yaml", cfg.Path)
	assert.Equal(t, 1*time.Second, cfg.DebounceDur)
}
