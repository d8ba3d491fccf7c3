// Package flags provides feature flag support for controlled feature rollout.
// Flags are read-only after initialization and provide safe defaults for unknown flags.
package flags

import (
	"maps"

	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagLatestCache controls whether latest-version resolution is served
	// from the read-through cache. When disabled, resolution is recomputed
	// on every read.
	FlagLatestCache = "latest-cache"
)

// Registry holds feature flag state loaded from configuration.
// Flags are read-only after initialization.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map.
// If flags is nil, an empty registry is created (all flags disabled).
// The map is copied, so later caller mutations do not change flag answers.
func New(flags map[string]bool) *Registry {
	copied := make(map[string]bool, len(flags))
	maps.Copy(copied, flags)
	r := &Registry{flags: copied}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(copied), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled.
// Returns false for unknown flags (safe default).
// Returns false when called on nil registry (nil-safe).
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name, "result", false)
		return false
	}
	return value
}

// All returns a copy of all flags (for debugging/logging).
// Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}
