package registry

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/cachemanager"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/log"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/pubsub"
)

const (
	// DefaultServiceName is reported by VersionInfo when no name is
	// configured.
	DefaultServiceName = "arp-template-node-registry"
	// DefaultServiceVersion is reported when the build injects no version.
	DefaultServiceVersion = "dev"

	defaultLatestTTL = 30 * time.Second
)

// NodeRegistry is the operation surface served by the v1 HTTP API.
// Implementations must be safe for concurrent use.
type NodeRegistry interface {
	// Health reports liveness with a current UTC timestamp. It never fails.
	Health() Health

	// VersionInfo identifies the service build and its supported API
	// versions. It never fails.
	VersionInfo() VersionInfo

	// PublishNodeType registers a new (node_type_id, version) record and
	// returns it unchanged. Publishing a pair that already exists fails
	// with CodeAlreadyExists and leaves the registry untouched.
	PublishNodeType(ctx context.Context, nt NodeType) (NodeType, error)

	// GetNodeType returns the record for id at version, or at the latest
	// version when version is blank. Unknown ids and missing versions fail
	// with CodeNotFound.
	GetNodeType(ctx context.Context, id, version string) (NodeType, error)

	// ListNodeTypes returns every record matching q, sorted ascending by
	// (node_type_id, version). It never fails; no matches is an empty
	// slice, not nil.
	ListNodeTypes(ctx context.Context, q ListQuery) []NodeType
}

// Config configures an InMemoryRegistry. The zero value is usable and
// serves defaults with no events and no caching.
type Config struct {
	// ServiceName overrides DefaultServiceName in VersionInfo.
	ServiceName string
	// ServiceVersion is the build version injected at link time.
	ServiceVersion string
	// Events, when non-nil, receives a PublishedEvent after every
	// successful publish.
	Events pubsub.Publisher[NodeType]
	// LatestCache, when non-nil, caches latest-version resolution per id.
	LatestCache cachemanager.CacheManager[string, string]
	// LatestTTL bounds how long a cached resolution may outlive a publish
	// that changed the answer. Zero means 30 seconds.
	LatestTTL time.Duration
	// SkipLatestCache forces resolution on every lookup even when
	// LatestCache is set.
	SkipLatestCache bool
}

// InMemoryRegistry is the canonical NodeRegistry: two maps behind one
// RWMutex. The store holds records keyed by (id, version); versionIndex
// remembers publish order per id for latest resolution.
type InMemoryRegistry struct {
	serviceName    string
	serviceVersion string

	mu           sync.RWMutex
	store        map[typeKey]NodeType
	versionIndex map[string][]string

	events      pubsub.Publisher[NodeType]
	latest      *cachemanager.ReadThroughCache[string, string, string]
	latestCache cachemanager.CacheManager[string, string]
	latestTTL   time.Duration
}

type typeKey struct {
	id      string
	version string
}

var _ NodeRegistry = (*InMemoryRegistry)(nil)

// NewInMemoryRegistry creates an empty registry from cfg.
func NewInMemoryRegistry(cfg Config) *InMemoryRegistry {
	r := &InMemoryRegistry{
		serviceName:    cfg.ServiceName,
		serviceVersion: cfg.ServiceVersion,
		store:          make(map[typeKey]NodeType),
		versionIndex:   make(map[string][]string),
		events:         cfg.Events,
		latestCache:    cfg.LatestCache,
		latestTTL:      cfg.LatestTTL,
	}
	if r.serviceName == "" {
		r.serviceName = DefaultServiceName
	}
	if r.serviceVersion == "" {
		r.serviceVersion = DefaultServiceVersion
	}
	if r.latestTTL <= 0 {
		r.latestTTL = defaultLatestTTL
	}

	skip := cfg.SkipLatestCache || cfg.LatestCache == nil
	r.latest = cachemanager.NewReadThroughCache(cfg.LatestCache, r.resolveLatest, skip)
	return r
}

// Health implements NodeRegistry.
func (r *InMemoryRegistry) Health() Health {
	return Health{Status: StatusOK, Time: time.Now().UTC()}
}

// VersionInfo implements NodeRegistry.
func (r *InMemoryRegistry) VersionInfo() VersionInfo {
	return VersionInfo{
		ServiceName:          r.serviceName,
		ServiceVersion:       r.serviceVersion,
		SupportedAPIVersions: SupportedAPIVersions(),
	}
}

// PublishNodeType implements NodeRegistry.
func (r *InMemoryRegistry) PublishNodeType(ctx context.Context, nt NodeType) (NodeType, error) {
	if err := nt.Validate(); err != nil {
		return NodeType{}, err
	}

	r.mu.Lock()
	key := typeKey{id: nt.NodeTypeID, version: nt.Version}
	if _, exists := r.store[key]; exists {
		r.mu.Unlock()
		return NodeType{}, newAlreadyExistsError(nt.NodeTypeID, nt.Version)
	}
	r.store[key] = nt
	r.versionIndex[nt.NodeTypeID] = append(r.versionIndex[nt.NodeTypeID], nt.Version)
	r.mu.Unlock()

	// The cached latest for this id may now point at an older version.
	if r.latestCache != nil {
		if err := r.latestCache.Delete(ctx, nt.NodeTypeID); err != nil {
			log.ErrorErr(log.CatCache, "failed to invalidate latest-version cache", err, "id", nt.NodeTypeID)
		}
	}

	log.Debug(log.CatRegistry, "node type published", "id", nt.NodeTypeID, "version", nt.Version, "kind", string(nt.Kind))

	if r.events != nil {
		r.events.Publish(pubsub.PublishedEvent, nt)
	}
	return nt, nil
}

// GetNodeType implements NodeRegistry.
func (r *InMemoryRegistry) GetNodeType(ctx context.Context, id, version string) (NodeType, error) {
	if version == "" {
		resolved, err := r.latest.Get(ctx, id, id, r.latestTTL)
		if err != nil {
			return NodeType{}, err
		}
		version = resolved
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	nt, ok := r.store[typeKey{id: id, version: version}]
	if !ok {
		if len(r.versionIndex[id]) == 0 {
			return NodeType{}, newNotFoundError(id)
		}
		return NodeType{}, newVersionNotFoundError(id, version)
	}
	return nt, nil
}

// ListNodeTypes implements NodeRegistry.
func (r *InMemoryRegistry) ListNodeTypes(_ context.Context, q ListQuery) []NodeType {
	needle := strings.ToLower(strings.TrimSpace(q.Query))

	r.mu.RLock()
	results := make([]NodeType, 0)
	for key, nt := range r.store {
		if needle != "" && !strings.Contains(strings.ToLower(key.id), needle) {
			continue
		}
		if q.Kind != "" && nt.Kind != q.Kind {
			continue
		}
		results = append(results, nt)
	}
	r.mu.RUnlock()

	slices.SortFunc(results, func(a, b NodeType) int {
		if c := strings.Compare(a.NodeTypeID, b.NodeTypeID); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
	return results
}

// Count returns the number of stored records. Used by seeding and logs.
func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store)
}

// resolveLatest computes the latest version for id from the live index.
// It is the fill function behind the read-through cache.
func (r *InMemoryRegistry) resolveLatest(_ context.Context, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.versionIndex[id]
	if len(versions) == 0 {
		return "", newNotFoundError(id)
	}
	return latestVersion(versions), nil
}
