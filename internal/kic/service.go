// Package kic is the catalog service: it composes the SQL store, the query
// compiler, the batch executor, the partition cache and the proximity
// search behind one API.
package kic

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kepler-soc/kic/internal/cache"
	"github.com/kepler-soc/kic/internal/catalog"
	"github.com/kepler-soc/kic/internal/observability"
	"github.com/kepler-soc/kic/internal/query/executor"
	"github.com/kepler-soc/kic/internal/query/parser"
	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/internal/snapshot"
	"github.com/kepler-soc/kic/internal/spatial"
	"github.com/kepler-soc/kic/pkg/types"
)

// Options configures a Service.
type Options struct {
	Executor executor.Config

	// CacheEnabled selects the partition cache; when false every sky group
	// listing is read from storage.
	CacheEnabled bool

	// CacheLoadTimeout bounds one sky group load into the cache.
	CacheLoadTimeout time.Duration

	// Snapshots, when set, backs sky group loads with snapshots.
	Snapshots *snapshot.Store

	// StatsWindow is how long constraint usage is remembered.
	StatsWindow time.Duration

	Metrics *observability.Metrics
}

// DefaultOptions returns the default service options.
func DefaultOptions() Options {
	return Options{
		Executor:         executor.DefaultConfig(),
		CacheEnabled:     true,
		CacheLoadTimeout: 30 * time.Second,
		StatsWindow:      time.Hour,
	}
}

// Service is the catalog API used by the HTTP server and the CLI.
type Service struct {
	store     *catalog.SQLStore
	planner   *planner.Planner
	executor  *executor.Executor
	listings  cache.ListingSource
	snapshots *snapshot.Store
	stats     *observability.QueryStats
	metrics   *observability.Metrics

	typesMu     sync.RWMutex
	typesByName map[string]types.CharacteristicType
}

// NewService wires a service over store.
func NewService(store *catalog.SQLStore, opts Options) *Service {
	if opts.StatsWindow <= 0 {
		opts.StatsWindow = time.Hour
	}
	stats := observability.NewQueryStats(opts.StatsWindow)
	p := planner.NewPlanner(store.Dialect(), stats)

	// Queries and listings only go through the engine's view of storage.
	var engine catalog.Store = store

	s := &Service{
		store:       store,
		planner:     p,
		executor:    executor.NewExecutor(p, engine, opts.Executor, opts.Metrics),
		snapshots:   opts.Snapshots,
		stats:       stats,
		metrics:     opts.Metrics,
		typesByName: make(map[string]types.CharacteristicType),
	}

	var load cache.LoadFunc = engine.RetrieveKicsForSkyGroup
	if opts.Snapshots != nil {
		load = snapshot.ReadThrough(opts.Snapshots, load)
	}
	s.listings = cache.NewListingSource(opts.CacheEnabled, load, opts.Metrics,
		cache.WithLoadTimeout(opts.CacheLoadTimeout))

	log.Info().
		Str("dialect", p.Dialect().Name()).
		Bool("cache", opts.CacheEnabled).
		Bool("snapshots", opts.Snapshots != nil).
		Int("max_expressions", s.executor.MaxExpressions()).
		Msg("kic: service ready")
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *catalog.SQLStore { return s.store }

// Planner returns the query compiler.
func (s *Service) Planner() *planner.Planner { return s.planner }

// Listings returns the sky group listing source.
func (s *Service) Listings() cache.ListingSource { return s.listings }

// QueryStats returns the constraint usage tracker.
func (s *Service) QueryStats() *observability.QueryStats { return s.stats }

// Metrics returns the Prometheus collectors; nil when metrics are off.
func (s *Service) Metrics() *observability.Metrics { return s.metrics }

// Ping checks storage.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// Query compiles and runs a constraint query.
func (s *Service) Query(ctx context.Context, req planner.Request) ([]*types.Kic, error) {
	return s.executor.Execute(ctx, req)
}

// QueryText parses expr, resolving characteristic names against the
// registered types, and runs it with the given filter, sort and limit.
func (s *Service) QueryText(ctx context.Context, expr string, skyGroup *planner.SkyGroupFilter, sort *types.Sort, limit int) ([]*types.Kic, error) {
	constraints, err := s.ParseConstraints(ctx, expr)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, planner.Request{
		Constraints: constraints,
		SkyGroup:    skyGroup,
		Sort:        sort,
		Limit:       limit,
	})
}

// ParseConstraints parses a constraint expression.
func (s *Service) ParseConstraints(ctx context.Context, expr string) ([]types.Constraint, error) {
	return parser.ParseConstraints(expr, s.resolver(ctx))
}

// ResolveColumn maps a name to a fixed field or a registered characteristic
// type. Unknown names resolve to types.UnresolvedColumn.
func (s *Service) ResolveColumn(ctx context.Context, name string) types.ColumnRef {
	if f, ok := types.FieldByName(name); ok {
		return f
	}
	if t, ok := s.resolver(ctx)(name); ok {
		return t
	}
	return types.UnresolvedColumn{Name: name}
}

// resolver looks characteristic names up in the type cache, reloading the
// cache once on a miss.
func (s *Service) resolver(ctx context.Context) parser.Resolver {
	return func(name string) (types.CharacteristicType, bool) {
		t, err := s.RetrieveCharacteristicType(ctx, name)
		return t, err == nil
	}
}

// FindNearby returns the ids around center in skyGroupID, excluding excludeID.
func (s *Service) FindNearby(ctx context.Context, center spatial.Position, excludeID, skyGroupID int, boxWidthArcsec float64) ([]int, error) {
	return spatial.FindNearby(ctx, center, excludeID, skyGroupID, boxWidthArcsec, s.listings)
}

// RetrieveNearbyKeplerIDs returns the ids around the entry keplerID in its
// own sky group.
func (s *Service) RetrieveNearbyKeplerIDs(ctx context.Context, keplerID int, boxWidthArcsec float64) ([]int, error) {
	k, err := s.store.RetrieveKic(ctx, keplerID)
	if err != nil {
		return nil, err
	}
	return s.FindNearby(ctx, spatial.Position{RA: k.RA, Dec: k.Dec}, k.KeplerID, k.SkyGroupID, boxWidthArcsec)
}

// InvalidateSkyGroup drops the cached listing and snapshot of skyGroupID.
func (s *Service) InvalidateSkyGroup(ctx context.Context, skyGroupID int) error {
	s.listings.Invalidate(skyGroupID)
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, skyGroupID); err != nil {
			return err
		}
	}
	log.Info().Int("sky_group_id", skyGroupID).Msg("kic: sky group invalidated")
	return nil
}

// InvalidateAll drops every cached listing and the characteristic type cache.
// Snapshots are left in place.
func (s *Service) InvalidateAll() {
	s.listings.InvalidateAll()
	s.typesMu.Lock()
	s.typesByName = make(map[string]types.CharacteristicType)
	s.typesMu.Unlock()
}

// Stats summarizes constraint usage and cache state.
type Stats struct {
	TopFields          []observability.ColumnStats `json:"top_fields"`
	TopCharacteristics []observability.ColumnStats `json:"top_characteristics"`
	CachedSkyGroups    int                         `json:"cached_sky_groups"`
	CacheLoads         int64                       `json:"cache_loads"`
	CacheEnabled       bool                        `json:"cache_enabled"`
}

// Stats returns the top n fields and characteristic types by usage.
func (s *Service) Stats(n int) Stats {
	st := Stats{
		TopFields:          s.stats.GetTopFields(n),
		TopCharacteristics: s.stats.GetTopCharacteristics(n),
	}
	if pc, ok := s.listings.(*cache.PartitionCache); ok {
		st.CacheEnabled = true
		st.CachedSkyGroups = pc.Len()
		st.CacheLoads = pc.Loads()
	}
	return st
}
