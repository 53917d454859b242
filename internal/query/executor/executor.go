// Package executor runs compiled catalog queries and batched id lookups
// against the storage collaborator.
package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kepler-soc/kic/internal/observability"
	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/pkg/types"
)

// KicStore is the part of the storage collaborator the executor needs.
type KicStore interface {
	// QueryKics runs a compiled query and returns the matching entries.
	QueryKics(ctx context.Context, q *planner.CompiledQuery) ([]*types.Kic, error)

	// RetrieveKicsByIDs returns the entries for one chunk of ids. The
	// chunk never holds more than the configured chunk size.
	RetrieveKicsByIDs(ctx context.Context, ids []int) ([]*types.Kic, error)
}

// Config holds configuration for the executor.
type Config struct {
	// MaxExpressions is the chunk size used for id lookups (default: 1000).
	MaxExpressions int

	// BatchConcurrency is the number of chunks looked up at once.
	// 1 dispatches chunks sequentially.
	BatchConcurrency int
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		MaxExpressions:   MaxExpressions,
		BatchConcurrency: 1,
	}
}

// Executor compiles and runs constraint queries and resolves id lists.
type Executor struct {
	planner *planner.Planner
	store   KicStore
	config  Config
	metrics *observability.Metrics
}

// NewExecutor creates an executor. metrics may be nil.
func NewExecutor(p *planner.Planner, store KicStore, config Config, metrics *observability.Metrics) *Executor {
	if config.MaxExpressions < 1 {
		config.MaxExpressions = MaxExpressions
	}
	if config.BatchConcurrency < 1 {
		config.BatchConcurrency = 1
	}
	return &Executor{
		planner: p,
		store:   store,
		config:  config,
		metrics: metrics,
	}
}

// Execute compiles req and runs it. Validation errors are returned before
// storage is touched; storage errors are passed through unchanged.
func (e *Executor) Execute(ctx context.Context, req planner.Request) ([]*types.Kic, error) {
	q, err := e.planner.Compile(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	kics, err := e.store.QueryKics(ctx, q)
	elapsed := time.Since(start)
	e.metrics.ObserveQuery("compiled", elapsed)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("sql", q.SQL).
		Int("joins", len(q.Joins)).
		Int("rows", len(kics)).
		Dur("duration", elapsed).
		Msg("executor: query complete")
	return kics, nil
}

// FetchKicMap resolves ids to entries, chunked to the configured size.
// Ids with no entry are absent from the map.
func (e *Executor) FetchKicMap(ctx context.Context, ids []int) (map[int]*types.Kic, error) {
	start := time.Now()
	loader := func(ctx context.Context, chunk []int) ([]*types.Kic, error) {
		e.metrics.ChunkIssued()
		return e.store.RetrieveKicsByIDs(ctx, chunk)
	}

	var (
		m   map[int]*types.Kic
		err error
	)
	if e.config.BatchConcurrency > 1 {
		m, err = FetchBatchedConcurrent(ctx, ids, e.config.MaxExpressions, e.config.BatchConcurrency, kicID, loader)
	} else {
		m, err = FetchBatched(ctx, ids, e.config.MaxExpressions, kicID, loader)
	}
	e.metrics.ObserveQuery("batch", time.Since(start))
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("ids", len(ids)).
		Int("found", len(m)).
		Dur("duration", time.Since(start)).
		Msg("executor: batch lookup complete")
	return m, nil
}

// FetchKics resolves ids positionally: the result has one slot per id and
// a nil slot where no entry exists.
func (e *Executor) FetchKics(ctx context.Context, ids []int) ([]*types.Kic, error) {
	m, err := e.FetchKicMap(ctx, ids)
	if err != nil {
		return nil, err
	}
	return Reproject(ids, m), nil
}

// MaxExpressions returns the chunk size used for id lookups.
func (e *Executor) MaxExpressions() int {
	return e.config.MaxExpressions
}

func kicID(k *types.Kic) int { return k.KeplerID }
