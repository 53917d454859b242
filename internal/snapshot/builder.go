package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/kepler-soc/kic/internal/cache"
)

// BuildResult summarizes a Build run.
type BuildResult struct {
	Built    []int         `json:"built"`
	Failed   map[int]error `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Builder writes snapshots for many sky groups with bounded concurrency.
type Builder struct {
	store       *Store
	load        cache.LoadFunc
	concurrency int64
}

// NewBuilder creates a builder that reads sky groups through load.
// concurrency below 1 is treated as 1.
func NewBuilder(store *Store, load cache.LoadFunc, concurrency int) *Builder {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Builder{store: store, load: load, concurrency: int64(concurrency)}
}

// Build loads and snapshots every sky group in skyGroupIDs. Failures of
// individual sky groups are collected in the result and joined into the
// returned error; the remaining sky groups are still built.
func (b *Builder) Build(ctx context.Context, skyGroupIDs []int) (*BuildResult, error) {
	start := time.Now()
	sem := semaphore.NewWeighted(b.concurrency)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = &BuildResult{Failed: make(map[int]error)}
	)
	record := func(id int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed[id] = err
			return
		}
		result.Built = append(result.Built, id)
	}

	for _, id := range skyGroupIDs {
		if err := sem.Acquire(ctx, 1); err != nil {
			record(id, err)
			continue
		}
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer sem.Release(1)
			record(id, b.buildOne(ctx, id))
		}(id)
	}
	wg.Wait()

	sort.Ints(result.Built)
	result.Duration = time.Since(start)
	log.Info().
		Int("built", len(result.Built)).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("snapshot: build complete")

	if len(result.Failed) == 0 {
		return result, nil
	}
	errs := make([]error, 0, len(result.Failed))
	for id, err := range result.Failed {
		errs = append(errs, fmt.Errorf("sky group %d: %w", id, err))
	}
	return result, errors.Join(errs...)
}

func (b *Builder) buildOne(ctx context.Context, skyGroupID int) error {
	kics, err := b.load(ctx, skyGroupID)
	if err != nil {
		return err
	}
	return b.store.Save(ctx, skyGroupID, kics)
}
