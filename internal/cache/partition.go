// Package cache holds sky group listings in memory so that repeated
// proximity searches in the same sky group hit storage once.
package cache

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/kepler-soc/kic/internal/observability"
	"github.com/kepler-soc/kic/pkg/types"
)

// LoadFunc loads every entry of one sky group from storage.
type LoadFunc func(ctx context.Context, skyGroupID int) ([]*types.Kic, error)

// ListingSource hands out sky group listings.
type ListingSource interface {
	Listing(ctx context.Context, skyGroupID int) (*Listing, error)
	Invalidate(skyGroupID int)
	InvalidateAll()
}

// Listing is the id-ordered set of entries in one sky group. It is never
// modified after construction and may be shared between goroutines.
type Listing struct {
	skyGroupID int
	kics       []*types.Kic
	loadedAt   time.Time
}

// NewListing copies kics, orders them by Kepler id and returns the listing.
func NewListing(skyGroupID int, kics []*types.Kic) *Listing {
	sorted := make([]*types.Kic, 0, len(kics))
	for _, k := range kics {
		if k != nil {
			sorted = append(sorted, k)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].KeplerID < sorted[j].KeplerID
	})
	return &Listing{skyGroupID: skyGroupID, kics: sorted, loadedAt: time.Now()}
}

// SkyGroupID returns the sky group this listing was loaded for.
func (l *Listing) SkyGroupID() int { return l.skyGroupID }

// LoadedAt returns when the listing was built.
func (l *Listing) LoadedAt() time.Time { return l.loadedAt }

// Len returns the number of entries.
func (l *Listing) Len() int { return len(l.kics) }

// At returns the i'th entry in Kepler id order.
func (l *Listing) At(i int) *types.Kic { return l.kics[i] }

// Range calls fn for every entry in order until fn returns false.
func (l *Listing) Range(fn func(i int, k *types.Kic) bool) {
	for i, k := range l.kics {
		if !fn(i, k) {
			return
		}
	}
}

// Kics returns a copy of the entry slice.
func (l *Listing) Kics() []*types.Kic {
	out := make([]*types.Kic, len(l.kics))
	copy(out, l.kics)
	return out
}

// PartitionCache keeps one listing per sky group. A key moves from absent
// to loading to populated; concurrent requests for a loading key wait for
// the single in-flight load and share its result or its error. Populated
// entries are read without taking a lock. Failed loads leave the key
// absent. Entries stay until invalidated.
//
// A load is detached from the cancellation of the request that started it
// and bounded by the load timeout instead; each waiter still gives up when
// its own context ends.
type PartitionCache struct {
	load        LoadFunc
	metrics     *observability.Metrics
	loadTimeout time.Duration

	entries sync.Map // int → *Listing
	group   singleflight.Group

	// Invalidations bump the stamp of a key. A load stores its listing only
	// if the stamp is unchanged when it finishes.
	mu          sync.Mutex
	generations map[int]uint64
	epoch       uint64

	loads atomic.Int64
}

// Option configures a PartitionCache.
type Option func(*PartitionCache)

// WithLoadTimeout bounds every load. Zero means no bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *PartitionCache) { c.loadTimeout = d }
}

// NewPartitionCache creates an empty cache over load. metrics may be nil.
func NewPartitionCache(load LoadFunc, metrics *observability.Metrics, opts ...Option) *PartitionCache {
	c := &PartitionCache{
		load:        load,
		metrics:     metrics,
		generations: make(map[int]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type stamp struct {
	generation uint64
	epoch      uint64
}

// flight is what a shared load hands its waiters.
type flight struct {
	listing *Listing
	stamp   stamp
}

// Listing returns the listing for skyGroupID, loading it on first use.
func (c *PartitionCache) Listing(ctx context.Context, skyGroupID int) (*Listing, error) {
	if v, ok := c.entries.Load(skyGroupID); ok {
		c.metrics.CacheHit()
		return v.(*Listing), nil
	}
	c.metrics.CacheMiss()

	key := strconv.Itoa(skyGroupID)
	for {
		seen := c.currentStamp(skyGroupID)
		ch := c.group.DoChan(key, func() (interface{}, error) {
			return c.fill(ctx, skyGroupID)
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if res.Err != nil {
			return nil, res.Err
		}

		f := res.Val.(flight)
		if f.stamp == seen {
			return f.listing, nil
		}
		// The flight was started before an invalidation this caller had
		// already observed. It is finished now, so the next Do cannot overlap
		// it.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (c *PartitionCache) fill(ctx context.Context, skyGroupID int) (flight, error) {
	c.mu.Lock()
	st := stamp{c.generations[skyGroupID], c.epoch}
	v, populated := c.entries.Load(skyGroupID)
	c.mu.Unlock()
	// A previous flight may have stored the key after our miss.
	if populated {
		return flight{listing: v.(*Listing), stamp: st}, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(loadCtx, c.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	kics, err := c.load(loadCtx, skyGroupID)
	elapsed := time.Since(start)
	c.metrics.ObserveLoad(elapsed, err)
	c.loads.Add(1)
	if err != nil {
		log.Warn().
			Err(err).
			Int("sky_group_id", skyGroupID).
			Dur("duration", elapsed).
			Msg("cache: sky group load failed")
		return flight{}, err
	}

	listing := NewListing(skyGroupID, kics)

	c.mu.Lock()
	stored := c.generations[skyGroupID] == st.generation && c.epoch == st.epoch
	if stored {
		c.entries.Store(skyGroupID, listing)
	}
	c.mu.Unlock()

	log.Info().
		Int("sky_group_id", skyGroupID).
		Int("kics", listing.Len()).
		Bool("stored", stored).
		Dur("duration", elapsed).
		Msg("cache: sky group loaded")
	return flight{listing: listing, stamp: st}, nil
}

func (c *PartitionCache) currentStamp(skyGroupID int) stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stamp{c.generations[skyGroupID], c.epoch}
}

// Invalidate drops the listing for skyGroupID. A load already in flight
// still returns its result to the callers that were waiting before the
// invalidation but does not populate the cache; callers arriving later
// wait for it to finish and then load again.
func (c *PartitionCache) Invalidate(skyGroupID int) {
	c.mu.Lock()
	c.generations[skyGroupID]++
	c.entries.Delete(skyGroupID)
	c.mu.Unlock()
}

// InvalidateAll drops every listing.
func (c *PartitionCache) InvalidateAll() {
	c.mu.Lock()
	c.epoch++
	c.entries.Clear()
	c.mu.Unlock()
}

// Populated reports whether skyGroupID currently has a listing.
func (c *PartitionCache) Populated(skyGroupID int) bool {
	_, ok := c.entries.Load(skyGroupID)
	return ok
}

// Len returns the number of populated sky groups.
func (c *PartitionCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Loads returns how many times the loader has been called.
func (c *PartitionCache) Loads() int64 { return c.loads.Load() }

// PassThrough calls the loader on every request and stores nothing.
type PassThrough struct {
	load    LoadFunc
	metrics *observability.Metrics
}

// NewPassThrough returns a source that always loads from storage.
func NewPassThrough(load LoadFunc, metrics *observability.Metrics) *PassThrough {
	return &PassThrough{load: load, metrics: metrics}
}

// Listing loads skyGroupID.
func (p *PassThrough) Listing(ctx context.Context, skyGroupID int) (*Listing, error) {
	start := time.Now()
	kics, err := p.load(ctx, skyGroupID)
	p.metrics.ObserveLoad(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return NewListing(skyGroupID, kics), nil
}

// Invalidate is a no-op.
func (p *PassThrough) Invalidate(int) {}

// InvalidateAll is a no-op.
func (p *PassThrough) InvalidateAll() {}

// NewListingSource returns a PartitionCache when enabled and a PassThrough
// otherwise. opts only apply to the cache.
func NewListingSource(enabled bool, load LoadFunc, metrics *observability.Metrics, opts ...Option) ListingSource {
	if enabled {
		return NewPartitionCache(load, metrics, opts...)
	}
	return NewPassThrough(load, metrics)
}
