package executor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
)

type record struct {
	id   int
	name string
}

func recordID(r record) int { return r.id }

// fixtureLoader returns the records of store whose id is in the chunk and
// remembers the largest chunk it saw.
type fixtureLoader struct {
	store    map[int]record
	mu       sync.Mutex
	calls    int
	maxChunk int
}

func newFixture(present []int) *fixtureLoader {
	f := &fixtureLoader{store: make(map[int]record)}
	for _, id := range present {
		f.store[id] = record{id: id, name: "kic"}
	}
	return f
}

func (f *fixtureLoader) load(_ context.Context, chunk []int) ([]record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.maxChunk = max(f.maxChunk, len(chunk))
	var out []record
	for _, id := range chunk {
		if r, ok := f.store[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestChunk(t *testing.T) {
	keys := []int{1, 2, 3, 4, 5}
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk(keys, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(keys, 5))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(keys, 6))
	assert.Nil(t, Chunk([]int{}, 3))
	assert.Nil(t, Chunk(keys, 0))

	// Appending to a chunk must not clobber the next one.
	chunks := Chunk(keys, 2)
	_ = append(chunks[0], 99)
	assert.Equal(t, 3, chunks[1][0])
}

func TestFetchBatchedEmptyKeys(t *testing.T) {
	f := newFixture([]int{1})
	m, err := FetchBatched(context.Background(), nil, 10, recordID, f.load)
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.NotNil(t, m)
	assert.Equal(t, 0, f.calls)
}

func TestFetchBatchedInvalidChunkSize(t *testing.T) {
	f := newFixture([]int{1})
	for _, size := range []int{0, -1} {
		m, err := FetchBatched(context.Background(), []int{1}, size, recordID, f.load)
		assert.Nil(t, m)
		assert.True(t, catalogerrors.IsInvalidArgument(err))
		assert.Equal(t, catalogerrors.CodeInvalidChunkSize, catalogerrors.GetCode(err))

		m, err = FetchBatchedConcurrent(context.Background(), []int{1}, size, 4, recordID, f.load)
		assert.Nil(t, m)
		assert.True(t, catalogerrors.IsInvalidArgument(err))
	}
	assert.Equal(t, 0, f.calls)
}

func TestFetchBatchedDuplicateKeys(t *testing.T) {
	f := newFixture([]int{1, 2})
	m, err := FetchBatched(context.Background(), []int{1, 1, 2, 1, 7}, 2, recordID, f.load)
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Equal(t, 3, f.calls)
}

func TestFetchBatchedAbortsOnLoaderError(t *testing.T) {
	boom := errors.New("ORA-01795: maximum number of expressions in a list is 1000")
	calls := 0
	loader := func(_ context.Context, chunk []int) ([]record, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		out := make([]record, len(chunk))
		for i, id := range chunk {
			out[i] = record{id: id}
		}
		return out, nil
	}

	m, err := FetchBatched(context.Background(), []int{1, 2, 3, 4, 5}, 2, recordID, loader)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestFetchBatchedConcurrentAbortsOnLoaderError(t *testing.T) {
	boom := errors.New("connection reset")
	var calls atomic.Int32
	loader := func(_ context.Context, chunk []int) ([]record, error) {
		if calls.Add(1) == 3 {
			return nil, boom
		}
		return []record{{id: chunk[0]}}, nil
	}

	keys := make([]int, 100)
	for i := range keys {
		keys[i] = i + 1
	}
	m, err := FetchBatchedConcurrent(context.Background(), keys, 10, 4, recordID, loader)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, boom)
}

func TestFetchBatchedConcurrentMatchesSequential(t *testing.T) {
	keys := make([]int, 2500)
	present := make([]int, 0, len(keys))
	for i := range keys {
		keys[i] = i + 1
		if i%3 != 0 {
			present = append(present, i+1)
		}
	}

	seq, err := FetchBatched(context.Background(), keys, MaxExpressions, recordID, newFixture(present).load)
	require.NoError(t, err)

	f := newFixture(present)
	conc, err := FetchBatchedConcurrent(context.Background(), keys, MaxExpressions, 3, recordID, f.load)
	require.NoError(t, err)

	assert.Equal(t, seq, conc)
	assert.Len(t, conc, len(present))
	assert.Equal(t, 3, f.calls)
	assert.LessOrEqual(t, f.maxChunk, MaxExpressions)
}

func TestFetchBatchedHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := FetchBatched(ctx, []int{1, 2}, 1, recordID, newFixture([]int{1, 2}).load)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReproject(t *testing.T) {
	a, c := &record{id: 1}, &record{id: 3}
	m := map[int]*record{1: a, 3: c}
	got := Reproject([]int{3, 2, 1, 3}, m)
	assert.Equal(t, []*record{c, nil, a, c}, got)
}

func TestProperty_BatchCompleteness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("result keys equal the present subset for maxChunk in {1, |K|, |K|+1}", prop.ForAll(
		func(keys []int, presentMask []bool, seed int64) bool {
			if len(keys) == 0 {
				return true
			}
			var present []int
			expected := map[int]bool{}
			for i, k := range keys {
				if i < len(presentMask) && presentMask[i] {
					present = append(present, k)
					expected[k] = true
				}
			}

			shuffled := append([]int(nil), keys...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			for _, input := range [][]int{keys, shuffled} {
				for _, maxChunk := range []int{1, len(keys), len(keys) + 1} {
					f := newFixture(present)
					m, err := FetchBatched(context.Background(), input, maxChunk, recordID, f.load)
					if err != nil || len(m) != len(expected) {
						return false
					}
					for k := range expected {
						if m[k].id != k {
							return false
						}
					}
					if f.maxChunk > maxChunk {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 5000)),
		gen.SliceOf(gen.Bool()),
		gen.Int64(),
	))

	properties.Property("loader never sees more than maxChunk keys", prop.ForAll(
		func(n, maxChunk int) bool {
			keys := make([]int, n)
			for i := range keys {
				keys[i] = i
			}
			f := newFixture(keys)
			if _, err := FetchBatched(context.Background(), keys, maxChunk, recordID, f.load); err != nil {
				return false
			}
			expectedCalls := (n + maxChunk - 1) / maxChunk
			return f.maxChunk <= maxChunk && f.calls == expectedCalls
		},
		gen.IntRange(0, 3000),
		gen.IntRange(1, 1200),
	))

	properties.TestingRun(t)
}
