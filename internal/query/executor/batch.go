package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
)

// MaxExpressions is the largest number of values the catalog puts into one
// IN (...) list. Oracle rejects lists longer than this.
const MaxExpressions = 1000

// Loader fetches the values for one chunk of keys. It may return fewer
// values than keys; missing keys simply have no value.
type Loader[K comparable, V any] func(ctx context.Context, chunk []K) ([]V, error)

// Chunk splits keys into consecutive slices of at most size elements. The
// returned slices share keys' backing array.
func Chunk[K any](keys []K, size int) [][]K {
	if size < 1 || len(keys) == 0 {
		return nil
	}
	chunks := make([][]K, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end:end])
	}
	return chunks
}

// FetchBatched resolves keys through loader in chunks of at most maxChunk
// keys and merges the results into a map keyed by keyOf(value).
//
// An empty key list returns an empty map without calling loader. A loader
// error on any chunk aborts the whole call; no partial map is returned.
func FetchBatched[K comparable, V any](ctx context.Context, keys []K, maxChunk int, keyOf func(V) K, loader Loader[K, V]) (map[K]V, error) {
	if maxChunk < 1 {
		return nil, invalidChunkSize(maxChunk)
	}

	result := make(map[K]V, len(keys))
	for _, chunk := range Chunk(keys, maxChunk) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, err := loader(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			result[keyOf(v)] = v
		}
	}
	return result, nil
}

// FetchBatchedConcurrent behaves like FetchBatched but runs up to
// parallelism chunks at once. The first loader error cancels the context
// passed to the remaining chunks and is returned.
func FetchBatchedConcurrent[K comparable, V any](ctx context.Context, keys []K, maxChunk, parallelism int, keyOf func(V) K, loader Loader[K, V]) (map[K]V, error) {
	if maxChunk < 1 {
		return nil, invalidChunkSize(maxChunk)
	}
	if parallelism < 1 {
		parallelism = 1
	}

	chunks := Chunk(keys, maxChunk)
	if len(chunks) <= 1 {
		return FetchBatched(ctx, keys, maxChunk, keyOf, loader)
	}

	results := make([][]V, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, chunk := range chunks {
		g.Go(func() error {
			values, err := loader(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[K]V, len(keys))
	for _, values := range results {
		for _, v := range values {
			merged[keyOf(v)] = v
		}
	}
	return merged, nil
}

// Reproject lines the values of m up with keys. Keys without a value get
// the zero value of V (nil for pointer types).
func Reproject[K comparable, V any](keys []K, m map[K]V) []V {
	out := make([]V, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func invalidChunkSize(maxChunk int) error {
	return catalogerrors.NewValidationError(catalogerrors.CodeInvalidChunkSize,
		fmt.Sprintf("executor: maxChunk must be >= 1, got %d", maxChunk))
}
