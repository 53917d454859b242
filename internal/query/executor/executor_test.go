package executor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/observability"
	"github.com/kepler-soc/kic/internal/query/parser"
	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/pkg/types"
)

type fakeStore struct {
	mu      sync.Mutex
	kics    map[int]*types.Kic
	chunks  [][]int
	queries []*planner.CompiledQuery
	err     error
}

func newFakeStore(ids ...int) *fakeStore {
	s := &fakeStore{kics: make(map[int]*types.Kic)}
	for _, id := range ids {
		s.kics[id] = &types.Kic{KeplerID: id, SkyGroupID: 42}
	}
	return s
}

func (s *fakeStore) QueryKics(_ context.Context, q *planner.CompiledQuery) ([]*types.Kic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]int, 0, len(s.kics))
	for id := range s.kics {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*types.Kic, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.kics[id])
	}
	return out, nil
}

func (s *fakeStore) RetrieveKicsByIDs(_ context.Context, ids []int) ([]*types.Kic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, append([]int(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	var out []*types.Kic
	for _, id := range ids {
		if k, ok := s.kics[id]; ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func newTestExecutor(store KicStore, config Config) (*Executor, *observability.Metrics) {
	metrics := observability.NewMetrics()
	p := planner.NewPlanner(parser.DialectSQLite, nil)
	return NewExecutor(p, store, config, metrics), metrics
}

func TestNewExecutorDefaults(t *testing.T) {
	e, _ := newTestExecutor(newFakeStore(), Config{})
	assert.Equal(t, MaxExpressions, e.MaxExpressions())
	assert.Equal(t, 1, e.config.BatchConcurrency)
}

func TestExecuteRunsCompiledQuery(t *testing.T) {
	store := newFakeStore(2, 3, 4)
	e, _ := newTestExecutor(store, DefaultConfig())

	kics, err := e.Execute(context.Background(), planner.Request{Constraints: []types.Constraint{
		{Column: types.FieldKeplerID, Operator: types.OpGreater, Value: "1"},
	}})
	require.NoError(t, err)
	assert.Len(t, kics, 3)
	require.Len(t, store.queries, 1)
	assert.Contains(t, store.queries[0].SQL, "kic.kepler_id > ?")
}

func TestExecuteValidationErrorSkipsStorage(t *testing.T) {
	store := newFakeStore(1)
	e, _ := newTestExecutor(store, DefaultConfig())

	_, err := e.Execute(context.Background(), planner.Request{})
	assert.True(t, catalogerrors.IsInvalidArgument(err))
	assert.Empty(t, store.queries)
}

func TestExecutePassesStorageErrorThrough(t *testing.T) {
	store := newFakeStore(1)
	store.err = catalogerrors.NewStorageError(catalogerrors.CodeQueryFailed, "query kics", errors.New("disk I/O error"))
	e, _ := newTestExecutor(store, DefaultConfig())

	_, err := e.Execute(context.Background(), planner.Request{Constraints: []types.Constraint{
		{Column: types.FieldKeplerID, Operator: types.OpEqual, Value: "1"},
	}})
	assert.ErrorIs(t, err, store.err)
	assert.True(t, catalogerrors.IsStorage(err))
}

func TestFetchKicsChunksAndReprojects(t *testing.T) {
	store := newFakeStore(1, 2, 3, 5)
	e, metrics := newTestExecutor(store, Config{MaxExpressions: 2})

	kics, err := e.FetchKics(context.Background(), []int{5, 4, 3, 2, 1})
	require.NoError(t, err)
	require.Len(t, kics, 5)
	assert.Equal(t, 5, kics[0].KeplerID)
	assert.Nil(t, kics[1])
	assert.Equal(t, 3, kics[2].KeplerID)
	assert.Equal(t, 1, kics[4].KeplerID)

	assert.Equal(t, [][]int{{5, 4}, {3, 2}, {1}}, store.chunks)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.BatchChunks))
}

func TestFetchKicMapConcurrent(t *testing.T) {
	ids := make([]int, 0, 2001)
	for i := 1; i <= 2001; i++ {
		ids = append(ids, i)
	}
	store := newFakeStore(ids[:1500]...)
	e, _ := newTestExecutor(store, Config{MaxExpressions: 500, BatchConcurrency: 4})

	m, err := e.FetchKicMap(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, m, 1500)
	assert.Len(t, store.chunks, 5)
	for _, chunk := range store.chunks {
		assert.LessOrEqual(t, len(chunk), 500)
	}
}

func TestFetchKicMapEmpty(t *testing.T) {
	store := newFakeStore(1)
	e, _ := newTestExecutor(store, DefaultConfig())

	m, err := e.FetchKicMap(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.Empty(t, store.chunks)
}

func TestFetchKicsStorageError(t *testing.T) {
	store := newFakeStore(1)
	store.err = errors.New("connection refused")
	e, _ := newTestExecutor(store, DefaultConfig())

	kics, err := e.FetchKics(context.Background(), []int{1})
	assert.Nil(t, kics)
	assert.ErrorIs(t, err, store.err)
}
