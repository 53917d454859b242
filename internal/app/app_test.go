package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kepler-soc/kic/internal/config"
	"github.com/kepler-soc/kic/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Snapshot.Enabled = true
	cfg.Snapshot.Concurrency = 2
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestInitAndHandler(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.Init(ctx))
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Store().InitSchema(ctx))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second Init keeps the same service.
	svc := a.Service()
	require.NoError(t, a.Init(ctx))
	assert.Same(t, svc, a.Service())
}

func TestBuildSnapshots(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.Init(ctx))
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Store().InitSchema(ctx))

	require.NoError(t, a.Service().CreateKics(ctx, []*types.Kic{
		{KeplerID: 1, SkyGroupID: 5, RA: 1, Dec: 1},
		{KeplerID: 2, SkyGroupID: 7, RA: 2, Dec: 2},
		{KeplerID: 3, RA: 3, Dec: 3},
	}))

	res, err := a.BuildSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 7}, res.Built)

	ids, err := a.Snapshots().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 7}, ids)
}

func TestBuildSnapshotsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Snapshot.Enabled = false
	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { a.Close() })

	_, err = a.BuildSnapshots(context.Background())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	assert.Error(t, a.Start(ctx))
	require.NoError(t, a.Stop(ctx))
}
