package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kepler-soc/kic/internal/app"
	"github.com/kepler-soc/kic/internal/config"
	"github.com/kepler-soc/kic/pkg/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", "", "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

// seed creates the schema in dataDir and stores three stars, two of them in
// sky group 42.
func seed(t *testing.T, dataDir string) {
	t.Helper()
	_, err := run(t, "init", "--data-dir", dataDir)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	a, err := app.New(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.Init(ctx))
	defer a.Close()

	svc := a.Service()
	require.NoError(t, svc.CreateSkyGroups(ctx, []types.SkyGroup{{SkyGroupID: 42, CCDModule: 2, CCDOutput: 1, ObservingSeason: 0}}))
	require.NoError(t, svc.CreateKics(ctx, []*types.Kic{
		{KeplerID: 10, SkyGroupID: 42, RA: 19, Dec: 44, KeplerMag: types.Float32(11)},
		{KeplerID: 11, SkyGroupID: 42, RA: 19, Dec: 44.001, KeplerMag: types.Float32(13)},
		{KeplerID: 12, RA: 3, Dec: 3, KeplerMag: types.Float32(15)},
	}))
}

func decodeIDs(t *testing.T, out string) []int {
	t.Helper()
	var kics []*types.Kic
	require.NoError(t, json.Unmarshal([]byte(out), &kics))
	ids := make([]int, len(kics))
	for i, k := range kics {
		if k != nil {
			ids[i] = k.KeplerID
		}
	}
	return ids
}

func TestInit(t *testing.T) {
	out, err := run(t, "init", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (sqlite)")
}

func TestQuery(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out, err := run(t, "query", "KEPMAG > 10", "--data-dir", dir, "--sort", "KEPMAG", "--desc")
	require.NoError(t, err)
	assert.Equal(t, []int{12, 11, 10}, decodeIDs(t, out))

	out, err = run(t, "query", "KEPMAG > 10", "--data-dir", dir,
		"--module", "2", "--output", "1", "--season", "0", "--limit", "1", "--sort", "KEPLER_ID")
	require.NoError(t, err)
	assert.Equal(t, []int{10}, decodeIDs(t, out))

	out, err = run(t, "query", "KEPMAG > 99", "--data-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	_, err = run(t, "query", "KEPMAG >", "--data-dir", dir)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out, err := run(t, "lookup", "12", "99", "10", "--data-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 0, 10}, decodeIDs(t, out))

	_, err = run(t, "lookup", "abc", "--data-dir", dir)
	assert.Error(t, err)
}

func TestNearby(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out, err := run(t, "nearby", "10", "--width", "10", "--data-dir", dir)
	require.NoError(t, err)
	var ids []int
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Equal(t, []int{11}, ids)
}

func TestSnapshotBuild(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out, err := run(t, "snapshot", "build", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "built 1 snapshots, 0 failed")
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Setenv("KIC_DATABASE_DRIVER", "postgres")
	g := &globalOptions{dataDir: "/srv/kic", driver: "sqlite", noCache: true, logLevel: "debug"}

	cfg, err := g.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/srv/kic", cfg.DataDir)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kic version dev")
}
