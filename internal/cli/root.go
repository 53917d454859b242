// Package cli implements the kic command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kepler-soc/kic/internal/app"
	"github.com/kepler-soc/kic/internal/config"
	"github.com/kepler-soc/kic/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configFile string
	envFile    string
	dataDir    string
	driver     string
	dsn        string
	logLevel   string
	pretty     bool
	noCache    bool
}

// NewRootCmd builds the kic command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "kic [command] [flags]",
		Short: "Kepler Input Catalog query engine",
		Long: `kic serves and queries the Kepler Input Catalog.

Examples:
  # Create the schema
  kic init --data-dir /data/kic

  # Run the HTTP server
  kic serve --config /etc/kic/kic.yaml

  # Query with a constraint expression
  kic query "KEPMAG < 12 AND CrowdingMetric > .5" --module 2 --output 1 --season 0 --sort KEPMAG

  # Find the neighbors of a star
  kic nearby 8462852 --width 30`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "Path to configuration file (YAML, JSON or TOML)")
	flags.StringVar(&g.envFile, "env-file", ".env", "Path to a .env file; missing files are ignored")
	flags.StringVar(&g.dataDir, "data-dir", "", "Base directory for data files")
	flags.StringVar(&g.driver, "driver", "", "Database driver: sqlite or postgres")
	flags.StringVar(&g.dsn, "dsn", "", "Database data source name")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	flags.BoolVar(&g.pretty, "pretty", false, "Human readable log output")
	flags.BoolVar(&g.noCache, "no-cache", false, "Read sky group listings from the database every time")

	root.AddCommand(
		newServeCmd(g),
		newInitCmd(g),
		newQueryCmd(g),
		newLookupCmd(g),
		newNearbyCmd(g),
		newSnapshotCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file and the environment, then applies
// flag overrides.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", g.envFile, err)
		}
	}

	cfg := config.DefaultConfig()
	if g.configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(g.configFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if g.driver != "" {
		cfg.Database.Driver = g.driver
	}
	if g.dsn != "" {
		cfg.Database.DSN = g.dsn
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.pretty {
		cfg.Log.Pretty = true
	}
	if g.noCache {
		cfg.Cache.Enabled = false
	}
	return cfg, nil
}

// newApp configures logging and validates cfg.
func newApp(cfg *config.Config) (*app.App, error) {
	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}); err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// openApp loads configuration and initializes storage.
func (g *globalOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Init(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kic version %s (commit: %s)\n", version, commit)
		},
	}
}
