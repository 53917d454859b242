// Package config provides the configuration of the catalog server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "KIC_"

// Config holds the catalog configuration.
type Config struct {
	// DataDir is the base directory for the SQLite database and local snapshots
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir" validate:"required"`

	Database DatabaseConfig `json:"database" yaml:"database" toml:"database"`
	Query    QueryConfig    `json:"query" yaml:"query" toml:"query"`
	Cache    CacheConfig    `json:"cache" yaml:"cache" toml:"cache"`
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot" toml:"snapshot"`
	HTTP     HTTPConfig     `json:"http" yaml:"http" toml:"http"`
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
}

// DatabaseConfig selects the catalog database.
type DatabaseConfig struct {
	// Driver is sqlite or postgres
	Driver string `json:"driver" yaml:"driver" toml:"driver" validate:"oneof=sqlite postgres"`

	// DSN is the data source name; empty means <data_dir>/kic.db for sqlite
	DSN string `json:"dsn" yaml:"dsn" toml:"dsn"`

	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns" toml:"max_open_conns" validate:"gte=0"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	// MaxExpressions is the largest number of ids in one IN list
	MaxExpressions int `json:"max_expressions" yaml:"max_expressions" toml:"max_expressions" validate:"gte=1"`

	// BatchConcurrency is the number of id chunks looked up at once
	BatchConcurrency int `json:"batch_concurrency" yaml:"batch_concurrency" toml:"batch_concurrency" validate:"gte=1"`

	// DefaultLimit applies to API queries that set no limit; 0 means unlimited
	DefaultLimit int `json:"default_limit" yaml:"default_limit" toml:"default_limit" validate:"gte=0"`
}

// CacheConfig controls the sky group listing cache.
type CacheConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// LoadTimeout bounds one sky group load. Zero means no bound.
	LoadTimeout time.Duration `json:"load_timeout" yaml:"load_timeout" toml:"load_timeout" validate:"gte=0"`
}

// SnapshotConfig controls sky group snapshots.
type SnapshotConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Backend is local or s3
	Backend string `json:"backend" yaml:"backend" toml:"backend" validate:"oneof=local s3"`

	// Path is the local snapshot directory (for local backend)
	Path string `json:"path" yaml:"path" toml:"path"`

	// Prefix is prepended to every snapshot key
	Prefix string `json:"prefix" yaml:"prefix" toml:"prefix"`

	// Concurrency bounds snapshot builds
	Concurrency int `json:"concurrency" yaml:"concurrency" toml:"concurrency" validate:"gte=1"`

	S3 S3Config `json:"s3" yaml:"s3" toml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Region string `json:"region" yaml:"region" toml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint     string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style" toml:"use_path_style"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr            string        `json:"addr" yaml:"addr" toml:"addr" validate:"required"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" toml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout" validate:"gte=0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `json:"pretty" yaml:"pretty" toml:"pretty"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/kic",
		Database: DatabaseConfig{
			Driver:       "sqlite",
			MaxOpenConns: 10,
		},
		Query: QueryConfig{
			MaxExpressions:   1000,
			BatchConcurrency: 1,
		},
		Cache: CacheConfig{
			Enabled:     true,
			LoadTimeout: 30 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Backend:     "local",
			Prefix:      "snapshots",
			Concurrency: 4,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve fills in paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/kic"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = filepath.Join(c.DataDir, "kic.db")
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(c.DataDir, "snapshots")
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the settings that depend on each other.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when driver is postgres")
	}
	if c.Snapshot.Enabled && c.Snapshot.Backend == "s3" && c.Snapshot.S3.Bucket == "" {
		return fmt.Errorf("snapshot.s3.bucket is required when snapshot backend is s3")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML, JSON or TOML file on top of
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg from KIC_ environment variables. Malformed
// numbers, booleans and durations are reported, not ignored.
func LoadFromEnv(cfg *Config) error {
	var errs []string
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = d
		}
	}

	str("DATA_DIR", &cfg.DataDir)

	str("DATABASE_DRIVER", &cfg.Database.Driver)
	str("DATABASE_DSN", &cfg.Database.DSN)
	integer("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)

	integer("QUERY_MAX_EXPRESSIONS", &cfg.Query.MaxExpressions)
	integer("QUERY_BATCH_CONCURRENCY", &cfg.Query.BatchConcurrency)
	integer("QUERY_DEFAULT_LIMIT", &cfg.Query.DefaultLimit)

	boolean("CACHE_ENABLED", &cfg.Cache.Enabled)
	duration("CACHE_LOAD_TIMEOUT", &cfg.Cache.LoadTimeout)

	boolean("SNAPSHOT_ENABLED", &cfg.Snapshot.Enabled)
	str("SNAPSHOT_BACKEND", &cfg.Snapshot.Backend)
	str("SNAPSHOT_PATH", &cfg.Snapshot.Path)
	str("SNAPSHOT_PREFIX", &cfg.Snapshot.Prefix)
	integer("SNAPSHOT_CONCURRENCY", &cfg.Snapshot.Concurrency)
	str("S3_BUCKET", &cfg.Snapshot.S3.Bucket)
	str("S3_REGION", &cfg.Snapshot.S3.Region)
	str("S3_ENDPOINT", &cfg.Snapshot.S3.Endpoint)
	boolean("S3_USE_PATH_STYLE", &cfg.Snapshot.S3.UsePathStyle)

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	duration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)
	duration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	str("LOG_LEVEL", &cfg.Log.Level)
	boolean("LOG_PRETTY", &cfg.Log.Pretty)

	if len(errs) > 0 {
		return fmt.Errorf("malformed environment variables: %s", strings.Join(errs, ", "))
	}
	return nil
}

// Load builds the configuration: defaults, then path (if set), then the
// environment. The result is resolved and validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDirectories creates the data and local snapshot directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Snapshot.Enabled && c.Snapshot.Backend == "local" {
		dirs = append(dirs, c.Snapshot.Path)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
