// Package catalog is the SQL storage collaborator of the catalog: it owns
// the kic, sky_group and characteristic tables and runs the queries the
// planner compiles.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/query/parser"
	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/pkg/types"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is what the query engine needs from storage.
type Store interface {
	// QueryKics runs a compiled constraint query.
	QueryKics(ctx context.Context, q *planner.CompiledQuery) ([]*types.Kic, error)

	// RetrieveKicsByIDs returns the entries for one chunk of ids, in no
	// particular order. Missing ids are skipped.
	RetrieveKicsByIDs(ctx context.Context, ids []int) ([]*types.Kic, error)

	// RetrieveKicsForSkyGroup returns every entry of a sky group ordered
	// by Kepler id.
	RetrieveKicsForSkyGroup(ctx context.Context, skyGroupID int) ([]*types.Kic, error)

	// ResolveSkyGroupID maps a module/output/season to its sky group. It
	// fails with NotFound when no such sky group exists.
	ResolveSkyGroupID(ctx context.Context, ccdModule, ccdOutput, observingSeason int) (int, error)
}

// Options configures Open.
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// SQLStore implements Store and the catalog maintenance operations over
// database/sql. It works against SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	driver  string
	dialect parser.Dialect
}

var _ Store = (*SQLStore)(nil)

// Open connects to the catalog database and verifies the connection.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	driver := strings.ToLower(opts.Driver)
	var driverName, dsn string
	switch driver {
	case DriverSQLite, "sqlite3", "":
		driver, driverName = DriverSQLite, "sqlite3"
		dsn = opts.DSN
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
		}
	case DriverPostgres, "postgresql", "pgx":
		driver, driverName = DriverPostgres, "pgx"
		dsn = opts.DSN
	default:
		return nil, catalogerrors.InvalidArgumentf("catalog: unsupported driver %q", opts.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, storageError(catalogerrors.CodeConnectionFailed, "open database", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageError(catalogerrors.CodeConnectionFailed, "ping database", err)
	}

	log.Info().Str("driver", driver).Msg("catalog: connected")
	return NewSQLStore(db, driver)
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	dialect, err := parser.DialectFor(driver)
	if err != nil {
		return nil, catalogerrors.InvalidArgumentf("catalog: %v", err)
	}
	if dialect == parser.DialectPostgres {
		driver = DriverPostgres
	} else {
		driver = DriverSQLite
	}
	return &SQLStore{db: db, driver: driver, dialect: dialect}, nil
}

// Dialect returns the placeholder dialect queries for this store must use.
func (s *SQLStore) Dialect() parser.Dialect { return s.dialect }

// Driver returns the normalized driver name.
func (s *SQLStore) Driver() string { return s.driver }

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// InitSchema creates the catalog tables and indexes if they do not exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	for _, stmt := range AllSchemaSQL(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageError(catalogerrors.CodeWriteFailed, "create schema", err)
		}
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageError(catalogerrors.CodeConnectionFailed, "ping database", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders for the store's dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect == parser.DialectSQLite {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(s.dialect.Placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *SQLStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(catalogerrors.CodeWriteFailed, op+": begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return storageError(catalogerrors.CodeWriteFailed, op, err)
	}
	if err := tx.Commit(); err != nil {
		return storageError(catalogerrors.CodeWriteFailed, op+": commit", err)
	}
	return nil
}

func (s *SQLStore) count(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n); err != nil {
		return 0, storageError(catalogerrors.CodeQueryFailed, op, err)
	}
	return n, nil
}

func (s *SQLStore) queryInts(ctx context.Context, op, query string, args ...interface{}) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(catalogerrors.CodeQueryFailed, op, err)
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func intArgs(ids []int) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func notFound(code, format string, args ...interface{}) error {
	return catalogerrors.NewNotFoundError(code, fmt.Sprintf(format, args...))
}
