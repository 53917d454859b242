package catalog

import (
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
)

// storageError wraps a driver error as a StorageError. The driver error is
// kept verbatim as the cause. Errors that are already catalog errors pass
// through unchanged.
func storageError(code, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *catalogerrors.CatalogError
	if errors.As(err, &ce) {
		return err
	}
	if c := classify(err); c != "" {
		code = c
	}
	return catalogerrors.NewStorageError(code, "catalog: "+op, err)
}

// classify maps driver errors onto the codes that callers act on.
func classify(err error) string {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return catalogerrors.CodeConstraintViolation
		case sqlite3.ErrCantOpen, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrNotADB:
			return catalogerrors.CodeConnectionFailed
		}
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"): // integrity_constraint_violation
			return catalogerrors.CodeConstraintViolation
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception
			return catalogerrors.CodeConnectionFailed
		}
		return ""
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.Is(err, driver.ErrBadConn) {
		return catalogerrors.CodeConnectionFailed
	}
	return ""
}
