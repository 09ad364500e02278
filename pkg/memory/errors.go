package memory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Error kinds surfaced by the store. Callers match with errors.Is.
// Absent rows are never an error: lookups return nil or empty slices.
var (
	ErrSchema             = errors.New("schema error")
	ErrIntegrity          = errors.New("integrity violation")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

var errorKinds = []error{ErrSchema, ErrIntegrity, ErrStorageUnavailable, ErrInvalidInput}

// classify wraps err with op and, when the cause is recognizable, one of the
// error kinds above. Errors that already carry a kind are only prefixed.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	switch {
	case isConstraint(err):
		return fmt.Errorf("%s: %w: %w", op, ErrIntegrity, err)
	case isTransient(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

func isConstraint(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code&0xff == sqlite3.SQLITE_CONSTRAINT
}

// isTransient reports failures worth one retry: lock contention, I/O
// errors and dropped connections.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
		return true
	}
	return false
}
