package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/rumi/pkg/logger"
	_ "modernc.org/sqlite"
)

// Config controls how the store opens and uses its SQLite database.
type Config struct {
	Path string
	// MaxOpenConns bounds the connection pool. Writes are serialized
	// regardless of pool size.
	MaxOpenConns     int
	BusyTimeout      time.Duration
	QueryTimeout     time.Duration
	ReadRetryBackoff time.Duration
	// Now overrides the store clock. Defaults to time.Now in UTC.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.ReadRetryBackoff <= 0 {
		c.ReadRetryBackoff = 50 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// SQLiteStore is the persistent conversational memory store.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config

	// writeMu serializes write transactions so concurrent writers never
	// contend for the SQLite write lock.
	writeMu sync.Mutex
}

// Open creates or opens the memory database and ensures its schema.
func Open(cfg Config) (*SQLiteStore, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("open memory store: %w: empty path", ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w: %w", ErrStorageUnavailable, err)
	}

	db, err := sql.Open("sqlite", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w: %w", ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	store := &SQLiteStore{db: db, cfg: cfg}
	if err := store.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.InfoCF("memory", "Memory store opened", map[string]any{
		"path":      cfg.Path,
		"max_conns": cfg.MaxOpenConns,
	})
	return store, nil
}

func buildDSN(cfg Config) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()),
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=temp_store(MEMORY)",
		"_txlock=immediate",
	}
	return cfg.Path + "?" + strings.Join(pragmas, "&")
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.cfg.Path }

func (s *SQLiteStore) now() time.Time { return s.cfg.Now().UTC() }

func (s *SQLiteStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

// withWrite runs fn in a single write transaction. Any error rolls the
// whole transaction back.
func (s *SQLiteStore) withWrite(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op+" begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op+" commit", err)
	}
	return nil
}

// withRead runs fn and retries once after a short backoff when the first
// attempt fails with a transient error. fn must reset its outputs on entry.
func (s *SQLiteStore) withRead(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := fn(ctx)
	if err == nil || !isTransient(err) {
		return classify(op, err)
	}
	logger.WarnCF("memory", "Transient read failure, retrying", map[string]any{
		"op":    op,
		"error": err.Error(),
	})

	timer := time.NewTimer(s.cfg.ReadRetryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return classify(op, err)
	case <-timer.C:
	}
	return classify(op, fn(ctx))
}

func toMS(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMS(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMS(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return fromMS(v.Int64)
}

func nullID(v sql.NullInt64) int64 {
	if !v.Valid {
		return 0
	}
	return v.Int64
}

// WordCount counts whitespace-delimited tokens.
func WordCount(content string) int {
	return len(strings.Fields(content))
}
