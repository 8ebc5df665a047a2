package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/tbox/internal/metrics"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an SQLite database (modernc.org/sqlite,
// CGO-free). SQLite's own file locking makes it safe across processes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	if p != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA busy_timeout=3000;`,
		`CREATE TABLE IF NOT EXISTS kv(
			key INTEGER PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, key Key) (string, bool, error) {
	if !key.Valid() {
		return "", false, fmt.Errorf("%w: %d", ErrUnknownKey, int(key))
	}
	start := time.Now()
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=?;`, int(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordStoreOp("read", nil, time.Since(start).Seconds())
		return "", false, nil
	}
	metrics.RecordStoreOp("read", err, time.Since(start).Seconds())
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) Write(ctx context.Context, key Key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at;`,
		int(key), value, time.Now().UTC())
	metrics.RecordStoreOp("write", err, time.Since(start).Seconds())
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKey, int(key))
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key=?;`, int(key))
	metrics.RecordStoreOp("delete", err, time.Since(start).Seconds())
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
