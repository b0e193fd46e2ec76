// Package sqlite provides a single-file docstore.Backend for local and
// classroom installs that do not run Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"academy-of-heroes/internal/docstore"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	data       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection, path);
CREATE TABLE IF NOT EXISTS document_clock (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);
INSERT OR IGNORE INTO document_clock (id, version) VALUES (1, 0);
`

// DocumentStore persists documents in SQLite. The pool is limited to one
// connection, so every Commit runs alone and its version check needs no locks.
type DocumentStore struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) a store at path.
func Open(path string) (*DocumentStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DocumentStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *DocumentStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *DocumentStore) Load(ctx context.Context, path string) (docstore.Document, error) {
	doc := docstore.Document{Path: path}
	var data string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT data, version FROM documents WHERE path = ?`, path).Scan(&data, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("load %s: %w", path, err)
	}
	doc.Data = []byte(data)
	return doc, nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT path, data, version FROM documents WHERE collection = ? ORDER BY path`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	out := make([]docstore.Document, 0)
	for rows.Next() {
		var (
			doc  docstore.Document
			data string
		)
		if err := rows.Scan(&doc.Path, &data, &doc.Version); err != nil {
			return nil, err
		}
		doc.Data = []byte(data)
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *DocumentStore) Commit(ctx context.Context, reads map[string]int64, writes []docstore.Write) (err error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for p, want := range reads {
		var have int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE path = ?`, p).Scan(&have)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check %s: %w", p, err)
		}
		if have != want {
			return docstore.ErrConflict
		}
	}

	now := time.Now().UnixMilli()
	for _, w := range docstore.Compact(writes) {
		if w.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, w.Path); err != nil {
				return fmt.Errorf("delete %s: %w", w.Path, err)
			}
			continue
		}
		var version int64
		if err := tx.QueryRowContext(ctx, `UPDATE document_clock SET version = version + 1 WHERE id = 1 RETURNING version`).Scan(&version); err != nil {
			return fmt.Errorf("next version: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO documents (path, collection, data, version, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (path) DO UPDATE SET
	collection = excluded.collection,
	data = excluded.data,
	version = excluded.version,
	updated_at = excluded.updated_at`,
			w.Path, docstore.Collection(w.Path), string(w.Data), version, now)
		if err != nil {
			return fmt.Errorf("write %s: %w", w.Path, err)
		}
	}
	return tx.Commit()
}
