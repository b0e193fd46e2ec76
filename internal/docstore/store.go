// Package docstore is a path-addressed JSON document store with optimistic
// transactions. Engines only implement Backend; retry, read-set tracking and
// encoding live here so every engine behaves the same way under contention.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no document exists at a path.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by a Backend when a read version moved before commit.
	ErrConflict = errors.New("transaction conflict")
	// ErrReadAfterWrite is returned when a transaction reads after it started writing.
	ErrReadAfterWrite = errors.New("transaction reads must happen before writes")
	// ErrInvalidPath is returned for empty or malformed document paths.
	ErrInvalidPath = errors.New("invalid document path")
)

// Document is a stored JSON value with its version.
type Document struct {
	Path    string
	Data    []byte
	Version int64
}

// ID returns the last path segment.
func (d Document) ID() string {
	return path.Base(d.Path)
}

// Decode unmarshals the document body into dst.
func (d Document) Decode(dst any) error {
	if err := json.Unmarshal(d.Data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", d.Path, err)
	}
	return nil
}

// Write is one buffered mutation.
type Write struct {
	Path   string
	Data   []byte
	Delete bool
}

// Backend is implemented by storage engines.
//
// Commit must apply writes atomically and only if every path in reads still has
// the recorded version (0 meaning the document did not exist); otherwise it
// returns ErrConflict and applies nothing.
type Backend interface {
	Load(ctx context.Context, path string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Commit(ctx context.Context, reads map[string]int64, writes []Write) error
}

// Store is the interface the application layer depends on.
type Store interface {
	Get(ctx context.Context, path string, dst any) error
	Set(ctx context.Context, path string, v any) error
	Add(ctx context.Context, collection string, v any) (string, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collection string) ([]Document, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error
}

// DB wraps a Backend with encoding and transaction retry.
type DB struct {
	backend     Backend
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

// Option configures a DB.
type Option func(*DB)

// WithMaxAttempts bounds how many times a conflicting transaction is attempted.
func WithMaxAttempts(n int) Option {
	return func(db *DB) {
		if n > 0 {
			db.maxAttempts = n
		}
	}
}

// WithBackOff overrides the retry policy between attempts.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(db *DB) {
		db.newBackOff = f
	}
}

func New(backend Backend, opts ...Option) *DB {
	db := &DB{
		backend:     backend,
		maxAttempts: 10,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *DB) Get(ctx context.Context, p string, dst any) error {
	if err := validPath(p); err != nil {
		return err
	}
	doc, err := db.backend.Load(ctx, p)
	if err != nil {
		return err
	}
	return doc.Decode(dst)
}

func (db *DB) Set(ctx context.Context, p string, v any) error {
	w, err := setWrite(p, v)
	if err != nil {
		return err
	}
	return db.backend.Commit(ctx, nil, []Write{w})
}

// Add stores v under a generated id in collection and returns the id.
func (db *DB) Add(ctx context.Context, collection string, v any) (string, error) {
	id := uuid.NewString()
	if err := db.Set(ctx, collection+"/"+id, v); err != nil {
		return "", err
	}
	return id, nil
}

func (db *DB) Delete(ctx context.Context, p string) error {
	if err := validPath(p); err != nil {
		return err
	}
	return db.backend.Commit(ctx, nil, []Write{{Path: p, Delete: true}})
}

// List returns the direct children of collection ordered by path.
func (db *DB) List(ctx context.Context, collection string) ([]Document, error) {
	if err := validPath(collection); err != nil {
		return nil, err
	}
	return db.backend.List(ctx, collection)
}

// RunTransaction runs fn and commits its writes atomically. fn is re-run from
// scratch when the commit detects a conflicting write, so it must not have side
// effects outside tx. Any error returned by fn aborts without retry.
func (db *DB) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	attempt := func() error {
		tx := &Tx{ctx: ctx, backend: db.backend, reads: make(map[string]int64)}
		if err := fn(ctx, tx); err != nil {
			return backoff.Permanent(err)
		}
		if len(tx.writes) == 0 {
			return nil
		}
		err := db.backend.Commit(ctx, tx.reads, tx.writes)
		if err == nil || errors.Is(err, ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(db.newBackOff(), uint64(db.maxAttempts-1)), ctx)
	return backoff.Retry(attempt, policy)
}

// Tx records the versions it reads and buffers its writes until commit.
type Tx struct {
	ctx     context.Context
	backend Backend
	reads   map[string]int64
	writes  []Write
}

// Get reads a document into dst. A missing document returns ErrNotFound and is
// still tracked, so a concurrent create conflicts with this transaction.
func (tx *Tx) Get(p string, dst any) error {
	if err := validPath(p); err != nil {
		return err
	}
	if len(tx.writes) > 0 {
		return ErrReadAfterWrite
	}
	doc, err := tx.backend.Load(tx.ctx, p)
	if errors.Is(err, ErrNotFound) {
		tx.reads[p] = 0
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	tx.reads[p] = doc.Version
	return doc.Decode(dst)
}

func (tx *Tx) Set(p string, v any) error {
	w, err := setWrite(p, v)
	if err != nil {
		return err
	}
	tx.writes = append(tx.writes, w)
	return nil
}

func (tx *Tx) Delete(p string) error {
	if err := validPath(p); err != nil {
		return err
	}
	tx.writes = append(tx.writes, Write{Path: p, Delete: true})
	return nil
}

func setWrite(p string, v any) (Write, error) {
	if err := validPath(p); err != nil {
		return Write{}, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Write{}, fmt.Errorf("encode %s: %w", p, err)
	}
	return Write{Path: p, Data: data}, nil
}

// Collection returns the parent collection of a document path.
func Collection(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

func validPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") || strings.Contains(p, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}

// Compact resolves a write batch to the final write per path, keeping order of
// first appearance. Engines use it so a path set twice in one transaction is
// written once.
func Compact(writes []Write) []Write {
	idx := make(map[string]int, len(writes))
	out := make([]Write, 0, len(writes))
	for _, w := range writes {
		if i, ok := idx[w.Path]; ok {
			out[i] = w
			continue
		}
		idx[w.Path] = len(out)
		out = append(out, w)
	}
	return out
}
