package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"academy-of-heroes/internal/docstore"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type documentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	Path       string    `bun:"path,pk"`
	Collection string    `bun:"collection,notnull"`
	Data       string    `bun:"data,type:jsonb,notnull"`
	Version    int64     `bun:"version,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

// DocumentStore is a docstore.Backend on a single Postgres table. Commit locks
// the read set with SELECT ... FOR UPDATE and compares versions inside one
// database transaction. Versions are drawn from a sequence.
type DocumentStore struct {
	db *bun.DB
}

func NewDocumentStore(db *bun.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Load(ctx context.Context, path string) (docstore.Document, error) {
	var row documentRow
	err := s.db.NewSelect().Model(&row).Where("d.path = ?", path).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("load %s: %w", path, err)
	}
	return row.document(), nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	var rows []documentRow
	err := s.db.NewSelect().Model(&rows).
		Where("d.collection = ?", collection).
		Order("d.path ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.document())
	}
	return out, nil
}

func (s *DocumentStore) Commit(ctx context.Context, reads map[string]int64, writes []docstore.Write) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkReads(ctx, tx, reads); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, w := range docstore.Compact(writes) {
			if err := applyWrite(ctx, tx, w, reads, now); err != nil {
				return err
			}
		}
		return nil
	})
	if isSerializationFailure(err) {
		return docstore.ErrConflict
	}
	return err
}

func checkReads(ctx context.Context, tx bun.Tx, reads map[string]int64) error {
	if len(reads) == 0 {
		return nil
	}
	paths := make([]string, 0, len(reads))
	for p := range reads {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var rows []documentRow
	err := tx.NewSelect().Model(&rows).
		Column("path", "version").
		Where("d.path IN (?)", bun.In(paths)).
		Order("d.path ASC").
		For("UPDATE").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock read set: %w", err)
	}
	current := make(map[string]int64, len(rows))
	for _, row := range rows {
		current[row.Path] = row.Version
	}
	for _, p := range paths {
		if current[p] != reads[p] {
			return docstore.ErrConflict
		}
	}
	return nil
}

func applyWrite(ctx context.Context, tx bun.Tx, w docstore.Write, reads map[string]int64, now time.Time) error {
	if w.Delete {
		_, err := tx.NewDelete().Model((*documentRow)(nil)).Where("path = ?", w.Path).Exec(ctx)
		return err
	}

	row := &documentRow{
		Path:       w.Path,
		Collection: docstore.Collection(w.Path),
		Data:       string(w.Data),
		UpdatedAt:  now,
	}
	q := tx.NewInsert().Model(row).Value("version", "nextval('document_version_seq')")

	// A path read as absent holds no row lock, so a concurrent insert must
	// surface as a conflict rather than be overwritten.
	if version, read := reads[w.Path]; read && version == 0 {
		res, err := q.On("CONFLICT (path) DO NOTHING").Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return docstore.ErrConflict
		}
		return nil
	}

	_, err := q.On("CONFLICT (path) DO UPDATE").
		Set("collection = EXCLUDED.collection").
		Set("data = EXCLUDED.data").
		Set("version = EXCLUDED.version").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// isSerializationFailure matches serialization failures and deadlocks, both
// of which are safe to retry.
func isSerializationFailure(err error) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Field('C') {
	case "40001", "40P01":
		return true
	}
	return false
}

func (r documentRow) document() docstore.Document {
	return docstore.Document{Path: r.Path, Data: []byte(r.Data), Version: r.Version}
}
