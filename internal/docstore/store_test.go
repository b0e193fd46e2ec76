package docstore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	N int `json:"n"`
}

func TestGetSetDeleteList(t *testing.T) {
	ctx := context.Background()
	db := docstore.New(memory.NewDocumentStore())

	require.NoError(t, db.Set(ctx, "teachers/t1/students/a", counter{N: 1}))
	require.NoError(t, db.Set(ctx, "teachers/t1/students/b", counter{N: 2}))
	require.NoError(t, db.Set(ctx, "teachers/t1/students/b/nested/x", counter{N: 3}))

	var got counter
	require.NoError(t, db.Get(ctx, "teachers/t1/students/b", &got))
	assert.Equal(t, 2, got.N)

	docs, err := db.List(ctx, "teachers/t1/students")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID())
	assert.Equal(t, "b", docs[1].ID())

	require.NoError(t, db.Delete(ctx, "teachers/t1/students/a"))
	assert.ErrorIs(t, db.Get(ctx, "teachers/t1/students/a", &got), docstore.ErrNotFound)
}

func TestAddGeneratesIDs(t *testing.T) {
	ctx := context.Background()
	db := docstore.New(memory.NewDocumentStore())

	id1, err := db.Add(ctx, "teachers/t1/gameLog", counter{N: 1})
	require.NoError(t, err)
	id2, err := db.Add(ctx, "teachers/t1/gameLog", counter{N: 2})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	docs, err := db.List(ctx, "teachers/t1/gameLog")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestInvalidPath(t *testing.T) {
	db := docstore.New(memory.NewDocumentStore())
	err := db.Set(context.Background(), "teachers//x", counter{})
	assert.ErrorIs(t, err, docstore.ErrInvalidPath)
}

func TestTransactionAbortWritesNothing(t *testing.T) {
	ctx := context.Background()
	db := docstore.New(memory.NewDocumentStore())
	require.NoError(t, db.Set(ctx, "c/doc", counter{N: 1}))

	rule := errors.New("rule broken")
	err := db.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		var c counter
		if err := tx.Get("c/doc", &c); err != nil {
			return err
		}
		c.N = 100
		if err := tx.Set("c/doc", c); err != nil {
			return err
		}
		return rule
	})
	assert.ErrorIs(t, err, rule)

	var got counter
	require.NoError(t, db.Get(ctx, "c/doc", &got))
	assert.Equal(t, 1, got.N)
}

func TestReadAfterWriteRejected(t *testing.T) {
	ctx := context.Background()
	db := docstore.New(memory.NewDocumentStore())
	err := db.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := tx.Set("c/a", counter{}); err != nil {
			return err
		}
		var c counter
		return tx.Get("c/b", &c)
	})
	assert.ErrorIs(t, err, docstore.ErrReadAfterWrite)
}

func TestConcurrentIncrementsAllApply(t *testing.T) {
	ctx := context.Background()
	db := docstore.New(memory.NewDocumentStore(), docstore.WithMaxAttempts(100))
	require.NoError(t, db.Set(ctx, "c/doc", counter{}))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
				var c counter
				if err := tx.Get("c/doc", &c); err != nil {
					return err
				}
				c.N++
				return tx.Set("c/doc", c)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var got counter
	require.NoError(t, db.Get(ctx, "c/doc", &got))
	assert.Equal(t, workers, got.N)
}

// racingBackend commits a competing write the first time a transaction tries
// to commit, forcing one retry.
type racingBackend struct {
	*memory.DocumentStore
	raced atomic.Bool
}

func (b *racingBackend) Commit(ctx context.Context, reads map[string]int64, writes []docstore.Write) error {
	if len(reads) > 0 && b.raced.CompareAndSwap(false, true) {
		if err := b.DocumentStore.Commit(ctx, nil, []docstore.Write{{Path: "c/doc", Data: []byte(`{"n":10}`)}}); err != nil {
			return err
		}
	}
	return b.DocumentStore.Commit(ctx, reads, writes)
}

func TestConflictRetriesWithFreshReads(t *testing.T) {
	ctx := context.Background()
	backend := &racingBackend{DocumentStore: memory.NewDocumentStore()}
	db := docstore.New(backend)
	require.NoError(t, db.Set(ctx, "c/doc", counter{N: 1}))

	attempts := 0
	err := db.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		attempts++
		var c counter
		if err := tx.Get("c/doc", &c); err != nil {
			return err
		}
		c.N++
		return tx.Set("c/doc", c)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	var got counter
	require.NoError(t, db.Get(ctx, "c/doc", &got))
	assert.Equal(t, 11, got.N)
}

func TestMissingReadConflictsWithCreate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	db := docstore.New(store, docstore.WithMaxAttempts(1))

	err := db.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		var c counter
		if err := tx.Get("c/new", &c); !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		// someone else creates it between our read and commit
		require.NoError(t, db.Set(ctx, "c/new", counter{N: 5}))
		return tx.Set("c/new", counter{N: 1})
	})
	assert.ErrorIs(t, err, docstore.ErrConflict)
}
