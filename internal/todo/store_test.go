package todo

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/s1natex/todo-api-GO/internal/database"
)

// stepClock hands out strictly increasing times so ordering tests do not
// depend on wall clock resolution.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func (c *stepClock) Rewind(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(-d)
}

func newTempDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn, err := database.SQLiteFileDSN(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db, err := database.Open(dsn, database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) (*Store, *stepClock) {
	t.Helper()
	clock := newStepClock()
	store := NewStore(newTempDB(t), WithClock(clock.Now))
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store, clock
}

func strPtr(s string) *string { return &s }

func TestStore_CreateSetsTimestamps(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	item, err := store.Create(ctx, Changes{Title: "buy milk"})
	require.NoError(t, err)
	assert.NotZero(t, item.ID)
	assert.False(t, item.IsCompleted)
	assert.Nil(t, item.Description)
	assert.False(t, item.CreatedAt.IsZero())
	assert.True(t, item.CreatedAt.Equal(item.UpdatedAt))
}

func TestStore_CreateThenGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Changes{Title: "write report", Description: strPtr("q3"), IsCompleted: true})
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Title, got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "q3", *got.Description)
	assert.Equal(t, created.IsCompleted, got.IsCompleted)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt), "created %v got %v", created.CreatedAt, got.CreatedAt)
	assert.True(t, created.UpdatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
}

func TestStore_ListNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	empty, err := store.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, title := range []string{"first", "second", "third"} {
		_, err := store.Create(ctx, Changes{Title: title})
		require.NoError(t, err)
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "second", list[1].Title)
	assert.Equal(t, "first", list[2].Title)
}

func TestStore_UpdateKeepsCreatedAt(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Changes{Title: "draft", Description: strPtr("old")})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, created.ID, Changes{Title: "final", IsCompleted: true}))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	assert.Nil(t, got.Description)
	assert.True(t, got.IsCompleted)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt))
}

func TestStore_UpdatedAtNeverGoesBackwards(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Changes{Title: "a"})
	require.NoError(t, err)

	clock.Rewind(time.Hour)
	require.NoError(t, store.Update(ctx, created.ID, Changes{Title: "b"}))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.Before(created.UpdatedAt))
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestStore_MissingIDIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, 404, Changes{Title: "x"}), ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, 404), ErrNotFound)
}

func TestStore_DeleteTwice(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	item, err := store.Create(ctx, Changes{Title: "gone soon"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, item.ID))
	assert.ErrorIs(t, store.Delete(ctx, item.ID), ErrNotFound)

	_, err = store.Get(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// vanishingDB deletes the row between the read and the write of Update.
type vanishingDB struct {
	bun.IDB
	store *Store
	id    int64
	once  sync.Once
}

func (v *vanishingDB) NewUpdate() *bun.UpdateQuery {
	v.once.Do(func() {
		_ = v.store.Delete(context.Background(), v.id)
	})
	return v.IDB.NewUpdate()
}

func TestStore_UpdateRowVanishedIsNotFound(t *testing.T) {
	db := newTempDB(t)
	ctx := context.Background()
	base := NewStore(db)
	require.NoError(t, base.EnsureSchema(ctx))

	item, err := base.Create(ctx, Changes{Title: "racy"})
	require.NoError(t, err)

	racy := NewStore(&vanishingDB{IDB: db, store: base, id: item.ID})
	assert.ErrorIs(t, racy.Update(ctx, item.ID, Changes{Title: "late"}), ErrNotFound)
}
