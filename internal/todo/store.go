package todo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/s1natex/todo-api-GO/internal/database"
)

// Store is the bun-backed Repository. Every method is a single round trip
// (Update is a read followed by a write) with no transaction spanning calls.
type Store struct {
	db  bun.IDB
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(db bun.IDB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Indexes returns the secondary indexes List relies on.
func Indexes() []database.Index {
	return []database.Index{{
		Model:   (*TodoItem)(nil),
		Name:    "todo_items_created_at_idx",
		Columns: []string{"created_at"},
	}}
}

// EnsureSchema creates the todo_items table and its index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return database.EnsureCreated(ctx, s.db, Models(), Indexes()...)
}

// timestamp truncates to microseconds, the resolution postgres stores.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) List(ctx context.Context) ([]TodoItem, error) {
	items := make([]TodoItem, 0)
	if err := s.db.NewSelect().
		Model(&items).
		OrderExpr("? DESC", bun.Ident("created_at")).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list todo items: %w", err)
	}
	for i := range items {
		normalize(&items[i])
	}
	return items, nil
}

func (s *Store) Get(ctx context.Context, id int64) (TodoItem, error) {
	var item TodoItem
	err := s.db.NewSelect().
		Model(&item).
		Where("? = ?", bun.Ident("id"), id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return TodoItem{}, ErrNotFound
	}
	if err != nil {
		return TodoItem{}, fmt.Errorf("get todo item %d: %w", id, err)
	}
	normalize(&item)
	return item, nil
}

func (s *Store) Create(ctx context.Context, c Changes) (TodoItem, error) {
	now := s.timestamp()
	item := TodoItem{
		Title:       c.Title,
		Description: c.Description,
		IsCompleted: c.IsCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(&item).Exec(ctx); err != nil {
		return TodoItem{}, fmt.Errorf("create todo item: %w", err)
	}
	return item, nil
}

// Update overwrites title, description and completion of an existing row and
// refreshes UpdatedAt. CreatedAt is carried over from the stored row.
func (s *Store) Update(ctx context.Context, id int64, c Changes) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	next := TodoItem{
		ID:          current.ID,
		Title:       c.Title,
		Description: c.Description,
		IsCompleted: c.IsCompleted,
		CreatedAt:   current.CreatedAt,
		UpdatedAt:   s.timestamp(),
	}
	if next.UpdatedAt.Before(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt
	}

	res, err := s.db.NewUpdate().
		Model(&next).
		Column("title", "description", "is_completed", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update todo item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update todo item %d: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	// The row was there when we read it; find out whether it has gone since.
	exists, err := s.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("recheck todo item %d: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("update todo item %d: no rows affected", id)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().
		Model((*TodoItem)(nil)).
		Where("? = ?", bun.Ident("id"), id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete todo item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo item %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id int64) (bool, error) {
	return s.db.NewSelect().
		Model((*TodoItem)(nil)).
		Where("? = ?", bun.Ident("id"), id).
		Exists(ctx)
}

func normalize(item *TodoItem) {
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
}
