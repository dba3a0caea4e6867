package todo

import (
	"time"

	"github.com/uptrace/bun"
)

type TodoItem struct {
	bun.BaseModel `bun:"table:todo_items,alias:t" json:"-"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description *string   `bun:"description" json:"description"`
	IsCompleted bool      `bun:"is_completed,notnull" json:"isCompleted"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Models lists every table EnsureCreated must provision.
func Models() []any {
	return []any{(*TodoItem)(nil)}
}
