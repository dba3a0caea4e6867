package todo

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("todo item not found")

// Changes carries the client-controlled fields of a TodoItem. Timestamps and
// the id are never taken from the client.
type Changes struct {
	Title       string
	Description *string
	IsCompleted bool
}

type Repository interface {
	List(ctx context.Context) ([]TodoItem, error)
	Get(ctx context.Context, id int64) (TodoItem, error)
	Create(ctx context.Context, c Changes) (TodoItem, error)
	Update(ctx context.Context, id int64, c Changes) error
	Delete(ctx context.Context, id int64) error
}
