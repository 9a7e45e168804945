package category

import (
	"context"
	"time"
)

type Category struct {
	ID        uint
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Category, error)
	// FirstActive backs the "first active record" default applied when a
	// master-data proposal omits a required reference.
	FirstActive(ctx context.Context) (*Category, error)
	Create(ctx context.Context, c *Category) (*Category, error)
}
