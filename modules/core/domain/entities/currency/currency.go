package currency

import (
	"context"
	"time"
)

// Currency is a master-data row; codes follow ISO 4217 and the minor-unit
// precision is resolved from the currency registry, not stored here.
type Currency struct {
	Code      string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	GetByCode(ctx context.Context, code string) (*Currency, error)
	GetAll(ctx context.Context) ([]*Currency, error)
	CountActive(ctx context.Context) (int64, error)
	Create(ctx context.Context, c *Currency) error
	SetActive(ctx context.Context, code string, active bool) error
}
