package profile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Profile is a recurring-invoice template.
type Profile struct {
	ID         uint
	Name       string
	VendorID   *uint
	CategoryID *uint
	Amount     *decimal.Decimal
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Profile, error)
	Create(ctx context.Context, p *Profile) (*Profile, error)
}
