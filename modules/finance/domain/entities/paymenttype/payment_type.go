package paymenttype

import (
	"context"
	"time"
)

type PaymentType struct {
	ID        uint
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id uint) (*PaymentType, error)
	Create(ctx context.Context, pt *PaymentType) (*PaymentType, error)
}
