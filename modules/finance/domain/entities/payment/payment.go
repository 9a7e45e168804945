package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/withholding"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Payment is a partial or full settlement against one invoice. The withheld
// amount and rounding policy are captured at record time for audit fidelity:
// changing the invoice's withholding settings later never alters them.
type Payment struct {
	ID        uint
	InvoiceID uint

	Amount    decimal.Decimal
	PaidAt    time.Time
	Reference string

	Withheld decimal.Decimal
	Rounding withholding.RoundingPolicy

	Status     Status
	CreatedBy  uint
	ReviewedBy *uint
	ReviewedAt *time.Time
	ReviewNote string

	CreatedAt time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Payment, error)
	Create(ctx context.Context, p *Payment) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	ListByInvoice(ctx context.Context, invoiceID uint) ([]*Payment, error)
	// ApprovedTotal sums amount over approved payments for one invoice.
	ApprovedTotal(ctx context.Context, invoiceID uint) (decimal.Decimal, error)
	// ApprovedTotals is the grouped aggregate used by worklist enrichment.
	ApprovedTotals(ctx context.Context, invoiceIDs []uint) (map[uint]decimal.Decimal, error)
	HasPending(ctx context.Context, invoiceID uint) (bool, error)
	PendingFlags(ctx context.Context, invoiceIDs []uint) (map[uint]bool, error)
}
