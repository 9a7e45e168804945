package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/withholding"
)

type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusUnpaid          Status = "unpaid"
	StatusPartial         Status = "partial"
	StatusPaid            Status = "paid"
	StatusOnHold          Status = "on_hold"
	StatusRejected        Status = "rejected"
)

// AcceptsPayments reports whether payment totals may override the persisted
// status at read time. All other statuses govern regardless of payments.
func (s Status) AcceptsPayments() bool {
	return s == StatusUnpaid || s == StatusPartial || s == StatusPaid
}

// Invoice is a financial obligation owed to a vendor. Derived fields
// (remaining balance, due label, priority rank) are never stored here; they
// are recomputed from the invoice, its approved payments and "today".
type Invoice struct {
	ID           uint
	Number       string
	VendorID     uint
	CategoryID   *uint
	ProfileID    *uint
	CurrencyCode string

	Amount      decimal.Decimal
	InvoiceDate time.Time
	DueDate     *time.Time
	PeriodStart *time.Time
	PeriodEnd   *time.Time

	Status Status

	TDSApplicable bool
	TDSRate       *decimal.Decimal
	TDSRounding   withholding.RoundingPolicy

	Archived      bool
	ArchivedBy    *uint
	ArchivedAt    *time.Time
	ArchiveReason string

	HeldBy     *uint
	HeldAt     *time.Time
	HoldReason string

	RejectedBy      *uint
	RejectedAt      *time.Time
	RejectionReason string

	CreatedBy uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attachment is a stored file belonging to one invoice. Bytes are handled by
// the storage collaborator; only the location is tracked here.
type Attachment struct {
	ID        uint
	InvoiceID uint
	Name      string
	Path      string
	CreatedAt time.Time
}

// DeletionRecord is the tombstone written before a hard delete so the audit
// trail survives the row.
type DeletionRecord struct {
	ID            uint
	InvoiceID     uint
	InvoiceNumber string
	VendorID      uint
	Amount        decimal.Decimal
	Reason        string
	DeletedBy     uint
	DeletedAt     time.Time
}
