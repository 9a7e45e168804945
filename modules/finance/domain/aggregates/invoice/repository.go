package invoice

import (
	"context"
	"time"
)

// SortField enumerates worklist sort keys. Stored fields sort in SQL;
// derived fields require fetching the unsorted set, enriching, then sorting
// in memory.
type SortField string

const (
	SortDefault            SortField = ""
	SortByNumber           SortField = "number"
	SortByAmount           SortField = "amount"
	SortByInvoiceDate      SortField = "invoice_date"
	SortByDueDate          SortField = "due_date"
	SortByCreatedAt        SortField = "created_at"
	SortByRemainingBalance SortField = "remaining_balance"
)

// IsStored reports whether the sort key is a persisted column.
func (f SortField) IsStored() bool {
	switch f {
	case SortByNumber, SortByAmount, SortByInvoiceDate, SortByDueDate, SortByCreatedAt:
		return true
	}
	return false
}

type FindParams struct {
	Status     *Status
	VendorID   *uint
	CategoryID *uint
	CreatedBy  *uint
	Archived   *bool
	DueBefore  *time.Time
	Search     string

	SortBy  SortField
	SortAsc bool
	Limit   int
	Offset  int
}

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Invoice, error)
	// ExistsByNumberAndVendor enforces the natural key (number, vendor).
	// excludeID ignores one row, for duplicate checks during edits.
	ExistsByNumberAndVendor(ctx context.Context, number string, vendorID, excludeID uint) (bool, error)
	Create(ctx context.Context, inv *Invoice) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	// ListPendingByVendor returns invoices awaiting approval for one vendor,
	// used by the vendor rejection cascade.
	ListPendingByVendor(ctx context.Context, vendorID uint) ([]*Invoice, error)
	// BulkReject transitions the given invoices to rejected with a shared
	// synthesized reason, stamping the rejecting actor and time.
	BulkReject(ctx context.Context, ids []uint, reason string, actorID uint, at time.Time) error

	Find(ctx context.Context, params *FindParams) ([]*Invoice, error)
	Count(ctx context.Context, params *FindParams) (int64, error)

	ListAttachments(ctx context.Context, invoiceID uint) ([]*Attachment, error)
	UpdateAttachmentPath(ctx context.Context, attachmentID uint, path string) error

	CreateDeletionRecord(ctx context.Context, rec *DeletionRecord) error
	// DeleteWithDependents removes the invoice row together with its
	// payments, attachments and comments in the ambient transaction.
	DeleteWithDependents(ctx context.Context, id uint) error
}
