package masterdata

import (
	"context"
	"encoding/json"
	"time"
)

type EntityType string

const (
	EntityVendor         EntityType = "vendor"
	EntityCategory       EntityType = "category"
	EntityPaymentType    EntityType = "payment_type"
	EntityInvoiceProfile EntityType = "invoice_profile"
	EntityInvoiceArchive EntityType = "invoice_archive"
)

func (t EntityType) IsValid() bool {
	switch t {
	case EntityVendor, EntityCategory, EntityPaymentType, EntityInvoiceProfile, EntityInvoiceArchive:
		return true
	}
	return false
}

// SingleFlight reports whether at most one pending request per target may
// exist at a time.
func (t EntityType) SingleFlight() bool {
	return t == EntityInvoiceArchive
}

type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

// Request is a proposal to create master data (or archive an invoice),
// pending admin disposition. Approving a resubmission stamps the
// predecessor's SupersededByID rather than deleting it, keeping the audit
// chain traceable.
type Request struct {
	ID         uint
	EntityType EntityType
	Status     Status

	RequesterID uint
	ReviewerID  *uint
	ReviewedAt  *time.Time

	Payload    json.RawMessage
	AdminEdits json.RawMessage
	Notes      string

	RejectionReason string

	ResubmissionCount int
	PreviousAttemptID *uint
	SupersededByID    *uint

	// TargetID identifies the subject entity for single-flight entity types
	// (the invoice id for archive requests).
	TargetID *uint
	// CreatedEntityID is stamped at approval with the materialized row's id.
	CreatedEntityID *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}

type FindParams struct {
	EntityType *EntityType
	Status     *Status
	Requester  *uint
	Limit      int
	Offset     int
}

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Request, error)
	Create(ctx context.Context, r *Request) (*Request, error)
	Update(ctx context.Context, r *Request) error
	// ExistsPendingForTarget backs the single-flight rule.
	ExistsPendingForTarget(ctx context.Context, entityType EntityType, targetID uint) (bool, error)
	MarkSuperseded(ctx context.Context, id, supersededByID uint) error
	Find(ctx context.Context, params *FindParams) ([]*Request, error)
}
