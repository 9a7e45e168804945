package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/eventbus"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

// ApprovalGate tells the caller whether approving an invoice must also
// approve its vendor. It is advisory; ApproveJointly re-checks both states
// inside its own transaction.
type ApprovalGate struct {
	Required   bool
	VendorID   uint
	VendorName string
}

type VendorService struct {
	repo      vendor.Repository
	invoices  invoice.Repository
	publisher eventbus.EventBus
	cfg       Config
}

func NewVendorService(repo vendor.Repository, invoices invoice.Repository, publisher eventbus.EventBus, cfg Config) *VendorService {
	return &VendorService{repo: repo, invoices: invoices, publisher: publisher, cfg: cfg}
}

func (s *VendorService) GetByID(ctx context.Context, id uint) (*vendor.Vendor, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *VendorService) GetAll(ctx context.Context) ([]*vendor.Vendor, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetAll(ctx)
}

// Create registers a vendor directly, skipping the proposal workflow. Names
// are unique regardless of case.
func (s *VendorService) Create(ctx context.Context, v *vendor.Vendor) (*vendor.Vendor, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return nil, serrors.NewFieldRequiredError("name")
	}

	var created *vendor.Vendor
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetByName(txCtx, v.Name)
		if err != nil && !serrors.IsNotFound(err) {
			return err
		}
		if existing != nil && !existing.IsDeleted() {
			return serrors.NewConflictError("DUPLICATE_VENDOR", "a vendor with this name already exists")
		}
		now := time.Now()
		v.Status = vendor.StatusApproved
		v.CreatedBy = actor.ID
		v.ApprovedBy = &actor.ID
		v.ApprovedAt = &now
		created, err = s.repo.Create(txCtx, v)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&vendor.ApprovedEvent{
		VendorID:  created.ID,
		CreatorID: created.CreatedBy,
		ActorID:   actor.ID,
	})
	return created, nil
}

// CheckApprovalGate reports whether approving the given invoice is gated on
// its vendor's own approval.
func (s *VendorService) CheckApprovalGate(ctx context.Context, invoiceID uint) (*ApprovalGate, error) {
	if _, err := requirePrivileged(ctx); err != nil {
		return nil, err
	}
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.GetByID(ctx, inv.VendorID)
	if err != nil {
		return nil, err
	}
	return &ApprovalGate{
		Required:   v.Status == vendor.StatusPendingApproval,
		VendorID:   v.ID,
		VendorName: v.Name,
	}, nil
}

// ApproveJointly approves a pending vendor and one of its pending invoices in
// a single transaction. Both states are re-read and re-checked inside the
// transaction, so a concurrent vendor rejection makes the whole call fail
// with neither side changed.
func (s *VendorService) ApproveJointly(ctx context.Context, invoiceID uint) (*vendor.Vendor, *invoice.Invoice, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		v   *vendor.Vendor
		inv *invoice.Invoice
	)
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		inv, err = s.invoices.GetByID(txCtx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != invoice.StatusPendingApproval {
			return serrors.NewConflictError("INVOICE_NOT_PENDING", "invoice is not pending approval")
		}
		v, err = s.repo.GetByID(txCtx, inv.VendorID)
		if err != nil {
			return err
		}
		if v.Status != vendor.StatusPendingApproval {
			return serrors.NewConflictError("VENDOR_NOT_PENDING", "vendor is not pending approval")
		}

		now := time.Now()
		v.Status = vendor.StatusApproved
		v.ApprovedBy = &actor.ID
		v.ApprovedAt = &now
		if err := s.repo.Update(txCtx, v); err != nil {
			return err
		}
		inv.Status = invoice.StatusUnpaid
		return s.invoices.Update(txCtx, inv)
	})
	if err != nil {
		return nil, nil, err
	}

	s.publisher.Publish(&vendor.JointlyApprovedEvent{
		VendorID:  v.ID,
		InvoiceID: inv.ID,
		CreatorID: inv.CreatedBy,
		ActorID:   actor.ID,
	})
	return v, inv, nil
}

// Approve reviews a pending vendor. A vendor reviews exactly once; repeated
// approval is a state conflict.
func (s *VendorService) Approve(ctx context.Context, id uint) (*vendor.Vendor, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}

	var v *vendor.Vendor
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		v, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if v.Status != vendor.StatusPendingApproval {
			return serrors.NewConflictError("VENDOR_ALREADY_REVIEWED", "vendor has already been reviewed")
		}
		now := time.Now()
		v.Status = vendor.StatusApproved
		v.ApprovedBy = &actor.ID
		v.ApprovedAt = &now
		return s.repo.Update(txCtx, v)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&vendor.ApprovedEvent{
		VendorID:  v.ID,
		CreatorID: v.CreatedBy,
		ActorID:   actor.ID,
	})
	return v, nil
}

// Reject declines a pending vendor and cascades: every invoice still pending
// approval for that vendor is rejected in the same transaction with a reason
// naming the vendor. Invoices already payable or paid are untouched.
func (s *VendorService) Reject(ctx context.Context, id uint, reason string) (*vendor.Vendor, []uint, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := s.cfg.validateReason(reason); err != nil {
		return nil, nil, err
	}

	var (
		v        *vendor.Vendor
		swept    []*invoice.Invoice
		sweptIDs []uint
	)
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		v, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if v.Status != vendor.StatusPendingApproval {
			return serrors.NewConflictError("VENDOR_ALREADY_REVIEWED", "vendor has already been reviewed")
		}
		v.Status = vendor.StatusRejected
		v.RejectionReason = reason
		if err := s.repo.Update(txCtx, v); err != nil {
			return err
		}

		swept, err = s.invoices.ListPendingByVendor(txCtx, id)
		if err != nil {
			return err
		}
		if len(swept) == 0 {
			return nil
		}
		sweptIDs = make([]uint, 0, len(swept))
		for _, inv := range swept {
			sweptIDs = append(sweptIDs, inv.ID)
		}
		cascadeReason := fmt.Sprintf("Vendor %q was rejected: %s", v.Name, reason)
		return s.invoices.BulkReject(txCtx, sweptIDs, cascadeReason, actor.ID, time.Now())
	})
	if err != nil {
		return nil, nil, err
	}

	s.publisher.Publish(&vendor.RejectedEvent{
		VendorID:           v.ID,
		CreatorID:          v.CreatedBy,
		ActorID:            actor.ID,
		Reason:             reason,
		RejectedInvoiceIDs: sweptIDs,
	})
	cascadeReason := fmt.Sprintf("Vendor %q was rejected: %s", v.Name, reason)
	for _, inv := range swept {
		s.publisher.Publish(&invoice.RejectedEvent{
			InvoiceID: inv.ID,
			CreatorID: inv.CreatedBy,
			ActorID:   actor.ID,
			Reason:    cascadeReason,
		})
	}
	return v, sweptIDs, nil
}
