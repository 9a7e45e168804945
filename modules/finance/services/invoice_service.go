package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/category"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/masterdata"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/payment"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/profile"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/storage"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/withholding"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/eventbus"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

var (
	ErrInvoiceNotFound = serrors.NewNotFoundError("INVOICE_NOT_FOUND", "invoice not found")
	ErrVendorNotFound  = serrors.NewNotFoundError("VENDOR_NOT_FOUND", "vendor not found")
)

// ArchiveOutcome reports which of the two archive paths ran: a privileged
// actor archives directly (Invoice set), a standard user's call becomes a
// pending master-data request (Request set, Requested true).
type ArchiveOutcome struct {
	Invoice   *invoice.Invoice
	Request   *masterdata.Request
	Requested bool
}

type InvoiceService struct {
	repo       invoice.Repository
	vendors    vendor.Repository
	payments   payment.Repository
	requests   masterdata.Repository
	categories category.Repository
	profiles   profile.Repository
	relocator  storage.Relocator
	publisher  eventbus.EventBus
	log        *logrus.Logger
	cfg        Config
}

func NewInvoiceService(
	repo invoice.Repository,
	vendors vendor.Repository,
	payments payment.Repository,
	requests masterdata.Repository,
	categories category.Repository,
	profiles profile.Repository,
	relocator storage.Relocator,
	publisher eventbus.EventBus,
	log *logrus.Logger,
	cfg Config,
) *InvoiceService {
	return &InvoiceService{
		repo:       repo,
		vendors:    vendors,
		payments:   payments,
		requests:   requests,
		categories: categories,
		profiles:   profiles,
		relocator:  relocator,
		publisher:  publisher,
		log:        log,
		cfg:        cfg,
	}
}

func (s *InvoiceService) GetByID(ctx context.Context, id uint) (*invoice.Invoice, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *InvoiceService) validate(ctx context.Context, inv *invoice.Invoice) error {
	if strings.TrimSpace(inv.Number) == "" {
		return serrors.NewFieldRequiredError("number")
	}
	if !inv.Amount.IsPositive() {
		return serrors.NewValidationError("INVALID_AMOUNT", "amount must be positive")
	}
	if strings.TrimSpace(inv.CurrencyCode) == "" {
		return serrors.NewFieldRequiredError("currency_code")
	}
	if inv.DueDate != nil && inv.DueDate.Before(inv.InvoiceDate) {
		return serrors.NewValidationError("INVALID_DUE_DATE", "due date precedes the invoice date")
	}
	if inv.PeriodStart != nil && inv.PeriodEnd != nil && inv.PeriodEnd.Before(*inv.PeriodStart) {
		return serrors.NewValidationError("INVALID_PERIOD", "period end precedes period start")
	}
	if inv.TDSApplicable {
		if inv.TDSRate == nil {
			return serrors.NewFieldRequiredError("tds_rate")
		}
		if inv.TDSRate.IsNegative() || inv.TDSRate.GreaterThan(decimal.NewFromInt(100)) {
			return serrors.NewValidationError("INVALID_TDS_RATE", "withholding rate must be between 0 and 100")
		}
		if !inv.TDSRounding.IsValid() {
			return serrors.NewValidationError("INVALID_ROUNDING_POLICY", "unknown rounding policy")
		}
	}

	v, err := s.vendors.GetByID(ctx, inv.VendorID)
	if err != nil {
		return err
	}
	if v.IsDeleted() {
		return serrors.NewConflictError("VENDOR_DELETED", "vendor has been deleted")
	}
	if v.Status == vendor.StatusRejected {
		return serrors.NewConflictError("VENDOR_REJECTED", "vendor has been rejected")
	}

	if inv.CategoryID != nil {
		c, err := s.categories.GetByID(ctx, *inv.CategoryID)
		if err != nil {
			if serrors.IsNotFound(err) {
				return serrors.NewValidationError("INVALID_CATEGORY", "referenced category does not exist")
			}
			return err
		}
		if !c.Active {
			return serrors.NewValidationError("INACTIVE_CATEGORY", "referenced category is not active")
		}
	}
	if inv.ProfileID != nil {
		p, err := s.profiles.GetByID(ctx, *inv.ProfileID)
		if err != nil {
			if serrors.IsNotFound(err) {
				return serrors.NewValidationError("INVALID_PROFILE", "referenced invoice profile does not exist")
			}
			return err
		}
		if !p.Active {
			return serrors.NewValidationError("INACTIVE_PROFILE", "referenced invoice profile is not active")
		}
	}
	return nil
}

// Submit records a new invoice. Privileged actors create it directly payable;
// a standard user's invoice enters the approval queue.
func (s *InvoiceService) Submit(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	inv.Number = strings.TrimSpace(inv.Number)
	inv.CurrencyCode = strings.ToUpper(strings.TrimSpace(inv.CurrencyCode))
	if !inv.TDSApplicable {
		inv.TDSRate = nil
	}
	if inv.TDSRounding == "" {
		inv.TDSRounding = withholding.PolicyNone
	}
	inv.CreatedBy = actor.ID
	if actor.IsPrivileged() {
		inv.Status = invoice.StatusUnpaid
	} else {
		inv.Status = invoice.StatusPendingApproval
	}

	var created *invoice.Invoice
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		if err := s.validate(txCtx, inv); err != nil {
			return err
		}
		exists, err := s.repo.ExistsByNumberAndVendor(txCtx, inv.Number, inv.VendorID, 0)
		if err != nil {
			return err
		}
		if exists {
			return serrors.NewConflictError("DUPLICATE_INVOICE", "an invoice with this number already exists for the vendor")
		}
		created, err = s.repo.Create(txCtx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&invoice.CreatedEvent{
		Result:          created,
		ActorID:         actor.ID,
		PendingApproval: created.Status == invoice.StatusPendingApproval,
	})
	return created, nil
}

// Edit updates an invoice's own fields. A standard user may only edit their
// own invoices, and the edit sends the invoice back through review; a
// privileged actor may edit any non-archived invoice without changing its
// status. Audit stamps are never editable.
func (s *InvoiceService) Edit(ctx context.Context, upd *invoice.Invoice) (*invoice.Invoice, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var result *invoice.Invoice
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetByID(txCtx, upd.ID)
		if err != nil {
			return err
		}
		if existing.Archived {
			return serrors.NewConflictError("INVOICE_ARCHIVED", "archived invoices cannot be edited")
		}
		if !actor.IsPrivileged() {
			if existing.CreatedBy != actor.ID {
				return serrors.NewAuthorizationError("Admin")
			}
			// A creator's edit of an already reviewed invoice re-enters the
			// approval queue.
			existing.Status = invoice.StatusPendingApproval
		}

		existing.Number = strings.TrimSpace(upd.Number)
		existing.VendorID = upd.VendorID
		existing.CategoryID = upd.CategoryID
		existing.ProfileID = upd.ProfileID
		existing.CurrencyCode = strings.ToUpper(strings.TrimSpace(upd.CurrencyCode))
		existing.Amount = upd.Amount
		existing.InvoiceDate = upd.InvoiceDate
		existing.DueDate = upd.DueDate
		existing.PeriodStart = upd.PeriodStart
		existing.PeriodEnd = upd.PeriodEnd
		existing.TDSApplicable = upd.TDSApplicable
		existing.TDSRate = upd.TDSRate
		existing.TDSRounding = upd.TDSRounding
		if !existing.TDSApplicable {
			existing.TDSRate = nil
		}
		if existing.TDSRounding == "" {
			existing.TDSRounding = withholding.PolicyNone
		}

		if err := s.validate(txCtx, existing); err != nil {
			return err
		}
		exists, err := s.repo.ExistsByNumberAndVendor(txCtx, existing.Number, existing.VendorID, existing.ID)
		if err != nil {
			return err
		}
		if exists {
			return serrors.NewConflictError("DUPLICATE_INVOICE", "an invoice with this number already exists for the vendor")
		}

		result = existing
		return s.repo.Update(txCtx, existing)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Approve moves a pending invoice into the payable set. An invoice whose
// vendor is itself awaiting approval cannot be approved alone; that path
// goes through VendorService.ApproveJointly.
func (s *InvoiceService) Approve(ctx context.Context, id uint) (*invoice.Invoice, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}

	var inv *invoice.Invoice
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		inv, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if inv.Status != invoice.StatusPendingApproval {
			return serrors.NewConflictError("INVOICE_NOT_PENDING", "invoice is not pending approval")
		}
		v, err := s.vendors.GetByID(txCtx, inv.VendorID)
		if err != nil {
			return err
		}
		if v.Status == vendor.StatusPendingApproval {
			return serrors.NewConflictError("VENDOR_PENDING_APPROVAL", "vendor is awaiting approval; approve the vendor and invoice jointly")
		}
		if v.Status == vendor.StatusRejected {
			return serrors.NewConflictError("VENDOR_REJECTED", "vendor has been rejected")
		}
		inv.Status = invoice.StatusUnpaid
		return s.repo.Update(txCtx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&invoice.ApprovedEvent{
		InvoiceID: inv.ID,
		CreatorID: inv.CreatedBy,
		ActorID:   actor.ID,
	})
	return inv, nil
}

// Reject declines a pending invoice with a reason the creator will see.
func (s *InvoiceService) Reject(ctx context.Context, id uint, reason string) (*invoice.Invoice, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.validateReason(reason); err != nil {
		return nil, err
	}

	var inv *invoice.Invoice
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		inv, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if inv.Status != invoice.StatusPendingApproval {
			return serrors.NewConflictError("INVOICE_NOT_PENDING", "invoice is not pending approval")
		}
		now := time.Now()
		inv.Status = invoice.StatusRejected
		inv.RejectedBy = &actor.ID
		inv.RejectedAt = &now
		inv.RejectionReason = reason
		return s.repo.Update(txCtx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&invoice.RejectedEvent{
		InvoiceID: inv.ID,
		CreatorID: inv.CreatedBy,
		ActorID:   actor.ID,
		Reason:    reason,
	})
	return inv, nil
}

// Hold suspends payment activity on a payable invoice.
func (s *InvoiceService) Hold(ctx context.Context, id uint, reason string) (*invoice.Invoice, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.validateReason(reason); err != nil {
		return nil, err
	}

	var inv *invoice.Invoice
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		inv, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if inv.Archived {
			return serrors.NewConflictError("INVOICE_ARCHIVED", "archived invoices cannot be held")
		}
		if inv.Status != invoice.StatusUnpaid && inv.Status != invoice.StatusPartial {
			return serrors.NewConflictError("INVOICE_NOT_PAYABLE", "only unpaid or partially paid invoices can be held")
		}
		now := time.Now()
		inv.Status = invoice.StatusOnHold
		inv.HeldBy = &actor.ID
		inv.HeldAt = &now
		inv.HoldReason = reason
		return s.repo.Update(txCtx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&invoice.HeldEvent{
		InvoiceID: inv.ID,
		CreatorID: inv.CreatedBy,
		ActorID:   actor.ID,
		Reason:    reason,
	})
	return inv, nil
}

// ReleaseHold returns a held invoice to the payable set. The restored status
// is derived from its approved payments, not remembered from before the hold.
func (s *InvoiceService) ReleaseHold(ctx context.Context, id uint) (*invoice.Invoice, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}

	var inv *invoice.Invoice
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		inv, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if inv.Status != invoice.StatusOnHold {
			return serrors.NewConflictError("INVOICE_NOT_HELD", "invoice is not on hold")
		}
		total, err := s.payments.ApprovedTotal(txCtx, id)
		if err != nil {
			return err
		}
		inv.Status = settledStatus(inv.Amount, total)
		inv.HeldBy = nil
		inv.HeldAt = nil
		inv.HoldReason = ""
		return s.repo.Update(txCtx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&invoice.HoldReleasedEvent{
		InvoiceID: inv.ID,
		CreatorID: inv.CreatedBy,
		ActorID:   actor.ID,
	})
	return inv, nil
}

// Archive retires an invoice from the active worklist. Privileged actors
// archive directly; a standard user's call becomes a pending master-data
// request for an admin to dispose of.
func (s *InvoiceService) Archive(ctx context.Context, id uint, reason string) (*ArchiveOutcome, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.validateReason(reason); err != nil {
		return nil, err
	}

	if actor.IsPrivileged() {
		var inv *invoice.Invoice
		err = composables.InTx(ctx, func(txCtx context.Context) error {
			inv, err = s.archiveInTx(txCtx, id, reason, actor.ID)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.FinalizeArchive(ctx, inv)
		s.publisher.Publish(&invoice.ArchivedEvent{
			InvoiceID: inv.ID,
			CreatorID: inv.CreatedBy,
			ActorID:   actor.ID,
			Reason:    reason,
		})
		return &ArchiveOutcome{Invoice: inv}, nil
	}

	raw, err := json.Marshal(masterdata.InvoiceArchivePayload{InvoiceID: id, Reason: reason})
	if err != nil {
		return nil, err
	}
	var req *masterdata.Request
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		if err := s.EnsureArchivable(txCtx, id); err != nil {
			return err
		}
		pending, err := s.requests.ExistsPendingForTarget(txCtx, masterdata.EntityInvoiceArchive, id)
		if err != nil {
			return err
		}
		if pending {
			return serrors.NewConflictError("DUPLICATE_REQUEST", "an archive request for this invoice is already pending")
		}
		req, err = s.requests.Create(txCtx, &masterdata.Request{
			EntityType:  masterdata.EntityInvoiceArchive,
			Status:      masterdata.StatusPendingApproval,
			RequesterID: actor.ID,
			Payload:     raw,
			TargetID:    &id,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&masterdata.SubmittedEvent{Result: req, ActorID: actor.ID})
	return &ArchiveOutcome{Request: req, Requested: true}, nil
}

// EnsureArchivable reports whether an archive request may target the invoice.
func (s *InvoiceService) EnsureArchivable(ctx context.Context, id uint) error {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inv.Archived {
		return serrors.NewConflictError("INVOICE_ARCHIVED", "invoice is already archived")
	}
	return nil
}

// ArchiveApproved performs the archive on behalf of an approved master-data
// request, inside the caller's transaction. The caller publishes the events
// and runs FinalizeArchive once its transaction has committed.
func (s *InvoiceService) ArchiveApproved(ctx context.Context, id uint, reason string, reviewerID uint) (*invoice.Invoice, error) {
	return s.archiveInTx(ctx, id, reason, reviewerID)
}

func (s *InvoiceService) archiveInTx(ctx context.Context, id uint, reason string, actorID uint) (*invoice.Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Archived {
		return nil, serrors.NewConflictError("INVOICE_ARCHIVED", "invoice is already archived")
	}
	now := time.Now()
	inv.Archived = true
	inv.ArchivedBy = &actorID
	inv.ArchivedAt = &now
	inv.ArchiveReason = reason
	return inv, s.repo.Update(ctx, inv)
}

// FinalizeArchive does the file work for an archived invoice: attachments
// move under the archive root and a summary document is written beside them.
// It must run only after the archiving transaction has committed; a rollback
// must leave every file where it was.
func (s *InvoiceService) FinalizeArchive(ctx context.Context, inv *invoice.Invoice) {
	s.relocateAttachments(ctx, inv.ID, s.cfg.ArchivePath)
	s.writeArchiveSummary(ctx, inv)
}

func (s *InvoiceService) writeArchiveSummary(ctx context.Context, inv *invoice.Invoice) {
	doc, err := json.MarshalIndent(map[string]interface{}{
		"invoice_id":    inv.ID,
		"number":        inv.Number,
		"vendor_id":     inv.VendorID,
		"amount":        inv.Amount,
		"currency_code": inv.CurrencyCode,
		"archived_by":   inv.ArchivedBy,
		"archived_at":   inv.ArchivedAt,
		"reason":        inv.ArchiveReason,
	}, "", "  ")
	if err != nil {
		s.log.WithError(err).WithField("invoice_id", inv.ID).Warn("encoding archive summary failed")
		return
	}
	dst := filepath.Join(s.cfg.ArchivePath, fmt.Sprintf("invoice-%d.json", inv.ID))
	if err := s.relocator.Write(ctx, doc, dst); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"invoice_id":  inv.ID,
			"destination": dst,
		}).Warn("writing archive summary failed")
	}
}

// relocateAttachments moves an invoice's files under destRoot. Failures are
// logged and skipped; the invoice transition never depends on file moves.
// Callers run it only after the owning transaction has committed.
func (s *InvoiceService) relocateAttachments(ctx context.Context, invoiceID uint, destRoot string) {
	attachments, err := s.repo.ListAttachments(ctx, invoiceID)
	if err != nil {
		s.log.WithError(err).WithField("invoice_id", invoiceID).Warn("listing attachments for relocation failed")
		return
	}
	for _, a := range attachments {
		dst := filepath.Join(destRoot, filepath.Base(a.Path))
		if err := s.relocator.Move(ctx, a.Path, dst); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"invoice_id":    invoiceID,
				"attachment_id": a.ID,
				"source":        a.Path,
			}).Warn("attachment relocation failed")
			continue
		}
		if err := s.repo.UpdateAttachmentPath(ctx, a.ID, dst); err != nil {
			s.log.WithError(err).WithField("attachment_id", a.ID).Warn("recording relocated attachment path failed")
		}
	}
}

// PermanentlyDelete removes an invoice and its dependent rows. A tombstone
// with the invoice's identifying facts is written first so the audit trail
// survives the row.
func (s *InvoiceService) PermanentlyDelete(ctx context.Context, id uint, reason string) error {
	actor, err := requireSuperAdmin(ctx)
	if err != nil {
		return err
	}
	if err := s.cfg.validateReason(reason); err != nil {
		return err
	}

	var (
		inv         *invoice.Invoice
		attachments []*invoice.Attachment
	)
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		inv, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		// The attachment list is captured here; the rows are gone once the
		// delete commits.
		attachments, err = s.repo.ListAttachments(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.repo.CreateDeletionRecord(txCtx, &invoice.DeletionRecord{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			VendorID:      inv.VendorID,
			Amount:        inv.Amount,
			Reason:        reason,
			DeletedBy:     actor.ID,
			DeletedAt:     time.Now(),
		}); err != nil {
			return err
		}
		return s.repo.DeleteWithDependents(txCtx, id)
	})
	if err != nil {
		return err
	}

	// Files move only after the delete has committed; a rollback must leave
	// every attachment in place.
	for _, a := range attachments {
		dst := filepath.Join(s.cfg.DeletedPath, filepath.Base(a.Path))
		if err := s.relocator.Move(ctx, a.Path, dst); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"invoice_id":    inv.ID,
				"attachment_id": a.ID,
				"source":        a.Path,
			}).Warn("attachment relocation failed")
		}
	}

	s.publisher.Publish(&invoice.DeletedEvent{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		ActorID:       actor.ID,
		Reason:        reason,
	})
	return nil
}

// settledStatus derives the persisted payment status from an approved total.
func settledStatus(amount, approvedTotal decimal.Decimal) invoice.Status {
	switch {
	case approvedTotal.GreaterThanOrEqual(amount):
		return invoice.StatusPaid
	case approvedTotal.IsPositive():
		return invoice.StatusPartial
	default:
		return invoice.StatusUnpaid
	}
}
