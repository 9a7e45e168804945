package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/category"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/masterdata"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/paymenttype"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/profile"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/eventbus"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

var ErrRequestNotFound = serrors.NewNotFoundError("REQUEST_NOT_FOUND", "master-data request not found")

// Archiver is the invoice-side collaborator for archive requests. It exists
// to break the dependency cycle between the master-data workflow and the
// invoice service.
type Archiver interface {
	// EnsureArchivable rejects requests targeting missing or already
	// archived invoices.
	EnsureArchivable(ctx context.Context, invoiceID uint) error
	// ArchiveApproved archives inside the ambient transaction; the workflow
	// publishes the resulting events after commit.
	ArchiveApproved(ctx context.Context, invoiceID uint, reason string, reviewerID uint) (*invoice.Invoice, error)
	// FinalizeArchive performs the archive's file work. It must be called
	// only after the archiving transaction has committed; failures are
	// logged by the implementation, never returned.
	FinalizeArchive(ctx context.Context, inv *invoice.Invoice)
}

// BulkOutcome is one request's result within a bulk disposition. Items fail
// independently; one conflict never rolls back its neighbors.
type BulkOutcome struct {
	RequestID uint
	Err       error
}

type MasterDataService struct {
	repo         masterdata.Repository
	vendors      vendor.Repository
	categories   category.Repository
	paymentTypes paymenttype.Repository
	profiles     profile.Repository
	archiver     Archiver
	validate     *validator.Validate
	publisher    eventbus.EventBus
	cfg          Config
}

func NewMasterDataService(
	repo masterdata.Repository,
	vendors vendor.Repository,
	categories category.Repository,
	paymentTypes paymenttype.Repository,
	profiles profile.Repository,
	archiver Archiver,
	publisher eventbus.EventBus,
	cfg Config,
) *MasterDataService {
	return &MasterDataService{
		repo:         repo,
		vendors:      vendors,
		categories:   categories,
		paymentTypes: paymentTypes,
		profiles:     profiles,
		archiver:     archiver,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		publisher:    publisher,
		cfg:          cfg,
	}
}

func (s *MasterDataService) GetByID(ctx context.Context, id uint) (*masterdata.Request, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *MasterDataService) Find(ctx context.Context, params *masterdata.FindParams) ([]*masterdata.Request, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsPrivileged() {
		params.Requester = &actor.ID
	}
	return s.repo.Find(ctx, params)
}

// decodeAndValidate parses the payload for its entity type and runs the
// struct validation tags.
func (s *MasterDataService) decodeAndValidate(entityType masterdata.EntityType, raw json.RawMessage) (interface{}, error) {
	p, err := masterdata.DecodePayload(entityType, raw)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(p); err != nil {
		return nil, serrors.NewValidationError("INVALID_PAYLOAD", "proposal payload is missing required fields")
	}
	return p, nil
}

// Submit files a proposal for an admin to dispose of. Archive requests are
// single-flight per invoice: a second request while one is pending conflicts.
func (s *MasterDataService) Submit(ctx context.Context, entityType masterdata.EntityType, payload json.RawMessage, notes string) (*masterdata.Request, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !entityType.IsValid() {
		return nil, serrors.NewValidationError("UNKNOWN_ENTITY_TYPE", "unknown master-data entity type")
	}
	decoded, err := s.decodeAndValidate(entityType, payload)
	if err != nil {
		return nil, err
	}

	req := &masterdata.Request{
		EntityType:  entityType,
		Status:      masterdata.StatusPendingApproval,
		RequesterID: actor.ID,
		Payload:     payload,
		Notes:       notes,
	}
	if ap, ok := decoded.(*masterdata.InvoiceArchivePayload); ok {
		req.TargetID = &ap.InvoiceID
	}

	var created *masterdata.Request
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		if req.EntityType.SingleFlight() && req.TargetID != nil {
			if err := s.archiver.EnsureArchivable(txCtx, *req.TargetID); err != nil {
				return err
			}
			pending, err := s.repo.ExistsPendingForTarget(txCtx, req.EntityType, *req.TargetID)
			if err != nil {
				return err
			}
			if pending {
				return serrors.NewConflictError("DUPLICATE_REQUEST", "a request for this target is already pending")
			}
		}
		created, err = s.repo.Create(txCtx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&masterdata.SubmittedEvent{Result: created, ActorID: actor.ID})
	return created, nil
}

// Approve applies a pending proposal. Admin edits overlay the submitted
// payload key by key before materialization; the request keeps both the
// original payload and the edits. Approving a resubmission stamps the
// predecessor's superseded-by backlink.
func (s *MasterDataService) Approve(ctx context.Context, requestID uint, adminEdits json.RawMessage) (*masterdata.Request, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}

	var (
		req      *masterdata.Request
		archived *invoice.Invoice
	)
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		req, err = s.repo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.Status != masterdata.StatusPendingApproval {
			return serrors.NewConflictError("REQUEST_ALREADY_REVIEWED", "request has already been reviewed")
		}

		merged, err := masterdata.MergeEdits(req.Payload, adminEdits)
		if err != nil {
			return err
		}
		decoded, err := s.decodeAndValidate(req.EntityType, merged)
		if err != nil {
			return err
		}

		createdID, inv, err := s.materialize(txCtx, req, decoded, actor.ID)
		if err != nil {
			return err
		}
		archived = inv

		now := time.Now()
		req.Status = masterdata.StatusApproved
		req.ReviewerID = &actor.ID
		req.ReviewedAt = &now
		req.AdminEdits = adminEdits
		req.CreatedEntityID = createdID
		if err := s.repo.Update(txCtx, req); err != nil {
			return err
		}
		if req.PreviousAttemptID != nil {
			return s.repo.MarkSuperseded(txCtx, *req.PreviousAttemptID, req.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if archived != nil {
		s.archiver.FinalizeArchive(ctx, archived)
	}
	s.publisher.Publish(&masterdata.ApprovedEvent{
		RequestID:       req.ID,
		EntityType:      req.EntityType,
		RequesterID:     req.RequesterID,
		ReviewerID:      actor.ID,
		CreatedEntityID: req.CreatedEntityID,
	})
	if archived != nil {
		s.publisher.Publish(&invoice.ArchivedEvent{
			InvoiceID: archived.ID,
			CreatorID: archived.CreatedBy,
			ActorID:   actor.ID,
			Reason:    archived.ArchiveReason,
		})
	}
	return req, nil
}

// materialize creates the approved entity. It returns the new row's id, plus
// the archived invoice when the request was an archive.
func (s *MasterDataService) materialize(ctx context.Context, req *masterdata.Request, decoded interface{}, reviewerID uint) (*uint, *invoice.Invoice, error) {
	switch p := decoded.(type) {
	case *masterdata.VendorPayload:
		name := strings.TrimSpace(p.Name)
		existing, err := s.vendors.GetByName(ctx, name)
		if err != nil && !serrors.IsNotFound(err) {
			return nil, nil, err
		}
		if existing != nil && !existing.IsDeleted() {
			return nil, nil, serrors.NewConflictError("DUPLICATE_VENDOR", "a vendor with this name already exists")
		}
		now := time.Now()
		created, err := s.vendors.Create(ctx, &vendor.Vendor{
			Name:        name,
			Address:     p.Address,
			TaxExempt:   p.TaxExempt,
			BankDetails: p.BankDetails,
			Status:      vendor.StatusApproved,
			CreatedBy:   req.RequesterID,
			ApprovedBy:  &reviewerID,
			ApprovedAt:  &now,
		})
		if err != nil {
			return nil, nil, err
		}
		return &created.ID, nil, nil

	case *masterdata.CategoryPayload:
		created, err := s.categories.Create(ctx, &category.Category{Name: strings.TrimSpace(p.Name), Active: true})
		if err != nil {
			return nil, nil, err
		}
		return &created.ID, nil, nil

	case *masterdata.PaymentTypePayload:
		created, err := s.paymentTypes.Create(ctx, &paymenttype.PaymentType{Name: strings.TrimSpace(p.Name), Active: true})
		if err != nil {
			return nil, nil, err
		}
		return &created.ID, nil, nil

	case *masterdata.InvoiceProfilePayload:
		categoryID := p.CategoryID
		if categoryID == nil {
			// A profile without a category falls back to the first active one.
			first, err := s.categories.FirstActive(ctx)
			if err != nil && !serrors.IsNotFound(err) {
				return nil, nil, err
			}
			if first != nil {
				categoryID = &first.ID
			}
		}
		created, err := s.profiles.Create(ctx, &profile.Profile{
			Name:       strings.TrimSpace(p.Name),
			VendorID:   p.VendorID,
			CategoryID: categoryID,
			Amount:     p.Amount,
			Active:     true,
		})
		if err != nil {
			return nil, nil, err
		}
		return &created.ID, nil, nil

	case *masterdata.InvoiceArchivePayload:
		inv, err := s.archiver.ArchiveApproved(ctx, p.InvoiceID, p.Reason, reviewerID)
		if err != nil {
			return nil, nil, err
		}
		return &inv.ID, inv, nil

	default:
		return nil, nil, serrors.NewValidationError("UNKNOWN_ENTITY_TYPE", "unknown master-data entity type")
	}
}

// Reject declines a pending proposal with a reason the requester will see.
func (s *MasterDataService) Reject(ctx context.Context, requestID uint, reason string) (*masterdata.Request, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.validateReason(reason); err != nil {
		return nil, err
	}

	var req *masterdata.Request
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		req, err = s.repo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.Status != masterdata.StatusPendingApproval {
			return serrors.NewConflictError("REQUEST_ALREADY_REVIEWED", "request has already been reviewed")
		}
		now := time.Now()
		req.Status = masterdata.StatusRejected
		req.ReviewerID = &actor.ID
		req.ReviewedAt = &now
		req.RejectionReason = reason
		return s.repo.Update(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&masterdata.RejectedEvent{
		RequestID:   req.ID,
		EntityType:  req.EntityType,
		RequesterID: req.RequesterID,
		ReviewerID:  actor.ID,
		Reason:      reason,
	})
	return req, nil
}

// Resubmit files a corrected proposal linked to a rejected predecessor. The
// rejected request keeps its status; approval of the new attempt stamps its
// superseded-by backlink.
func (s *MasterDataService) Resubmit(ctx context.Context, previousID uint, payload json.RawMessage, notes string) (*masterdata.Request, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var created *masterdata.Request
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		prev, err := s.repo.GetByID(txCtx, previousID)
		if err != nil {
			return err
		}
		if prev.RequesterID != actor.ID && !actor.IsPrivileged() {
			return serrors.NewAuthorizationError("Admin")
		}
		if prev.Status != masterdata.StatusRejected {
			return serrors.NewConflictError("REQUEST_NOT_REJECTED", "only rejected requests can be resubmitted")
		}
		if prev.SupersededByID != nil {
			return serrors.NewConflictError("REQUEST_SUPERSEDED", "request has already been superseded")
		}

		decoded, err := s.decodeAndValidate(prev.EntityType, payload)
		if err != nil {
			return err
		}
		req := &masterdata.Request{
			EntityType:        prev.EntityType,
			Status:            masterdata.StatusPendingApproval,
			RequesterID:       actor.ID,
			Payload:           payload,
			Notes:             notes,
			ResubmissionCount: prev.ResubmissionCount + 1,
			PreviousAttemptID: &prev.ID,
		}
		if ap, ok := decoded.(*masterdata.InvoiceArchivePayload); ok {
			req.TargetID = &ap.InvoiceID
		}
		if req.EntityType.SingleFlight() && req.TargetID != nil {
			if err := s.archiver.EnsureArchivable(txCtx, *req.TargetID); err != nil {
				return err
			}
			pending, err := s.repo.ExistsPendingForTarget(txCtx, req.EntityType, *req.TargetID)
			if err != nil {
				return err
			}
			if pending {
				return serrors.NewConflictError("DUPLICATE_REQUEST", "a request for this target is already pending")
			}
		}
		created, err = s.repo.Create(txCtx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&masterdata.SubmittedEvent{Result: created, ActorID: actor.ID})
	return created, nil
}

// BulkApprove disposes of several requests sequentially, each in its own
// transaction, collecting per-item outcomes.
func (s *MasterDataService) BulkApprove(ctx context.Context, requestIDs []uint) []BulkOutcome {
	out := make([]BulkOutcome, 0, len(requestIDs))
	for _, id := range requestIDs {
		_, err := s.Approve(ctx, id, nil)
		out = append(out, BulkOutcome{RequestID: id, Err: err})
	}
	return out
}

// BulkReject declines several requests sequentially with a shared reason.
func (s *MasterDataService) BulkReject(ctx context.Context, requestIDs []uint, reason string) []BulkOutcome {
	out := make([]BulkOutcome, 0, len(requestIDs))
	for _, id := range requestIDs {
		_, err := s.Reject(ctx, id, reason)
		out = append(out, BulkOutcome{RequestID: id, Err: err})
	}
	return out
}
