package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/payment"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/withholding"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/eventbus"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

var ErrPaymentNotFound = serrors.NewNotFoundError("PAYMENT_NOT_FOUND", "payment not found")

// Settlement is the derived payment position of one invoice. Remaining never
// goes below zero even when approved payments exceed the invoice amount.
type Settlement struct {
	ApprovedTotal        decimal.Decimal
	Remaining            decimal.Decimal
	EffectiveStatus      invoice.Status
	HasUnreviewedPayment bool
}

type PaymentService struct {
	repo      payment.Repository
	invoices  invoice.Repository
	publisher eventbus.EventBus
	cfg       Config
}

func NewPaymentService(repo payment.Repository, invoices invoice.Repository, publisher eventbus.EventBus, cfg Config) *PaymentService {
	return &PaymentService{repo: repo, invoices: invoices, publisher: publisher, cfg: cfg}
}

func (s *PaymentService) ListByInvoice(ctx context.Context, invoiceID uint) ([]*payment.Payment, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListByInvoice(ctx, invoiceID)
}

// Record registers a payment against an invoice. The withheld amount and
// rounding policy in force are captured on the payment row at this moment; a
// later change to the invoice's withholding settings never alters them.
// Privileged actors record approved payments directly; a standard user's
// payment awaits review.
func (s *PaymentService) Record(ctx context.Context, invoiceID uint, amount decimal.Decimal, paidAt time.Time, reference string) (*payment.Payment, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, serrors.NewValidationError("INVALID_AMOUNT", "payment amount must be positive")
	}

	var created *payment.Payment
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		inv, err := s.invoices.GetByID(txCtx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Archived {
			return serrors.NewConflictError("INVOICE_ARCHIVED", "archived invoices do not accept payments")
		}
		switch inv.Status {
		case invoice.StatusPendingApproval:
			return serrors.NewConflictError("INVOICE_NOT_APPROVED", "invoice is awaiting approval")
		case invoice.StatusRejected:
			return serrors.NewConflictError("INVOICE_REJECTED", "rejected invoices do not accept payments")
		case invoice.StatusOnHold:
			return serrors.NewConflictError("INVOICE_ON_HOLD", "invoice is on hold")
		}

		var rate *decimal.Decimal
		if inv.TDSApplicable {
			rate = inv.TDSRate
		}
		calc := withholding.Calculate(amount, rate, inv.TDSRounding, inv.CurrencyCode)

		p := &payment.Payment{
			InvoiceID: invoiceID,
			Amount:    amount,
			PaidAt:    paidAt,
			Reference: reference,
			Withheld:  calc.Withheld,
			Rounding:  inv.TDSRounding,
			Status:    payment.StatusPending,
			CreatedBy: actor.ID,
		}
		if actor.IsPrivileged() {
			now := time.Now()
			p.Status = payment.StatusApproved
			p.ReviewedBy = &actor.ID
			p.ReviewedAt = &now
		}
		created, err = s.repo.Create(txCtx, p)
		if err != nil {
			return err
		}
		if created.Status == payment.StatusApproved {
			return s.persistSettledStatus(txCtx, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&payment.RecordedEvent{
		Result:        created,
		ActorID:       actor.ID,
		PendingReview: created.Status == payment.StatusPending,
	})
	return created, nil
}

// Review approves or rejects a pending payment. Each payment is reviewed at
// most once.
func (s *PaymentService) Review(ctx context.Context, paymentID uint, approve bool, note string) (*payment.Payment, error) {
	actor, err := requirePrivileged(ctx)
	if err != nil {
		return nil, err
	}
	if !approve {
		if err := s.cfg.validateReason(note); err != nil {
			return nil, err
		}
	}

	var p *payment.Payment
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		p, err = s.repo.GetByID(txCtx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != payment.StatusPending {
			return serrors.NewConflictError("PAYMENT_ALREADY_REVIEWED", "payment has already been reviewed")
		}
		now := time.Now()
		if approve {
			p.Status = payment.StatusApproved
		} else {
			p.Status = payment.StatusRejected
		}
		p.ReviewedBy = &actor.ID
		p.ReviewedAt = &now
		p.ReviewNote = note
		if err := s.repo.Update(txCtx, p); err != nil {
			return err
		}
		if !approve {
			return nil
		}
		inv, err := s.invoices.GetByID(txCtx, p.InvoiceID)
		if err != nil {
			return err
		}
		return s.persistSettledStatus(txCtx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&payment.ReviewedEvent{
		PaymentID: p.ID,
		InvoiceID: p.InvoiceID,
		CreatorID: p.CreatedBy,
		ActorID:   actor.ID,
		Approved:  approve,
		Note:      note,
	})
	return p, nil
}

// persistSettledStatus refreshes the stored unpaid/partial/paid status after
// the approved set changed. Statuses outside the payable set are left alone.
func (s *PaymentService) persistSettledStatus(ctx context.Context, inv *invoice.Invoice) error {
	if !inv.Status.AcceptsPayments() {
		return nil
	}
	total, err := s.repo.ApprovedTotal(ctx, inv.ID)
	if err != nil {
		return err
	}
	next := settledStatus(inv.Amount, total)
	if next == inv.Status {
		return nil
	}
	inv.Status = next
	return s.invoices.Update(ctx, inv)
}

func (s *PaymentService) ApprovedTotal(ctx context.Context, invoiceID uint) (decimal.Decimal, error) {
	return s.repo.ApprovedTotal(ctx, invoiceID)
}

// RemainingBalance is the invoice amount less approved payments, floored at
// zero.
func (s *PaymentService) RemainingBalance(ctx context.Context, invoiceID uint) (decimal.Decimal, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := s.repo.ApprovedTotal(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	return remaining(inv.Amount, total), nil
}

// Reconcile derives the settlement position for one invoice.
func (s *PaymentService) Reconcile(ctx context.Context, inv *invoice.Invoice) (*Settlement, error) {
	total, err := s.repo.ApprovedTotal(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.HasPending(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return settle(inv, total, pending), nil
}

// ReconcileAll derives settlements for a batch of invoices using grouped
// aggregates, for worklist enrichment.
func (s *PaymentService) ReconcileAll(ctx context.Context, invoices []*invoice.Invoice) (map[uint]*Settlement, error) {
	ids := make([]uint, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	totals, err := s.repo.ApprovedTotals(ctx, ids)
	if err != nil {
		return nil, err
	}
	pendingFlags, err := s.repo.PendingFlags(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]*Settlement, len(invoices))
	for _, inv := range invoices {
		out[inv.ID] = settle(inv, totals[inv.ID], pendingFlags[inv.ID])
	}
	return out, nil
}

func settle(inv *invoice.Invoice, approvedTotal decimal.Decimal, hasPending bool) *Settlement {
	effective := inv.Status
	if inv.Status.AcceptsPayments() {
		effective = settledStatus(inv.Amount, approvedTotal)
	}
	return &Settlement{
		ApprovedTotal:        approvedTotal,
		Remaining:            remaining(inv.Amount, approvedTotal),
		EffectiveStatus:      effective,
		HasUnreviewedPayment: hasPending,
	}
}

func remaining(amount, approvedTotal decimal.Decimal) decimal.Decimal {
	r := amount.Sub(approvedTotal)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
