// Package handlers hosts event-bus subscribers. Notification delivery is
// best-effort: handlers run after the owning transaction commits and their
// failures never affect the committed transition.
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/aggregates/user"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/masterdata"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/payment"
	"github.com/ledgerdesk/ledgerdesk/pkg/eventbus"
)

// NotificationHandler turns domain events into notification intents. The
// current sink is the structured log; a mail or chat transport can replace
// it behind the same subscriptions.
type NotificationHandler struct {
	log *logrus.Logger
}

func RegisterNotificationHandler(bus eventbus.EventBus, log *logrus.Logger) *NotificationHandler {
	h := &NotificationHandler{log: log}
	bus.Subscribe(h.onInvoiceCreated)
	bus.Subscribe(h.onInvoiceApproved)
	bus.Subscribe(h.onInvoiceRejected)
	bus.Subscribe(h.onInvoiceHeld)
	bus.Subscribe(h.onInvoiceHoldReleased)
	bus.Subscribe(h.onInvoiceArchived)
	bus.Subscribe(h.onInvoiceDeleted)
	bus.Subscribe(h.onVendorApproved)
	bus.Subscribe(h.onVendorRejected)
	bus.Subscribe(h.onJointApproval)
	bus.Subscribe(h.onPaymentRecorded)
	bus.Subscribe(h.onPaymentReviewed)
	bus.Subscribe(h.onRequestSubmitted)
	bus.Subscribe(h.onRequestApproved)
	bus.Subscribe(h.onRequestRejected)
	bus.Subscribe(h.onUserDemoted)
	bus.Subscribe(h.onUserDeactivated)
	return h
}

func (h *NotificationHandler) notify(event string, targetUser uint, fields logrus.Fields) {
	fields["event"] = event
	fields["notify_user"] = targetUser
	h.log.WithFields(fields).Info("notification")
}

func (h *NotificationHandler) onInvoiceCreated(e *invoice.CreatedEvent) {
	if !e.PendingApproval {
		return
	}
	// Admins triage pending invoices from the worklist; the creator gets a
	// submission receipt.
	h.notify("invoice.submitted", e.ActorID, logrus.Fields{
		"invoice_id": e.Result.ID,
		"number":     e.Result.Number,
	})
}

func (h *NotificationHandler) onInvoiceApproved(e *invoice.ApprovedEvent) {
	h.notify("invoice.approved", e.CreatorID, logrus.Fields{
		"invoice_id": e.InvoiceID,
		"actor_id":   e.ActorID,
	})
}

func (h *NotificationHandler) onInvoiceRejected(e *invoice.RejectedEvent) {
	h.notify("invoice.rejected", e.CreatorID, logrus.Fields{
		"invoice_id": e.InvoiceID,
		"actor_id":   e.ActorID,
		"reason":     e.Reason,
	})
}

func (h *NotificationHandler) onInvoiceHeld(e *invoice.HeldEvent) {
	h.notify("invoice.held", e.CreatorID, logrus.Fields{
		"invoice_id": e.InvoiceID,
		"reason":     e.Reason,
	})
}

func (h *NotificationHandler) onInvoiceHoldReleased(e *invoice.HoldReleasedEvent) {
	h.notify("invoice.hold_released", e.CreatorID, logrus.Fields{
		"invoice_id": e.InvoiceID,
		"actor_id":   e.ActorID,
	})
}

func (h *NotificationHandler) onInvoiceArchived(e *invoice.ArchivedEvent) {
	h.notify("invoice.archived", e.CreatorID, logrus.Fields{
		"invoice_id": e.InvoiceID,
		"actor_id":   e.ActorID,
		"reason":     e.Reason,
	})
}

func (h *NotificationHandler) onInvoiceDeleted(e *invoice.DeletedEvent) {
	h.notify("invoice.deleted", e.ActorID, logrus.Fields{
		"invoice_id": e.InvoiceID,
		"number":     e.InvoiceNumber,
		"reason":     e.Reason,
	})
}

func (h *NotificationHandler) onVendorApproved(e *vendor.ApprovedEvent) {
	h.notify("vendor.approved", e.CreatorID, logrus.Fields{
		"vendor_id": e.VendorID,
		"actor_id":  e.ActorID,
	})
}

func (h *NotificationHandler) onVendorRejected(e *vendor.RejectedEvent) {
	h.notify("vendor.rejected", e.CreatorID, logrus.Fields{
		"vendor_id":        e.VendorID,
		"actor_id":         e.ActorID,
		"reason":           e.Reason,
		"swept_invoice_ct": len(e.RejectedInvoiceIDs),
	})
}

func (h *NotificationHandler) onJointApproval(e *vendor.JointlyApprovedEvent) {
	h.notify("vendor.invoice.jointly_approved", e.CreatorID, logrus.Fields{
		"vendor_id":  e.VendorID,
		"invoice_id": e.InvoiceID,
		"actor_id":   e.ActorID,
	})
}

func (h *NotificationHandler) onPaymentRecorded(e *payment.RecordedEvent) {
	if !e.PendingReview {
		return
	}
	h.notify("payment.pending_review", e.ActorID, logrus.Fields{
		"payment_id": e.Result.ID,
		"invoice_id": e.Result.InvoiceID,
	})
}

func (h *NotificationHandler) onPaymentReviewed(e *payment.ReviewedEvent) {
	h.notify("payment.reviewed", e.CreatorID, logrus.Fields{
		"payment_id": e.PaymentID,
		"invoice_id": e.InvoiceID,
		"approved":   e.Approved,
		"note":       e.Note,
	})
}

func (h *NotificationHandler) onRequestSubmitted(e *masterdata.SubmittedEvent) {
	h.notify("masterdata.submitted", e.ActorID, logrus.Fields{
		"request_id":  e.Result.ID,
		"entity_type": e.Result.EntityType,
	})
}

func (h *NotificationHandler) onRequestApproved(e *masterdata.ApprovedEvent) {
	fields := logrus.Fields{
		"request_id":  e.RequestID,
		"entity_type": e.EntityType,
		"reviewer_id": e.ReviewerID,
	}
	if e.CreatedEntityID != nil {
		fields["created_entity_id"] = *e.CreatedEntityID
	}
	h.notify("masterdata.approved", e.RequesterID, fields)
}

func (h *NotificationHandler) onRequestRejected(e *masterdata.RejectedEvent) {
	h.notify("masterdata.rejected", e.RequesterID, logrus.Fields{
		"request_id":  e.RequestID,
		"entity_type": e.EntityType,
		"reviewer_id": e.ReviewerID,
		"reason":      e.Reason,
	})
}

func (h *NotificationHandler) onUserDemoted(e *user.DemotedEvent) {
	h.notify("user.role_changed", e.UserID, logrus.Fields{
		"actor_id": e.ActorID,
		"from":     e.From.String(),
		"to":       e.To.String(),
	})
}

func (h *NotificationHandler) onUserDeactivated(e *user.DeactivatedEvent) {
	h.notify("user.deactivated", e.UserID, logrus.Fields{
		"actor_id": e.ActorID,
	})
}
