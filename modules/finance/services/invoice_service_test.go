package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/category"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/masterdata"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

func approvedVendor(id uint) *vendor.Vendor {
	return &vendor.Vendor{ID: id, Name: "Acme Supplies", Status: vendor.StatusApproved}
}

func draftInvoice(vendorID uint) *invoice.Invoice {
	return &invoice.Invoice{
		Number:       "INV-001",
		VendorID:     vendorID,
		CurrencyCode: "usd",
		Amount:       decimal.NewFromInt(1000),
		InvoiceDate:  time.Now().AddDate(0, 0, -1),
	}
}

func TestInvoiceSubmit(t *testing.T) {
	t.Run("standard user's invoice awaits approval", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)

		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPendingApproval, created.Status)
		assert.Equal(t, standardActor.ID, created.CreatedBy)
		assert.Equal(t, "USD", created.CurrencyCode)
	})

	t.Run("admin's invoice is payable immediately", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)

		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusUnpaid, created.Status)
	})

	t.Run("duplicate number for the same vendor conflicts", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		_, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)

		_, err = e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})

	t.Run("same number under another vendor is allowed", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		e.vendors.vendors[2] = &vendor.Vendor{ID: 2, Name: "Other Co", Status: vendor.StatusApproved}
		_, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)

		_, err = e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(2))
		require.NoError(t, err)
	})

	t.Run("validation failures", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		ctx := testContext(adminActor)

		blank := draftInvoice(1)
		blank.Number = "  "
		_, err := e.invoiceSvc.Submit(ctx, blank)
		assert.True(t, serrors.IsValidation(err))

		negative := draftInvoice(1)
		negative.Amount = decimal.NewFromInt(-5)
		_, err = e.invoiceSvc.Submit(ctx, negative)
		assert.True(t, serrors.IsValidation(err))

		badDue := draftInvoice(1)
		due := badDue.InvoiceDate.AddDate(0, 0, -2)
		badDue.DueDate = &due
		_, err = e.invoiceSvc.Submit(ctx, badDue)
		assert.True(t, serrors.IsValidation(err))

		badRate := draftInvoice(1)
		rate := decimal.NewFromInt(120)
		badRate.TDSApplicable = true
		badRate.TDSRate = &rate
		_, err = e.invoiceSvc.Submit(ctx, badRate)
		assert.True(t, serrors.IsValidation(err))
	})

	t.Run("category and profile references must exist and be active", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		ctx := testContext(adminActor)

		missing := uint(999)
		withCategory := draftInvoice(1)
		withCategory.CategoryID = &missing
		_, err := e.invoiceSvc.Submit(ctx, withCategory)
		require.Error(t, err)
		assert.True(t, serrors.IsValidation(err))

		inactive, err := e.categories.Create(ctx, &category.Category{Name: "Legacy", Active: false})
		require.NoError(t, err)
		withCategory = draftInvoice(1)
		withCategory.CategoryID = &inactive.ID
		_, err = e.invoiceSvc.Submit(ctx, withCategory)
		require.Error(t, err)
		assert.True(t, serrors.IsValidation(err))

		withProfile := draftInvoice(1)
		withProfile.ProfileID = &missing
		_, err = e.invoiceSvc.Submit(ctx, withProfile)
		require.Error(t, err)
		assert.True(t, serrors.IsValidation(err))

		active, err := e.categories.Create(ctx, &category.Category{Name: "Office", Active: true})
		require.NoError(t, err)
		ok := draftInvoice(1)
		ok.CategoryID = &active.ID
		_, err = e.invoiceSvc.Submit(ctx, ok)
		require.NoError(t, err)
	})

	t.Run("rejected vendor refuses new invoices", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = &vendor.Vendor{ID: 1, Name: "Bad Co", Status: vendor.StatusRejected}

		_, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})
}

func TestInvoiceApprove(t *testing.T) {
	t.Run("approval moves a pending invoice to unpaid", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)

		approved, err := e.invoiceSvc.Approve(testContext(adminActor), created.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusUnpaid, approved.Status)
	})

	t.Run("second approval conflicts", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)
		_, err = e.invoiceSvc.Approve(testContext(adminActor), created.ID)
		require.NoError(t, err)

		_, err = e.invoiceSvc.Approve(testContext(adminActor), created.ID)
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})

	t.Run("pending vendor gates lone approval", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = &vendor.Vendor{ID: 1, Name: "New Co", Status: vendor.StatusPendingApproval}
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)

		_, err = e.invoiceSvc.Approve(testContext(adminActor), created.ID)
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))

		inv, err := e.invoices.GetByID(testContext(adminActor), created.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPendingApproval, inv.Status)
	})

	t.Run("standard users cannot approve", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)

		_, err = e.invoiceSvc.Approve(testContext(standardActor), created.ID)
		require.Error(t, err)
		assert.True(t, serrors.IsAuthorization(err))
	})
}

func TestInvoiceRejectAndHold(t *testing.T) {
	t.Run("rejection stamps actor time and reason", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)

		rejected, err := e.invoiceSvc.Reject(testContext(adminActor), created.ID, "missing purchase order reference")
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusRejected, rejected.Status)
		require.NotNil(t, rejected.RejectedBy)
		assert.Equal(t, adminActor.ID, *rejected.RejectedBy)
		assert.NotNil(t, rejected.RejectedAt)
	})

	t.Run("short reason is refused", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)

		_, err = e.invoiceSvc.Reject(testContext(adminActor), created.ID, "bad")
		require.Error(t, err)
		assert.True(t, serrors.IsValidation(err))
	})

	t.Run("hold and release restore the settled status", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		_, err = e.paymentSvc.Record(testContext(adminActor), created.ID, decimal.NewFromInt(400), time.Now(), "wire-1")
		require.NoError(t, err)

		held, err := e.invoiceSvc.Hold(testContext(adminActor), created.ID, "pending vendor dispute resolution")
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusOnHold, held.Status)
		assert.Equal(t, "pending vendor dispute resolution", held.HoldReason)

		released, err := e.invoiceSvc.ReleaseHold(testContext(adminActor), created.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPartial, released.Status)
		assert.Nil(t, released.HeldBy)
		assert.Empty(t, released.HoldReason)
	})

	t.Run("pending invoices cannot be held", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)

		_, err = e.invoiceSvc.Hold(testContext(adminActor), created.ID, "pending vendor dispute resolution")
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})
}

func TestInvoiceEdit(t *testing.T) {
	t.Run("creator edits own pending invoice", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)

		upd := *created
		upd.Amount = decimal.NewFromInt(1500)
		result, err := e.invoiceSvc.Edit(testContext(standardActor), &upd)
		require.NoError(t, err)
		assert.True(t, result.Amount.Equal(decimal.NewFromInt(1500)))
		assert.Equal(t, invoice.StatusPendingApproval, result.Status)
	})

	t.Run("creator's edit of an approved invoice re-enters review", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)
		_, err = e.invoiceSvc.Approve(testContext(adminActor), created.ID)
		require.NoError(t, err)

		upd := *created
		upd.Amount = decimal.NewFromInt(900)
		result, err := e.invoiceSvc.Edit(testContext(standardActor), &upd)
		require.NoError(t, err)
		assert.True(t, result.Amount.Equal(decimal.NewFromInt(900)))
		assert.Equal(t, invoice.StatusPendingApproval, result.Status)
	})

	t.Run("admin edit keeps the settled status", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)

		upd := *created
		upd.Amount = decimal.NewFromInt(900)
		result, err := e.invoiceSvc.Edit(testContext(adminActor), &upd)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusUnpaid, result.Status)
	})

	t.Run("another standard user is refused", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(standardActor), draftInvoice(1))
		require.NoError(t, err)

		other := standardActor
		other.ID = 99
		upd := *created
		_, err = e.invoiceSvc.Edit(testContext(other), &upd)
		require.Error(t, err)
		assert.True(t, serrors.IsAuthorization(err))
	})

	t.Run("archived invoices cannot be edited", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		_, err = e.invoiceSvc.Archive(testContext(adminActor), created.ID, "superseded by corrected invoice")
		require.NoError(t, err)

		upd := *created
		_, err = e.invoiceSvc.Edit(testContext(adminActor), &upd)
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})
}

func TestInvoiceArchive(t *testing.T) {
	t.Run("admin archives directly and attachments relocate", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		e.invoices.attachments[created.ID] = []*invoice.Attachment{
			{ID: 1, InvoiceID: created.ID, Name: "scan.pdf", Path: "static/uploads/scan.pdf"},
		}

		outcome, err := e.invoiceSvc.Archive(testContext(adminActor), created.ID, "superseded by corrected invoice")
		require.NoError(t, err)
		assert.False(t, outcome.Requested)
		require.NotNil(t, outcome.Invoice)
		assert.True(t, outcome.Invoice.Archived)
		assert.Equal(t, "superseded by corrected invoice", outcome.Invoice.ArchiveReason)

		require.Len(t, e.relocator.moves, 1)
		assert.Equal(t, "static/uploads/scan.pdf", e.relocator.moves[0][0])
		assert.Equal(t, "static/archive/scan.pdf", e.relocator.moves[0][1])

		require.Len(t, e.relocator.writes, 1)
		assert.Equal(t, fmt.Sprintf("static/archive/invoice-%d.json", created.ID), e.relocator.writes[0])
	})

	t.Run("failed relocation does not abort the archive", func(t *testing.T) {
		e := newTestEnv()
		e.relocator.fail = true
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		e.invoices.attachments[created.ID] = []*invoice.Attachment{
			{ID: 1, InvoiceID: created.ID, Name: "scan.pdf", Path: "static/uploads/scan.pdf"},
		}

		outcome, err := e.invoiceSvc.Archive(testContext(adminActor), created.ID, "superseded by corrected invoice")
		require.NoError(t, err)
		assert.True(t, outcome.Invoice.Archived)
	})

	t.Run("standard user's archive becomes a pending request", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)

		outcome, err := e.invoiceSvc.Archive(testContext(standardActor), created.ID, "duplicate of INV-002 sent twice")
		require.NoError(t, err)
		assert.True(t, outcome.Requested)
		require.NotNil(t, outcome.Request)
		assert.Equal(t, masterdata.EntityInvoiceArchive, outcome.Request.EntityType)
		assert.Equal(t, masterdata.StatusPendingApproval, outcome.Request.Status)
		require.NotNil(t, outcome.Request.TargetID)
		assert.Equal(t, created.ID, *outcome.Request.TargetID)

		inv, err := e.invoices.GetByID(testContext(adminActor), created.ID)
		require.NoError(t, err)
		assert.False(t, inv.Archived)
	})

	t.Run("second archive request for the same invoice conflicts", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		_, err = e.invoiceSvc.Archive(testContext(standardActor), created.ID, "duplicate of INV-002 sent twice")
		require.NoError(t, err)

		_, err = e.invoiceSvc.Archive(testContext(standardActor), created.ID, "duplicate of INV-002 sent twice")
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})

	t.Run("archiving twice conflicts", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		_, err = e.invoiceSvc.Archive(testContext(adminActor), created.ID, "superseded by corrected invoice")
		require.NoError(t, err)

		_, err = e.invoiceSvc.Archive(testContext(adminActor), created.ID, "superseded by corrected invoice")
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})
}

func TestInvoicePermanentlyDelete(t *testing.T) {
	t.Run("super admin deletes with a tombstone", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		e.invoices.attachments[created.ID] = []*invoice.Attachment{
			{ID: 1, InvoiceID: created.ID, Name: "scan.pdf", Path: "static/uploads/scan.pdf"},
		}

		err = e.invoiceSvc.PermanentlyDelete(testContext(superActor), created.ID, "entered against the wrong company")
		require.NoError(t, err)

		_, err = e.invoices.GetByID(testContext(superActor), created.ID)
		require.Error(t, err)
		require.Len(t, e.invoices.tombstones, 1)
		rec := e.invoices.tombstones[0]
		assert.Equal(t, created.ID, rec.InvoiceID)
		assert.Equal(t, created.Number, rec.InvoiceNumber)
		assert.Equal(t, superActor.ID, rec.DeletedBy)

		require.Len(t, e.relocator.moves, 1)
		assert.Equal(t, "static/deleted/scan.pdf", e.relocator.moves[0][1])
	})

	t.Run("failed delete leaves attachment files in place", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)
		e.invoices.attachments[created.ID] = []*invoice.Attachment{
			{ID: 1, InvoiceID: created.ID, Name: "scan.pdf", Path: "static/uploads/scan.pdf"},
		}
		e.invoices.deleteErr = context.DeadlineExceeded

		err = e.invoiceSvc.PermanentlyDelete(testContext(superActor), created.ID, "entered against the wrong company")
		require.Error(t, err)
		assert.Empty(t, e.relocator.moves)
	})

	t.Run("admins cannot hard delete", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		created, err := e.invoiceSvc.Submit(testContext(adminActor), draftInvoice(1))
		require.NoError(t, err)

		err = e.invoiceSvc.PermanentlyDelete(testContext(adminActor), created.ID, "entered against the wrong company")
		require.Error(t, err)
		assert.True(t, serrors.IsAuthorization(err))
	})
}
