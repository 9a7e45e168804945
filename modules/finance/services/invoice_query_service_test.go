package services_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/worklist"
)

func seedWorklistInvoice(t *testing.T, e *testEnv, number string, status invoice.Status, dueInDays *int, createdDaysAgo int) *invoice.Invoice {
	t.Helper()
	var due *time.Time
	if dueInDays != nil {
		d := time.Now().AddDate(0, 0, *dueInDays)
		due = &d
	}
	created, err := e.invoices.Create(testContext(adminActor), &invoice.Invoice{
		Number:       number,
		VendorID:     1,
		CurrencyCode: "USD",
		Amount:       decimal.NewFromInt(1000),
		InvoiceDate:  time.Now().AddDate(0, 0, -30),
		DueDate:      due,
		Status:       status,
		CreatedBy:    standardActor.ID,
		CreatedAt:    time.Now().AddDate(0, 0, -createdDaysAgo),
	})
	require.NoError(t, err)
	return created
}

func intp(n int) *int { return &n }

func TestWorklistDefaultOrdering(t *testing.T) {
	e := newTestEnv()
	e.vendors.vendors[1] = approvedVendor(1)

	paid := seedWorklistInvoice(t, e, "INV-PAID", invoice.StatusPaid, nil, 1)
	overdue := seedWorklistInvoice(t, e, "INV-OVERDUE", invoice.StatusUnpaid, intp(-5), 2)
	dueSoon := seedWorklistInvoice(t, e, "INV-SOON", invoice.StatusUnpaid, intp(2), 3)
	pending := seedWorklistInvoice(t, e, "INV-PENDING", invoice.StatusPendingApproval, intp(10), 4)

	items, total, err := e.querySvc.Find(testContext(adminActor), &invoice.FindParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, items, 4)

	assert.Equal(t, pending.ID, items[0].Invoice.ID)
	assert.Equal(t, overdue.ID, items[1].Invoice.ID)
	assert.Equal(t, dueSoon.ID, items[2].Invoice.ID)
	assert.Equal(t, paid.ID, items[3].Invoice.ID)

	assert.Equal(t, worklist.RankPendingApproval, items[0].Rank)
	assert.Equal(t, worklist.RankOverdue, items[1].Rank)
	assert.True(t, items[1].DueState.Overdue)
	assert.Equal(t, 5, items[1].DueState.Days)
	assert.Equal(t, worklist.RankDueSoon, items[2].Rank)
	assert.True(t, items[2].DueState.DueSoon)
	assert.Equal(t, worklist.RankPaid, items[3].Rank)
}

func TestWorklistEffectiveStatus(t *testing.T) {
	t.Run("approved payments reshape the ordering", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		inv := seedWorklistInvoice(t, e, "INV-100", invoice.StatusUnpaid, intp(-3), 1)
		_, err := e.paymentSvc.Record(testContext(adminActor), inv.ID, decimal.NewFromInt(1000), time.Now(), "wire-1")
		require.NoError(t, err)

		items, _, err := e.querySvc.Find(testContext(adminActor), &invoice.FindParams{})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, invoice.StatusPaid, items[0].Settlement.EffectiveStatus)
		assert.Equal(t, worklist.RankPaid, items[0].Rank)
		assert.False(t, items[0].DueState.Known)
	})

	t.Run("pending payments surface the review flag", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		inv := seedWorklistInvoice(t, e, "INV-100", invoice.StatusUnpaid, intp(5), 1)
		_, err := e.paymentSvc.Record(testContext(standardActor), inv.ID, decimal.NewFromInt(500), time.Now(), "wire-1")
		require.NoError(t, err)

		items, _, err := e.querySvc.Find(testContext(adminActor), &invoice.FindParams{})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.True(t, items[0].Settlement.HasUnreviewedPayment)
		assert.Equal(t, invoice.StatusUnpaid, items[0].Settlement.EffectiveStatus)
	})
}

func TestWorklistVisibilityAndFilters(t *testing.T) {
	t.Run("standard users only see their own invoices", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		mine := seedWorklistInvoice(t, e, "INV-MINE", invoice.StatusUnpaid, nil, 1)
		foreign, err := e.invoices.Create(testContext(adminActor), &invoice.Invoice{
			Number: "INV-THEIRS", VendorID: 1, CurrencyCode: "USD",
			Amount: decimal.NewFromInt(100), InvoiceDate: time.Now(),
			Status: invoice.StatusUnpaid, CreatedBy: 77, CreatedAt: time.Now(),
		})
		require.NoError(t, err)

		items, total, err := e.querySvc.Find(testContext(standardActor), &invoice.FindParams{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, mine.ID, items[0].Invoice.ID)
		assert.NotEqual(t, foreign.ID, items[0].Invoice.ID)
	})

	t.Run("status and vendor filters compose", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		seedWorklistInvoice(t, e, "INV-1", invoice.StatusUnpaid, nil, 1)
		seedWorklistInvoice(t, e, "INV-2", invoice.StatusPaid, nil, 2)

		status := invoice.StatusUnpaid
		items, total, err := e.querySvc.Find(testContext(adminActor), &invoice.FindParams{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, "INV-1", items[0].Invoice.Number)
	})
}

func TestWorklistSorting(t *testing.T) {
	t.Run("stored column sorts pass through the repository", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		seedWorklistInvoice(t, e, "INV-B", invoice.StatusUnpaid, nil, 1)
		seedWorklistInvoice(t, e, "INV-A", invoice.StatusUnpaid, nil, 2)

		items, _, err := e.querySvc.Find(testContext(adminActor), &invoice.FindParams{
			SortBy:  invoice.SortByNumber,
			SortAsc: true,
		})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "INV-A", items[0].Invoice.Number)
		assert.Equal(t, "INV-B", items[1].Invoice.Number)
	})

	t.Run("remaining balance sorts in memory", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		big := seedWorklistInvoice(t, e, "INV-BIG", invoice.StatusUnpaid, nil, 1)
		small := seedWorklistInvoice(t, e, "INV-SMALL", invoice.StatusUnpaid, nil, 2)
		_, err := e.paymentSvc.Record(testContext(adminActor), small.ID, decimal.NewFromInt(900), time.Now(), "wire-1")
		require.NoError(t, err)

		items, _, err := e.querySvc.Find(testContext(adminActor), &invoice.FindParams{
			SortBy:  invoice.SortByRemainingBalance,
			SortAsc: true,
		})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, small.ID, items[0].Invoice.ID)
		assert.Equal(t, big.ID, items[1].Invoice.ID)
	})

	t.Run("pagination applies after the in-memory sort", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		seedWorklistInvoice(t, e, "INV-PENDING", invoice.StatusPendingApproval, nil, 1)
		overdue := seedWorklistInvoice(t, e, "INV-OVERDUE", invoice.StatusUnpaid, intp(-2), 2)
		seedWorklistInvoice(t, e, "INV-PAID", invoice.StatusPaid, nil, 3)

		items, total, err := e.querySvc.Find(testContext(adminActor), &invoice.FindParams{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, items, 1)
		assert.Equal(t, overdue.ID, items[0].Invoice.ID)
	})

	t.Run("offset beyond the set returns an empty page", func(t *testing.T) {
		e := newTestEnv()
		e.vendors.vendors[1] = approvedVendor(1)
		seedWorklistInvoice(t, e, "INV-1", invoice.StatusUnpaid, nil, 1)

		items, total, err := e.querySvc.Find(testContext(adminActor), &invoice.FindParams{Limit: 10, Offset: 5})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Empty(t, items)
	})
}

func TestWorklistGet(t *testing.T) {
	e := newTestEnv()
	e.vendors.vendors[1] = approvedVendor(1)
	inv := seedWorklistInvoice(t, e, "INV-1", invoice.StatusUnpaid, intp(1), 1)
	_, err := e.paymentSvc.Record(testContext(adminActor), inv.ID, decimal.NewFromInt(250), time.Now(), "wire-1")
	require.NoError(t, err)

	item, err := e.querySvc.Get(testContext(adminActor), inv.ID)
	require.NoError(t, err)
	assert.True(t, item.Settlement.Remaining.Equal(decimal.NewFromInt(750)))
	assert.Equal(t, invoice.StatusPartial, item.Settlement.EffectiveStatus)
	assert.True(t, item.DueState.DueSoon)
	assert.Equal(t, worklist.RankDueSoon, item.Rank)
}
