// Package worklist derives the due state and priority rank that order the
// default invoice worklist. Nothing here is persisted; everything is
// recomputed from the invoice, its settlement and "today".
package worklist

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// DueState describes how close an invoice is to (or past) its due date.
// Known is false when the invoice has no meaningful due state: wrong status,
// nothing left to pay, or no due date.
type DueState struct {
	Known    bool
	Label    string
	Severity Severity
	// Days is days overdue when Overdue, otherwise days until due.
	Days    int
	Overdue bool
	DueSoon bool
}

// civilDate normalizes a timestamp to its calendar date. The re-base to UTC
// keeps every day exactly 24 hours long, so day differences stay whole
// integers across DST transitions.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Classify computes the due state for an effective status. Only unpaid and
// partial invoices with a positive remaining balance and a due date have
// one. "Due today" counts as due-soon so it sorts ahead of later due dates.
func Classify(status invoice.Status, dueDate *time.Time, remaining decimal.Decimal, today time.Time, dueSoonDays int) DueState {
	if status != invoice.StatusUnpaid && status != invoice.StatusPartial {
		return DueState{}
	}
	if !remaining.IsPositive() || dueDate == nil {
		return DueState{}
	}

	diff := int(civilDate(*dueDate).Sub(civilDate(today)).Hours() / 24)

	switch {
	case diff < 0:
		return DueState{
			Known:    true,
			Label:    fmt.Sprintf("overdue by %d days", -diff),
			Severity: SeverityCritical,
			Days:     -diff,
			Overdue:  true,
		}
	case diff == 0:
		return DueState{
			Known:    true,
			Label:    "due today",
			Severity: SeverityWarning,
			Days:     0,
			DueSoon:  true,
		}
	case diff <= dueSoonDays:
		return DueState{
			Known:    true,
			Label:    fmt.Sprintf("due in %d days", diff),
			Severity: SeverityWarning,
			Days:     diff,
			DueSoon:  true,
		}
	default:
		return DueState{
			Known:    true,
			Label:    fmt.Sprintf("due in %d days", diff),
			Severity: SeverityInfo,
			Days:     diff,
		}
	}
}

// Ranks of the default worklist ordering, ascending = higher priority.
const (
	RankPendingApproval = 0
	RankOverdue         = 1
	RankDueSoon         = 2
	RankOpen            = 3
	RankOnHold          = 4
	RankPaid            = 5
	RankOther           = 6
)

// Rank places an effective status and due state into the total order.
func Rank(status invoice.Status, ds DueState) int {
	switch {
	case status == invoice.StatusPendingApproval:
		return RankPendingApproval
	case (status == invoice.StatusUnpaid || status == invoice.StatusPartial) && ds.Overdue:
		return RankOverdue
	case (status == invoice.StatusUnpaid || status == invoice.StatusPartial) && ds.DueSoon:
		return RankDueSoon
	case status == invoice.StatusUnpaid || status == invoice.StatusPartial:
		return RankOpen
	case status == invoice.StatusOnHold:
		return RankOnHold
	case status == invoice.StatusPaid:
		return RankPaid
	default:
		return RankOther
	}
}

// Item is the minimal tuple the comparator needs.
type Item struct {
	Status    invoice.Status
	DueState  DueState
	CreatedAt time.Time
}

// Less is the default worklist ordering: rank ascending; within overdue,
// more days overdue first; within due-soon, fewer days until due first;
// elsewhere most recently created first.
func Less(a, b Item) bool {
	ra, rb := Rank(a.Status, a.DueState), Rank(b.Status, b.DueState)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case RankOverdue:
		if a.DueState.Days != b.DueState.Days {
			return a.DueState.Days > b.DueState.Days
		}
	case RankDueSoon:
		if a.DueState.Days != b.DueState.Days {
			return a.DueState.Days < b.DueState.Days
		}
	}
	return a.CreatedAt.After(b.CreatedAt)
}
