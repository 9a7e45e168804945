// Package guard implements the last-holder invariant: a proposed removal or
// demotion must never leave a required capability with zero active holders.
// Callers must evaluate inside the same transaction as the mutation they
// guard, otherwise two concurrent removals can both observe a count of two.
package guard

import (
	"fmt"
	"strings"

	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

type Outcome int

const (
	// NotApplicable: the target does not currently hold the capability.
	NotApplicable Outcome = iota
	// Allowed: the target holds the capability and others remain.
	Allowed
	// Blocked: the target is the last active holder.
	Blocked
)

// Requirement names a capability that must always have at least one active
// holder, e.g. "super_admin" or "active_currency".
type Requirement struct {
	Capability string
}

type Result struct {
	Outcome       Outcome
	Capability    string
	ActiveHolders int64
}

// Evaluate decides whether removing the target from the capability set
// would empty it. activeHolders is the current count including the target.
func (r Requirement) Evaluate(activeHolders int64, targetIsHolder bool) Result {
	res := Result{Capability: r.Capability, ActiveHolders: activeHolders}
	switch {
	case !targetIsHolder:
		res.Outcome = NotApplicable
	case activeHolders <= 1:
		res.Outcome = Blocked
	default:
		res.Outcome = Allowed
	}
	return res
}

// Err returns a conflict error for blocked results, nil otherwise.
func (res Result) Err() error {
	if res.Outcome != Blocked {
		return nil
	}
	code := "LAST_" + strings.ToUpper(res.Capability)
	return serrors.NewConflictError(code, fmt.Sprintf("cannot remove the last active holder of %s", res.Capability))
}
