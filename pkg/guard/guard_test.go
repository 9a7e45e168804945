package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

func TestRequirement_Evaluate(t *testing.T) {
	t.Parallel()

	req := Requirement{Capability: "super_admin"}

	t.Run("target is not a holder", func(t *testing.T) {
		res := req.Evaluate(1, false)
		assert.Equal(t, NotApplicable, res.Outcome)
		assert.NoError(t, res.Err())
	})

	t.Run("last active holder is blocked", func(t *testing.T) {
		res := req.Evaluate(1, true)
		assert.Equal(t, Blocked, res.Outcome)

		err := res.Err()
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})

	t.Run("two holders allow removing one", func(t *testing.T) {
		res := req.Evaluate(2, true)
		assert.Equal(t, Allowed, res.Outcome)
		assert.NoError(t, res.Err())

		// After one removal the remaining holder is itself protected.
		res = req.Evaluate(1, true)
		assert.Equal(t, Blocked, res.Outcome)
	})

	t.Run("zero holders are blocked", func(t *testing.T) {
		res := req.Evaluate(0, true)
		assert.Equal(t, Blocked, res.Outcome)
	})
}
