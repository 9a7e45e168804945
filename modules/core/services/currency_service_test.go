package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/entities/currency"
	"github.com/ledgerdesk/ledgerdesk/modules/core/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
	"github.com/ledgerdesk/ledgerdesk/pkg/types"
)

func TestCurrencyService_Deactivate(t *testing.T) {
	t.Parallel()

	admin := composables.Actor{ID: 1, Role: types.RoleAdmin}

	t.Run("last active currency cannot be deactivated", func(t *testing.T) {
		repo := newFakeCurrencyRepo(&currency.Currency{Code: "USD", Name: "US Dollar", Active: true})
		svc := services.NewCurrencyService(repo)

		err := svc.Deactivate(testContext(admin), "USD")
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})

	t.Run("deactivation succeeds with two active currencies", func(t *testing.T) {
		repo := newFakeCurrencyRepo(
			&currency.Currency{Code: "USD", Name: "US Dollar", Active: true},
			&currency.Currency{Code: "EUR", Name: "Euro", Active: true},
		)
		svc := services.NewCurrencyService(repo)

		require.NoError(t, svc.Deactivate(testContext(admin), "EUR"))

		// USD is the remaining holder now.
		err := svc.Deactivate(testContext(admin), "USD")
		require.Error(t, err)
		assert.True(t, serrors.IsConflict(err))
	})

	t.Run("requires privileged actor", func(t *testing.T) {
		repo := newFakeCurrencyRepo(
			&currency.Currency{Code: "USD", Active: true},
			&currency.Currency{Code: "EUR", Active: true},
		)
		svc := services.NewCurrencyService(repo)

		standard := composables.Actor{ID: 5, Role: types.RoleStandardUser}
		err := svc.Deactivate(testContext(standard), "EUR")
		require.Error(t, err)
		assert.True(t, serrors.IsAuthorization(err))
	})

	t.Run("unknown currency is not found", func(t *testing.T) {
		repo := newFakeCurrencyRepo()
		svc := services.NewCurrencyService(repo)

		err := svc.Deactivate(testContext(admin), "XXX")
		require.Error(t, err)
		assert.True(t, serrors.IsNotFound(err))
	})
}

func TestCurrencyService_Create(t *testing.T) {
	t.Parallel()

	admin := composables.Actor{ID: 1, Role: types.RoleAdmin}
	repo := newFakeCurrencyRepo()
	svc := services.NewCurrencyService(repo)

	created, err := svc.Create(testContext(admin), " usd ", "US Dollar")
	require.NoError(t, err)
	assert.Equal(t, "USD", created.Code)
	assert.True(t, created.Active)

	_, err = svc.Create(testContext(admin), "  ", "blank")
	require.Error(t, err)
	assert.True(t, serrors.IsValidation(err))
}
