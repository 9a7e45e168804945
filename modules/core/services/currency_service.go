package services

import (
	"context"
	"strings"

	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/entities/currency"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/guard"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

var activeCurrencyRequirement = guard.Requirement{Capability: "active_currency"}

var ErrCurrencyNotFound = serrors.NewNotFoundError("CURRENCY_NOT_FOUND", "currency not found")

type CurrencyService struct {
	repo currency.Repository
}

func NewCurrencyService(repo currency.Repository) *CurrencyService {
	return &CurrencyService{repo: repo}
}

func (s *CurrencyService) GetAll(ctx context.Context) ([]*currency.Currency, error) {
	return s.repo.GetAll(ctx)
}

func (s *CurrencyService) Create(ctx context.Context, code, name string) (*currency.Currency, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsPrivileged() {
		return nil, serrors.NewAuthorizationError("Admin")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, serrors.NewFieldRequiredError("code")
	}
	c := &currency.Currency{Code: code, Name: name, Active: true}
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		return s.repo.Create(txCtx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Deactivate disables a currency. The system must always keep at least one
// active currency, enforced by the same last-holder guard used for super
// admins, evaluated inside the mutating transaction.
func (s *CurrencyService) Deactivate(ctx context.Context, code string) error {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return err
	}
	if !actor.IsPrivileged() {
		return serrors.NewAuthorizationError("Admin")
	}

	return composables.InTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetByCode(txCtx, code)
		if err != nil {
			return err
		}
		if !c.Active {
			return serrors.NewConflictError("CURRENCY_INACTIVE", "currency is already inactive")
		}
		count, err := s.repo.CountActive(txCtx)
		if err != nil {
			return err
		}
		res := activeCurrencyRequirement.Evaluate(count, true)
		if err := res.Err(); err != nil {
			return err
		}
		return s.repo.SetActive(txCtx, code, false)
	})
}

func (s *CurrencyService) Activate(ctx context.Context, code string) error {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return err
	}
	if !actor.IsPrivileged() {
		return serrors.NewAuthorizationError("Admin")
	}
	return composables.InTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetByCode(txCtx, code)
		if err != nil {
			return err
		}
		if c.Active {
			return serrors.NewConflictError("CURRENCY_ACTIVE", "currency is already active")
		}
		return s.repo.SetActive(txCtx, code, true)
	})
}
