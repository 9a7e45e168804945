package services_test

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/aggregates/user"
	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/entities/currency"
	"github.com/ledgerdesk/ledgerdesk/modules/core/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/types"
)

// stubTx satisfies repo.Tx so composables.InTx joins it instead of requiring
// a database pool; the in-memory repositories never touch it.
type stubTx struct{}

func (stubTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (stubTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (stubTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func testContext(actor composables.Actor) context.Context {
	ctx := composables.WithTx(context.Background(), stubTx{})
	return composables.WithActor(ctx, actor)
}

type fakeUserRepo struct {
	users map[uint]*user.User
}

func newFakeUserRepo(users ...*user.User) *fakeUserRepo {
	m := make(map[uint]*user.User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &fakeUserRepo{users: m}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uint) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) CountActiveByRole(ctx context.Context, role types.Role) (int64, error) {
	var count int64
	for _, u := range f.users {
		if u.Role == role && u.Active {
			count++
		}
	}
	return count, nil
}

func (f *fakeUserRepo) UpdateRole(ctx context.Context, id uint, role types.Role) error {
	u, ok := f.users[id]
	if !ok {
		return services.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeUserRepo) SetActive(ctx context.Context, id uint, active bool) error {
	u, ok := f.users[id]
	if !ok {
		return services.ErrUserNotFound
	}
	u.Active = active
	return nil
}

type fakeCurrencyRepo struct {
	currencies map[string]*currency.Currency
}

func newFakeCurrencyRepo(currencies ...*currency.Currency) *fakeCurrencyRepo {
	m := make(map[string]*currency.Currency, len(currencies))
	for _, c := range currencies {
		m[c.Code] = c
	}
	return &fakeCurrencyRepo{currencies: m}
}

func (f *fakeCurrencyRepo) GetByCode(ctx context.Context, code string) (*currency.Currency, error) {
	c, ok := f.currencies[code]
	if !ok {
		return nil, services.ErrCurrencyNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCurrencyRepo) GetAll(ctx context.Context) ([]*currency.Currency, error) {
	out := make([]*currency.Currency, 0, len(f.currencies))
	for _, c := range f.currencies {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeCurrencyRepo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	for _, c := range f.currencies {
		if c.Active {
			count++
		}
	}
	return count, nil
}

func (f *fakeCurrencyRepo) Create(ctx context.Context, c *currency.Currency) error {
	cp := *c
	f.currencies[c.Code] = &cp
	return nil
}

func (f *fakeCurrencyRepo) SetActive(ctx context.Context, code string, active bool) error {
	c, ok := f.currencies[code]
	if !ok {
		return services.ErrCurrencyNotFound
	}
	c.Active = active
	return nil
}
