package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/entities/currency"
	"github.com/ledgerdesk/ledgerdesk/modules/core/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
)

const (
	currencySelectQuery = `
        SELECT code, name, active, created_at, updated_at
        FROM currencies`

	currencyCountActiveQuery = `SELECT COUNT(*) FROM currencies WHERE active`

	currencyInsertQuery = `
        INSERT INTO currencies (code, name, active, created_at, updated_at)
        VALUES ($1, $2, $3, NOW(), NOW())`

	currencySetActiveQuery = `UPDATE currencies SET active = $2, updated_at = NOW() WHERE code = $1`
)

type PgCurrencyRepository struct{}

func NewCurrencyRepository() currency.Repository {
	return &PgCurrencyRepository{}
}

func (g *PgCurrencyRepository) GetByCode(ctx context.Context, code string) (*currency.Currency, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var c currency.Currency
	err = tx.QueryRow(ctx, currencySelectQuery+" WHERE code = $1", code).Scan(
		&c.Code, &c.Name, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrCurrencyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query currency")
	}
	return &c, nil
}

func (g *PgCurrencyRepository) GetAll(ctx context.Context) ([]*currency.Currency, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, currencySelectQuery+" ORDER BY code")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query currencies")
	}
	defer rows.Close()

	var out []*currency.Currency
	for rows.Next() {
		var c currency.Currency
		if err := rows.Scan(&c.Code, &c.Name, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan currency")
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (g *PgCurrencyRepository) CountActive(ctx context.Context) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := tx.QueryRow(ctx, currencyCountActiveQuery).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count active currencies")
	}
	return count, nil
}

func (g *PgCurrencyRepository) Create(ctx context.Context, c *currency.Currency) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, currencyInsertQuery, c.Code, c.Name, c.Active); err != nil {
		return errors.Wrap(err, "failed to insert currency")
	}
	return nil
}

func (g *PgCurrencyRepository) SetActive(ctx context.Context, code string, active bool) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, currencySetActiveQuery, code, active)
	if err != nil {
		return errors.Wrap(err, "failed to update currency")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrCurrencyNotFound
	}
	return nil
}
