package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/category"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/paymenttype"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/profile"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

// Reference master data materialized by the proposal workflow.

var (
	ErrCategoryNotFound    = serrors.NewNotFoundError("CATEGORY_NOT_FOUND", "category not found")
	ErrPaymentTypeNotFound = serrors.NewNotFoundError("PAYMENT_TYPE_NOT_FOUND", "payment type not found")
	ErrProfileNotFound     = serrors.NewNotFoundError("PROFILE_NOT_FOUND", "invoice profile not found")
)

const (
	categorySelectQuery = `SELECT id, name, active, created_at, updated_at FROM categories`
	categoryInsertQuery = `INSERT INTO categories (name, active) VALUES ($1, $2) RETURNING id, created_at, updated_at`

	paymentTypeSelectQuery = `SELECT id, name, active, created_at, updated_at FROM payment_types`
	paymentTypeInsertQuery = `INSERT INTO payment_types (name, active) VALUES ($1, $2) RETURNING id, created_at, updated_at`

	profileSelectQuery = `
        SELECT id, name, vendor_id, category_id, amount, active, created_at, updated_at
        FROM invoice_profiles`
	profileInsertQuery = `
        INSERT INTO invoice_profiles (name, vendor_id, category_id, amount, active)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`
)

type PgCategoryRepository struct{}

func NewCategoryRepository() category.Repository {
	return &PgCategoryRepository{}
}

func (g *PgCategoryRepository) scan(row pgx.Row) (*category.Category, error) {
	var c category.Category
	err := row.Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan category")
	}
	return &c, nil
}

func (g *PgCategoryRepository) GetByID(ctx context.Context, id uint) (*category.Category, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return g.scan(tx.QueryRow(ctx, categorySelectQuery+" WHERE id = $1", id))
}

func (g *PgCategoryRepository) FirstActive(ctx context.Context) (*category.Category, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return g.scan(tx.QueryRow(ctx, categorySelectQuery+" WHERE active ORDER BY id LIMIT 1"))
}

func (g *PgCategoryRepository) Create(ctx context.Context, c *category.Category) (*category.Category, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	out := *c
	err = tx.QueryRow(ctx, categoryInsertQuery, c.Name, c.Active).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if mapped := mapPgError(err, ErrCategoryNotFound); mapped != err {
			return nil, mapped
		}
		return nil, errors.Wrap(err, "failed to insert category")
	}
	return &out, nil
}

type PgPaymentTypeRepository struct{}

func NewPaymentTypeRepository() paymenttype.Repository {
	return &PgPaymentTypeRepository{}
}

func (g *PgPaymentTypeRepository) GetByID(ctx context.Context, id uint) (*paymenttype.PaymentType, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var pt paymenttype.PaymentType
	err = tx.QueryRow(ctx, paymentTypeSelectQuery+" WHERE id = $1", id).Scan(
		&pt.ID, &pt.Name, &pt.Active, &pt.CreatedAt, &pt.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentTypeNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan payment type")
	}
	return &pt, nil
}

func (g *PgPaymentTypeRepository) Create(ctx context.Context, pt *paymenttype.PaymentType) (*paymenttype.PaymentType, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	out := *pt
	err = tx.QueryRow(ctx, paymentTypeInsertQuery, pt.Name, pt.Active).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if mapped := mapPgError(err, ErrPaymentTypeNotFound); mapped != err {
			return nil, mapped
		}
		return nil, errors.Wrap(err, "failed to insert payment type")
	}
	return &out, nil
}

type PgProfileRepository struct{}

func NewProfileRepository() profile.Repository {
	return &PgProfileRepository{}
}

func (g *PgProfileRepository) GetByID(ctx context.Context, id uint) (*profile.Profile, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var p profile.Profile
	err = tx.QueryRow(ctx, profileSelectQuery+" WHERE id = $1", id).Scan(
		&p.ID, &p.Name, &p.VendorID, &p.CategoryID, &p.Amount, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan invoice profile")
	}
	return &p, nil
}

func (g *PgProfileRepository) Create(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	out := *p
	err = tx.QueryRow(ctx, profileInsertQuery, p.Name, p.VendorID, p.CategoryID, p.Amount, p.Active).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if mapped := mapPgError(err, ErrProfileNotFound); mapped != err {
			return nil, mapped
		}
		return nil, errors.Wrap(err, "failed to insert invoice profile")
	}
	return &out, nil
}
