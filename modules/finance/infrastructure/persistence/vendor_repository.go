package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
)

const (
	vendorSelectQuery = `
        SELECT
            v.id,
            v.name,
            v.address,
            v.tax_exempt,
            v.bank_details,
            v.status,
            v.created_by,
            v.approved_by,
            v.approved_at,
            v.rejection_reason,
            v.deleted_at,
            v.created_at,
            v.updated_at
        FROM vendors v`

	vendorInsertQuery = `
        INSERT INTO vendors (
            name, address, tax_exempt, bank_details, status,
            created_by, approved_by, approved_at, rejection_reason
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at, updated_at`

	vendorUpdateQuery = `
        UPDATE vendors SET
            name = $2,
            address = $3,
            tax_exempt = $4,
            bank_details = $5,
            status = $6,
            approved_by = $7,
            approved_at = $8,
            rejection_reason = $9,
            deleted_at = $10,
            updated_at = NOW()
        WHERE id = $1`
)

type PgVendorRepository struct{}

func NewVendorRepository() vendor.Repository {
	return &PgVendorRepository{}
}

func (g *PgVendorRepository) scan(row pgx.Row) (*vendor.Vendor, error) {
	var v vendor.Vendor
	err := row.Scan(
		&v.ID,
		&v.Name,
		&v.Address,
		&v.TaxExempt,
		&v.BankDetails,
		&v.Status,
		&v.CreatedBy,
		&v.ApprovedBy,
		&v.ApprovedAt,
		&v.RejectionReason,
		&v.DeletedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrVendorNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan vendor")
	}
	return &v, nil
}

func (g *PgVendorRepository) GetByID(ctx context.Context, id uint) (*vendor.Vendor, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return g.scan(tx.QueryRow(ctx, vendorSelectQuery+" WHERE v.id = $1", id))
}

func (g *PgVendorRepository) GetByName(ctx context.Context, name string) (*vendor.Vendor, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return g.scan(tx.QueryRow(ctx, vendorSelectQuery+" WHERE LOWER(v.name) = LOWER($1)", name))
}

func (g *PgVendorRepository) GetAll(ctx context.Context) ([]*vendor.Vendor, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, vendorSelectQuery+" ORDER BY v.name")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vendors")
	}
	defer rows.Close()

	var out []*vendor.Vendor
	for rows.Next() {
		v, err := g.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (g *PgVendorRepository) Create(ctx context.Context, v *vendor.Vendor) (*vendor.Vendor, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	out := *v
	err = tx.QueryRow(ctx, vendorInsertQuery,
		v.Name,
		v.Address,
		v.TaxExempt,
		v.BankDetails,
		v.Status,
		v.CreatedBy,
		v.ApprovedBy,
		v.ApprovedAt,
		v.RejectionReason,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if mapped := mapPgError(err, services.ErrVendorNotFound); mapped != err {
			return nil, mapped
		}
		return nil, errors.Wrap(err, "failed to insert vendor")
	}
	return &out, nil
}

func (g *PgVendorRepository) Update(ctx context.Context, v *vendor.Vendor) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, vendorUpdateQuery,
		v.ID,
		v.Name,
		v.Address,
		v.TaxExempt,
		v.BankDetails,
		v.Status,
		v.ApprovedBy,
		v.ApprovedAt,
		v.RejectionReason,
		v.DeletedAt,
	)
	if err != nil {
		if mapped := mapPgError(err, services.ErrVendorNotFound); mapped != err {
			return mapped
		}
		return errors.Wrap(err, "failed to update vendor")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrVendorNotFound
	}
	return nil
}
