package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/repo"
)

const (
	invoiceSelectQuery = `
        SELECT
            i.id,
            i.number,
            i.vendor_id,
            i.category_id,
            i.profile_id,
            i.currency_code,
            i.amount,
            i.invoice_date,
            i.due_date,
            i.period_start,
            i.period_end,
            i.status,
            i.tds_applicable,
            i.tds_rate,
            i.tds_rounding,
            i.archived,
            i.archived_by,
            i.archived_at,
            i.archive_reason,
            i.held_by,
            i.held_at,
            i.hold_reason,
            i.rejected_by,
            i.rejected_at,
            i.rejection_reason,
            i.created_by,
            i.created_at,
            i.updated_at
        FROM invoices i`

	invoiceCountQuery = `SELECT COUNT(*) FROM invoices i`

	invoiceExistsQuery = `
        SELECT EXISTS (
            SELECT 1 FROM invoices
            WHERE number = $1 AND vendor_id = $2 AND id <> $3
        )`

	invoiceInsertQuery = `
        INSERT INTO invoices (
            number, vendor_id, category_id, profile_id, currency_code,
            amount, invoice_date, due_date, period_start, period_end,
            status, tds_applicable, tds_rate, tds_rounding, created_by
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING id, created_at, updated_at`

	invoiceUpdateQuery = `
        UPDATE invoices SET
            number = $2,
            vendor_id = $3,
            category_id = $4,
            profile_id = $5,
            currency_code = $6,
            amount = $7,
            invoice_date = $8,
            due_date = $9,
            period_start = $10,
            period_end = $11,
            status = $12,
            tds_applicable = $13,
            tds_rate = $14,
            tds_rounding = $15,
            archived = $16,
            archived_by = $17,
            archived_at = $18,
            archive_reason = $19,
            held_by = $20,
            held_at = $21,
            hold_reason = $22,
            rejected_by = $23,
            rejected_at = $24,
            rejection_reason = $25,
            updated_at = NOW()
        WHERE id = $1`

	invoiceBulkRejectQuery = `
        UPDATE invoices SET
            status = 'rejected',
            rejected_by = $2,
            rejected_at = $3,
            rejection_reason = $4,
            updated_at = NOW()
        WHERE id = ANY($1) AND status = 'pending_approval'`

	attachmentSelectQuery = `
        SELECT id, invoice_id, name, path, created_at
        FROM invoice_attachments
        WHERE invoice_id = $1
        ORDER BY id`

	attachmentUpdatePathQuery = `UPDATE invoice_attachments SET path = $2 WHERE id = $1`

	deletionRecordInsertQuery = `
        INSERT INTO invoice_deletion_records (
            invoice_id, invoice_number, vendor_id, amount, reason, deleted_by, deleted_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	invoiceDeletePaymentsQuery    = `DELETE FROM payments WHERE invoice_id = $1`
	invoiceDeleteAttachmentsQuery = `DELETE FROM invoice_attachments WHERE invoice_id = $1`
	invoiceDeleteCommentsQuery    = `DELETE FROM invoice_comments WHERE invoice_id = $1`
	invoiceDeleteQuery            = `DELETE FROM invoices WHERE id = $1`
)

type PgInvoiceRepository struct{}

func NewInvoiceRepository() invoice.Repository {
	return &PgInvoiceRepository{}
}

func (g *PgInvoiceRepository) scan(row pgx.Row) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.Number,
		&inv.VendorID,
		&inv.CategoryID,
		&inv.ProfileID,
		&inv.CurrencyCode,
		&inv.Amount,
		&inv.InvoiceDate,
		&inv.DueDate,
		&inv.PeriodStart,
		&inv.PeriodEnd,
		&inv.Status,
		&inv.TDSApplicable,
		&inv.TDSRate,
		&inv.TDSRounding,
		&inv.Archived,
		&inv.ArchivedBy,
		&inv.ArchivedAt,
		&inv.ArchiveReason,
		&inv.HeldBy,
		&inv.HeldAt,
		&inv.HoldReason,
		&inv.RejectedBy,
		&inv.RejectedAt,
		&inv.RejectionReason,
		&inv.CreatedBy,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan invoice")
	}
	return &inv, nil
}

func (g *PgInvoiceRepository) GetByID(ctx context.Context, id uint) (*invoice.Invoice, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return g.scan(tx.QueryRow(ctx, invoiceSelectQuery+" WHERE i.id = $1", id))
}

func (g *PgInvoiceRepository) ExistsByNumberAndVendor(ctx context.Context, number string, vendorID, excludeID uint) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, invoiceExistsQuery, number, vendorID, excludeID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to check invoice number uniqueness")
	}
	return exists, nil
}

func (g *PgInvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	out := *inv
	err = tx.QueryRow(ctx, invoiceInsertQuery,
		inv.Number,
		inv.VendorID,
		inv.CategoryID,
		inv.ProfileID,
		inv.CurrencyCode,
		inv.Amount,
		inv.InvoiceDate,
		inv.DueDate,
		inv.PeriodStart,
		inv.PeriodEnd,
		inv.Status,
		inv.TDSApplicable,
		inv.TDSRate,
		inv.TDSRounding,
		inv.CreatedBy,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if mapped := mapPgError(err, services.ErrInvoiceNotFound); mapped != err {
			return nil, mapped
		}
		return nil, errors.Wrap(err, "failed to insert invoice")
	}
	return &out, nil
}

func (g *PgInvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, invoiceUpdateQuery,
		inv.ID,
		inv.Number,
		inv.VendorID,
		inv.CategoryID,
		inv.ProfileID,
		inv.CurrencyCode,
		inv.Amount,
		inv.InvoiceDate,
		inv.DueDate,
		inv.PeriodStart,
		inv.PeriodEnd,
		inv.Status,
		inv.TDSApplicable,
		inv.TDSRate,
		inv.TDSRounding,
		inv.Archived,
		inv.ArchivedBy,
		inv.ArchivedAt,
		inv.ArchiveReason,
		inv.HeldBy,
		inv.HeldAt,
		inv.HoldReason,
		inv.RejectedBy,
		inv.RejectedAt,
		inv.RejectionReason,
	)
	if err != nil {
		if mapped := mapPgError(err, services.ErrInvoiceNotFound); mapped != err {
			return mapped
		}
		return errors.Wrap(err, "failed to update invoice")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrInvoiceNotFound
	}
	return nil
}

func (g *PgInvoiceRepository) ListPendingByVendor(ctx context.Context, vendorID uint) ([]*invoice.Invoice, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, invoiceSelectQuery+" WHERE i.vendor_id = $1 AND i.status = 'pending_approval' ORDER BY i.id", vendorID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending invoices")
	}
	defer rows.Close()
	return g.collect(rows)
}

func (g *PgInvoiceRepository) BulkReject(ctx context.Context, ids []uint, reason string, actorID uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, invoiceBulkRejectQuery, toIDArgs(ids), actorID, at, reason); err != nil {
		return errors.Wrap(err, "failed to bulk reject invoices")
	}
	return nil
}

// filters renders FindParams into WHERE conditions and positional args.
func (g *PgInvoiceRepository) filters(params *invoice.FindParams) ([]string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if params.Status != nil {
		add("i.status = $%d", *params.Status)
	}
	if params.VendorID != nil {
		add("i.vendor_id = $%d", *params.VendorID)
	}
	if params.CategoryID != nil {
		add("i.category_id = $%d", *params.CategoryID)
	}
	if params.CreatedBy != nil {
		add("i.created_by = $%d", *params.CreatedBy)
	}
	if params.Archived != nil {
		add("i.archived = $%d", *params.Archived)
	}
	if params.DueBefore != nil {
		add("i.due_date < $%d", *params.DueBefore)
	}
	if params.Search != "" {
		add("i.number ILIKE $%d", "%"+params.Search+"%")
	}
	return conds, args
}

func (g *PgInvoiceRepository) Find(ctx context.Context, params *invoice.FindParams) ([]*invoice.Invoice, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	conds, args := g.filters(params)

	orderBy := "ORDER BY i.id"
	if params.SortBy.IsStored() {
		dir := "DESC"
		if params.SortAsc {
			dir = "ASC"
		}
		orderBy = fmt.Sprintf("ORDER BY i.%s %s, i.id", params.SortBy, dir)
	}

	query := repo.Join(
		invoiceSelectQuery,
		repo.JoinWhere(conds...),
		orderBy,
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find invoices")
	}
	defer rows.Close()
	return g.collect(rows)
}

func (g *PgInvoiceRepository) Count(ctx context.Context, params *invoice.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	conds, args := g.filters(params)
	var count int64
	query := repo.Join(invoiceCountQuery, repo.JoinWhere(conds...))
	if err := tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count invoices")
	}
	return count, nil
}

func (g *PgInvoiceRepository) collect(rows pgx.Rows) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for rows.Next() {
		inv, err := g.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (g *PgInvoiceRepository) ListAttachments(ctx context.Context, invoiceID uint) ([]*invoice.Attachment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, attachmentSelectQuery, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list attachments")
	}
	defer rows.Close()

	var out []*invoice.Attachment
	for rows.Next() {
		var a invoice.Attachment
		if err := rows.Scan(&a.ID, &a.InvoiceID, &a.Name, &a.Path, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan attachment")
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (g *PgInvoiceRepository) UpdateAttachmentPath(ctx context.Context, attachmentID uint, path string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, attachmentUpdatePathQuery, attachmentID, path)
	if err != nil {
		return errors.Wrap(err, "failed to update attachment path")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrInvoiceNotFound
	}
	return nil
}

func (g *PgInvoiceRepository) CreateDeletionRecord(ctx context.Context, rec *invoice.DeletionRecord) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, deletionRecordInsertQuery,
		rec.InvoiceID,
		rec.InvoiceNumber,
		rec.VendorID,
		rec.Amount,
		rec.Reason,
		rec.DeletedBy,
		rec.DeletedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert deletion record")
	}
	return nil
}

func (g *PgInvoiceRepository) DeleteWithDependents(ctx context.Context, id uint) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	for _, q := range []string{
		invoiceDeletePaymentsQuery,
		invoiceDeleteAttachmentsQuery,
		invoiceDeleteCommentsQuery,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return errors.Wrap(err, "failed to delete invoice dependents")
		}
	}
	tag, err := tx.Exec(ctx, invoiceDeleteQuery, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete invoice")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrInvoiceNotFound
	}
	return nil
}
