package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/payment"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
)

const (
	paymentSelectQuery = `
        SELECT
            p.id,
            p.invoice_id,
            p.amount,
            p.paid_at,
            p.reference,
            p.withheld,
            p.rounding,
            p.status,
            p.created_by,
            p.reviewed_by,
            p.reviewed_at,
            p.review_note,
            p.created_at
        FROM payments p`

	paymentInsertQuery = `
        INSERT INTO payments (
            invoice_id, amount, paid_at, reference, withheld, rounding,
            status, created_by, reviewed_by, reviewed_at, review_note
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id, created_at`

	paymentUpdateQuery = `
        UPDATE payments SET
            status = $2,
            reviewed_by = $3,
            reviewed_at = $4,
            review_note = $5
        WHERE id = $1`

	paymentApprovedTotalQuery = `
        SELECT COALESCE(SUM(amount), 0)
        FROM payments
        WHERE invoice_id = $1 AND status = 'approved'`

	paymentApprovedTotalsQuery = `
        SELECT invoice_id, SUM(amount)
        FROM payments
        WHERE invoice_id = ANY($1) AND status = 'approved'
        GROUP BY invoice_id`

	paymentHasPendingQuery = `
        SELECT EXISTS (
            SELECT 1 FROM payments WHERE invoice_id = $1 AND status = 'pending'
        )`

	paymentPendingFlagsQuery = `
        SELECT DISTINCT invoice_id
        FROM payments
        WHERE invoice_id = ANY($1) AND status = 'pending'`
)

type PgPaymentRepository struct{}

func NewPaymentRepository() payment.Repository {
	return &PgPaymentRepository{}
}

func (g *PgPaymentRepository) scan(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(
		&p.ID,
		&p.InvoiceID,
		&p.Amount,
		&p.PaidAt,
		&p.Reference,
		&p.Withheld,
		&p.Rounding,
		&p.Status,
		&p.CreatedBy,
		&p.ReviewedBy,
		&p.ReviewedAt,
		&p.ReviewNote,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan payment")
	}
	return &p, nil
}

func (g *PgPaymentRepository) GetByID(ctx context.Context, id uint) (*payment.Payment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return g.scan(tx.QueryRow(ctx, paymentSelectQuery+" WHERE p.id = $1", id))
}

func (g *PgPaymentRepository) Create(ctx context.Context, p *payment.Payment) (*payment.Payment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	out := *p
	err = tx.QueryRow(ctx, paymentInsertQuery,
		p.InvoiceID,
		p.Amount,
		p.PaidAt,
		p.Reference,
		p.Withheld,
		p.Rounding,
		p.Status,
		p.CreatedBy,
		p.ReviewedBy,
		p.ReviewedAt,
		p.ReviewNote,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if mapped := mapPgError(err, services.ErrPaymentNotFound); mapped != err {
			return nil, mapped
		}
		return nil, errors.Wrap(err, "failed to insert payment")
	}
	return &out, nil
}

func (g *PgPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, paymentUpdateQuery,
		p.ID,
		p.Status,
		p.ReviewedBy,
		p.ReviewedAt,
		p.ReviewNote,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update payment")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrPaymentNotFound
	}
	return nil
}

func (g *PgPaymentRepository) ListByInvoice(ctx context.Context, invoiceID uint) ([]*payment.Payment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, paymentSelectQuery+" WHERE p.invoice_id = $1 ORDER BY p.paid_at, p.id", invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list payments")
	}
	defer rows.Close()

	var out []*payment.Payment
	for rows.Next() {
		p, err := g.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (g *PgPaymentRepository) ApprovedTotal(ctx context.Context, invoiceID uint) (decimal.Decimal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	if err := tx.QueryRow(ctx, paymentApprovedTotalQuery, invoiceID).Scan(&total); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to sum approved payments")
	}
	return total, nil
}

func (g *PgPaymentRepository) ApprovedTotals(ctx context.Context, invoiceIDs []uint) (map[uint]decimal.Decimal, error) {
	out := make(map[uint]decimal.Decimal, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, paymentApprovedTotalsQuery, toIDArgs(invoiceIDs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum approved payments by invoice")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    uint
			total decimal.Decimal
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, errors.Wrap(err, "failed to scan payment total")
		}
		out[id] = total
	}
	return out, rows.Err()
}

func (g *PgPaymentRepository) HasPending(ctx context.Context, invoiceID uint) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var pending bool
	if err := tx.QueryRow(ctx, paymentHasPendingQuery, invoiceID).Scan(&pending); err != nil {
		return false, errors.Wrap(err, "failed to check pending payments")
	}
	return pending, nil
}

func (g *PgPaymentRepository) PendingFlags(ctx context.Context, invoiceIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, paymentPendingFlagsQuery, toIDArgs(invoiceIDs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to check pending payments by invoice")
	}
	defer rows.Close()

	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan pending flag")
		}
		out[id] = true
	}
	return out, rows.Err()
}
