package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/masterdata"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/repo"
)

const (
	requestSelectQuery = `
        SELECT
            r.id,
            r.entity_type,
            r.status,
            r.requester_id,
            r.reviewer_id,
            r.reviewed_at,
            r.payload,
            r.admin_edits,
            r.notes,
            r.rejection_reason,
            r.resubmission_count,
            r.previous_attempt_id,
            r.superseded_by_id,
            r.target_id,
            r.created_entity_id,
            r.created_at,
            r.updated_at
        FROM masterdata_requests r`

	requestInsertQuery = `
        INSERT INTO masterdata_requests (
            entity_type, status, requester_id, payload, notes,
            resubmission_count, previous_attempt_id, target_id
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at`

	requestUpdateQuery = `
        UPDATE masterdata_requests SET
            status = $2,
            reviewer_id = $3,
            reviewed_at = $4,
            admin_edits = $5,
            rejection_reason = $6,
            created_entity_id = $7,
            updated_at = NOW()
        WHERE id = $1`

	requestPendingForTargetQuery = `
        SELECT EXISTS (
            SELECT 1 FROM masterdata_requests
            WHERE entity_type = $1 AND target_id = $2 AND status = 'pending_approval'
        )`

	requestMarkSupersededQuery = `
        UPDATE masterdata_requests SET superseded_by_id = $2, updated_at = NOW() WHERE id = $1`
)

type PgMasterDataRepository struct{}

func NewMasterDataRepository() masterdata.Repository {
	return &PgMasterDataRepository{}
}

func (g *PgMasterDataRepository) scan(row pgx.Row) (*masterdata.Request, error) {
	var r masterdata.Request
	err := row.Scan(
		&r.ID,
		&r.EntityType,
		&r.Status,
		&r.RequesterID,
		&r.ReviewerID,
		&r.ReviewedAt,
		&r.Payload,
		&r.AdminEdits,
		&r.Notes,
		&r.RejectionReason,
		&r.ResubmissionCount,
		&r.PreviousAttemptID,
		&r.SupersededByID,
		&r.TargetID,
		&r.CreatedEntityID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrRequestNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan master-data request")
	}
	return &r, nil
}

func (g *PgMasterDataRepository) GetByID(ctx context.Context, id uint) (*masterdata.Request, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return g.scan(tx.QueryRow(ctx, requestSelectQuery+" WHERE r.id = $1", id))
}

func (g *PgMasterDataRepository) Create(ctx context.Context, r *masterdata.Request) (*masterdata.Request, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	out := *r
	err = tx.QueryRow(ctx, requestInsertQuery,
		r.EntityType,
		r.Status,
		r.RequesterID,
		r.Payload,
		r.Notes,
		r.ResubmissionCount,
		r.PreviousAttemptID,
		r.TargetID,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if mapped := mapPgError(err, services.ErrRequestNotFound); mapped != err {
			return nil, mapped
		}
		return nil, errors.Wrap(err, "failed to insert master-data request")
	}
	return &out, nil
}

func (g *PgMasterDataRepository) Update(ctx context.Context, r *masterdata.Request) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, requestUpdateQuery,
		r.ID,
		r.Status,
		r.ReviewerID,
		r.ReviewedAt,
		r.AdminEdits,
		r.RejectionReason,
		r.CreatedEntityID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update master-data request")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrRequestNotFound
	}
	return nil
}

func (g *PgMasterDataRepository) ExistsPendingForTarget(ctx context.Context, entityType masterdata.EntityType, targetID uint) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, requestPendingForTargetQuery, entityType, targetID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to check pending requests for target")
	}
	return exists, nil
}

func (g *PgMasterDataRepository) MarkSuperseded(ctx context.Context, id, supersededByID uint) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, requestMarkSupersededQuery, id, supersededByID)
	if err != nil {
		return errors.Wrap(err, "failed to mark request superseded")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrRequestNotFound
	}
	return nil
}

func (g *PgMasterDataRepository) Find(ctx context.Context, params *masterdata.FindParams) ([]*masterdata.Request, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if params.EntityType != nil {
		add("r.entity_type = $%d", *params.EntityType)
	}
	if params.Status != nil {
		add("r.status = $%d", *params.Status)
	}
	if params.Requester != nil {
		add("r.requester_id = $%d", *params.Requester)
	}

	query := repo.Join(
		requestSelectQuery,
		repo.JoinWhere(conds...),
		"ORDER BY r.created_at DESC, r.id DESC",
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find master-data requests")
	}
	defer rows.Close()

	var out []*masterdata.Request
	for rows.Next() {
		r, err := g.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
