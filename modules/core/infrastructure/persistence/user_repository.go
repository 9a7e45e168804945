package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/aggregates/user"
	"github.com/ledgerdesk/ledgerdesk/modules/core/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/types"
)

const (
	userFindQuery = `
        SELECT
            u.id,
            u.email,
            u.first_name,
            u.last_name,
            u.role,
            u.active,
            u.created_at,
            u.updated_at
        FROM users u`

	userCountActiveByRoleQuery = `SELECT COUNT(*) FROM users WHERE role = $1 AND active`

	userUpdateRoleQuery = `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`

	userSetActiveQuery = `UPDATE users SET active = $2, updated_at = NOW() WHERE id = $1`
)

type PgUserRepository struct{}

func NewUserRepository() user.Repository {
	return &PgUserRepository{}
}

func (g *PgUserRepository) GetByID(ctx context.Context, id uint) (*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var u user.User
	err = tx.QueryRow(ctx, userFindQuery+" WHERE u.id = $1", id).Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query user")
	}
	return &u, nil
}

func (g *PgUserRepository) CountActiveByRole(ctx context.Context, role types.Role) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := tx.QueryRow(ctx, userCountActiveByRoleQuery, role).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count users by role")
	}
	return count, nil
}

func (g *PgUserRepository) UpdateRole(ctx context.Context, id uint, role types.Role) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, userUpdateRoleQuery, id, role)
	if err != nil {
		return errors.Wrap(err, "failed to update user role")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrUserNotFound
	}
	return nil
}

func (g *PgUserRepository) SetActive(ctx context.Context, id uint, active bool) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, userSetActiveQuery, id, active)
	if err != nil {
		return errors.Wrap(err, "failed to update user active flag")
	}
	if tag.RowsAffected() == 0 {
		return services.ErrUserNotFound
	}
	return nil
}
