package user

import (
	"context"
	"time"

	"github.com/ledgerdesk/ledgerdesk/pkg/types"
)

type User struct {
	ID        uint
	Email     string
	FirstName string
	LastName  string
	Role      types.Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) IsSuperAdmin() bool {
	return u.Role == types.RoleSuperAdmin
}

type Repository interface {
	GetByID(ctx context.Context, id uint) (*User, error)
	CountActiveByRole(ctx context.Context, role types.Role) (int64, error)
	UpdateRole(ctx context.Context, id uint, role types.Role) error
	SetActive(ctx context.Context, id uint, active bool) error
}
