package services

import (
	"context"

	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/aggregates/user"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/eventbus"
	"github.com/ledgerdesk/ledgerdesk/pkg/guard"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
	"github.com/ledgerdesk/ledgerdesk/pkg/types"
)

var superAdminRequirement = guard.Requirement{Capability: "super_admin"}

var ErrUserNotFound = serrors.NewNotFoundError("USER_NOT_FOUND", "user not found")

type UserService struct {
	repo      user.Repository
	publisher eventbus.EventBus
}

func NewUserService(repo user.Repository, publisher eventbus.EventBus) *UserService {
	return &UserService{repo: repo, publisher: publisher}
}

func authorizeSuperAdmin(ctx context.Context) (composables.Actor, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return composables.Actor{}, err
	}
	if actor.Role != types.RoleSuperAdmin {
		return composables.Actor{}, serrors.NewAuthorizationError("Super admin")
	}
	return actor, nil
}

// CheckDemotion evaluates the last-super-admin invariant for a proposed role
// change without applying it. The result distinguishes "blocked" from "not
// applicable" (the target is not an active super admin, or others remain).
func (s *UserService) CheckDemotion(ctx context.Context, id uint, newRole types.Role) (guard.Result, error) {
	if _, err := authorizeSuperAdmin(ctx); err != nil {
		return guard.Result{}, err
	}
	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return guard.Result{}, err
	}
	if target.IsSuperAdmin() && newRole == types.RoleSuperAdmin {
		return superAdminRequirement.Evaluate(0, false), nil
	}
	count, err := s.repo.CountActiveByRole(ctx, types.RoleSuperAdmin)
	if err != nil {
		return guard.Result{}, err
	}
	return superAdminRequirement.Evaluate(count, target.IsSuperAdmin() && target.Active), nil
}

// Demote changes a user's role. Demoting the last active super admin is
// vetoed; the count is re-read inside the mutating transaction so two
// concurrent demotions cannot both pass the check.
func (s *UserService) Demote(ctx context.Context, id uint, newRole types.Role) (*user.User, error) {
	actor, err := authorizeSuperAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !newRole.IsValid() {
		return nil, serrors.NewValidationError("INVALID_ROLE", "unknown role")
	}

	var target *user.User
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		target, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if target.IsSuperAdmin() && newRole != types.RoleSuperAdmin {
			count, err := s.repo.CountActiveByRole(txCtx, types.RoleSuperAdmin)
			if err != nil {
				return err
			}
			res := superAdminRequirement.Evaluate(count, target.Active)
			if err := res.Err(); err != nil {
				return err
			}
		}
		return s.repo.UpdateRole(txCtx, id, newRole)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&user.DemotedEvent{
		UserID:  id,
		ActorID: actor.ID,
		From:    target.Role,
		To:      newRole,
	})
	target.Role = newRole
	return target, nil
}

// Deactivate disables a user account, subject to the same invariant.
func (s *UserService) Deactivate(ctx context.Context, id uint) (*user.User, error) {
	actor, err := authorizeSuperAdmin(ctx)
	if err != nil {
		return nil, err
	}

	var target *user.User
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		target, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if !target.Active {
			return serrors.NewConflictError("USER_INACTIVE", "user is already deactivated")
		}
		if target.IsSuperAdmin() {
			count, err := s.repo.CountActiveByRole(txCtx, types.RoleSuperAdmin)
			if err != nil {
				return err
			}
			res := superAdminRequirement.Evaluate(count, true)
			if err := res.Err(); err != nil {
				return err
			}
		}
		return s.repo.SetActive(txCtx, id, false)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(&user.DeactivatedEvent{UserID: id, ActorID: actor.ID})
	target.Active = false
	return target, nil
}
