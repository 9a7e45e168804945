package composables

import (
	"context"
	"errors"

	"github.com/ledgerdesk/ledgerdesk/pkg/constants"
	"github.com/ledgerdesk/ledgerdesk/pkg/types"
)

var ErrNoActor = errors.New("no actor found in context")

// Actor identifies who triggered the current operation. It is threaded
// explicitly through every public operation instead of being read from
// ambient session state.
type Actor struct {
	ID   uint
	Role types.Role
}

func (a Actor) IsPrivileged() bool {
	return a.Role.IsPrivileged()
}

func (a Actor) IsSuperAdmin() bool {
	return a.Role == types.RoleSuperAdmin
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actor)
}

func UseActor(ctx context.Context) (Actor, error) {
	actor, ok := ctx.Value(constants.ActorKey).(Actor)
	if !ok {
		return Actor{}, ErrNoActor
	}
	return actor, nil
}
