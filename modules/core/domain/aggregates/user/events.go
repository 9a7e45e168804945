package user

import "github.com/ledgerdesk/ledgerdesk/pkg/types"

type DemotedEvent struct {
	UserID  uint
	ActorID uint
	From    types.Role
	To      types.Role
}

type DeactivatedEvent struct {
	UserID  uint
	ActorID uint
}
