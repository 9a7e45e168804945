package services

import (
	"context"
	"strings"

	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

// Config carries the tunables the finance services share. Values come from
// pkg/configuration at wire-up time; tests construct it directly.
type Config struct {
	// MinReasonLength applies to hold, rejection and review-rejection reasons.
	MinReasonLength int
	// DueSoonDays is the worklist "due soon" window.
	DueSoonDays int

	UploadsPath string
	ArchivePath string
	DeletedPath string
}

func (c Config) validateReason(reason string) error {
	if len(strings.TrimSpace(reason)) < c.MinReasonLength {
		return serrors.NewValidationError("REASON_TOO_SHORT", "reason is required and must be meaningful")
	}
	return nil
}

func requireActor(ctx context.Context) (composables.Actor, error) {
	return composables.UseActor(ctx)
}

func requirePrivileged(ctx context.Context) (composables.Actor, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return composables.Actor{}, err
	}
	if !actor.IsPrivileged() {
		return composables.Actor{}, serrors.NewAuthorizationError("Admin")
	}
	return actor, nil
}

func requireSuperAdmin(ctx context.Context) (composables.Actor, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return composables.Actor{}, err
	}
	if !actor.IsSuperAdmin() {
		return composables.Actor{}, serrors.NewAuthorizationError("Super admin")
	}
	return actor, nil
}
