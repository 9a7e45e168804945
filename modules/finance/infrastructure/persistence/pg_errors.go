package persistence

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

// Postgres error classes worth translating for callers.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapPgError translates driver errors into the service error taxonomy:
// unique violations become conflicts, broken references become validation
// errors, missing rows become notFound. Anything else passes through.
func mapPgError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return serrors.NewConflictError("DUPLICATE", "a record with these values already exists")
		case pgForeignKeyViolation:
			return serrors.NewValidationError("INVALID_REFERENCE", "referenced record does not exist")
		}
	}
	return err
}

// toIDArgs widens ids for array parameters; the driver has no registered
// codec for []uint.
func toIDArgs(ids []uint) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
