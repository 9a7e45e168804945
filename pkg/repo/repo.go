package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the minimal query surface repositories need. Both pgx.Tx and
// *pgxpool.Pool satisfy it, so reads may run outside a transaction while
// every mutation runs inside one.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Join concatenates non-empty SQL fragments with a single space.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, " ")
}

// JoinWhere renders a WHERE clause from AND-ed conditions, or an empty
// string when there are none.
func JoinWhere(conds ...string) string {
	out := make([]string, 0, len(conds))
	for _, c := range conds {
		if strings.TrimSpace(c) == "" {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(out, " AND ")
}

func FormatLimitOffset(limit, offset int) string {
	if limit > 0 && offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	if limit > 0 {
		return fmt.Sprintf("LIMIT %d", limit)
	}
	if offset > 0 {
		return fmt.Sprintf("OFFSET %d", offset)
	}
	return ""
}
