package composables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerdesk/ledgerdesk/pkg/constants"
	"github.com/ledgerdesk/ledgerdesk/pkg/repo"
)

var (
	ErrNoTx   = errors.New("no transaction found in context")
	ErrNoPool = errors.New("no database pool found in context")
)

func WithTx(ctx context.Context, tx repo.Tx) context.Context {
	return context.WithValue(ctx, constants.TxKey, tx)
}

// UseTx returns the ambient transaction, falling back to the pool so that
// read paths work without an explicit transaction.
func UseTx(ctx context.Context) (repo.Tx, error) {
	tx := ctx.Value(constants.TxKey)
	if tx == nil {
		return UsePool(ctx)
	}
	return tx.(repo.Tx), nil
}

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, constants.PoolKey, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool := ctx.Value(constants.PoolKey)
	if pool == nil {
		return nil, ErrNoPool
	}
	return pool.(*pgxpool.Pool), nil
}

// InTx runs fn inside a transaction. When the context already carries one,
// fn joins it and the outer owner commits; otherwise a new transaction is
// begun from the pool and committed on success.
func InTx(ctx context.Context, fn func(context.Context) error) error {
	if tx := ctx.Value(constants.TxKey); tx != nil {
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx := WithTx(ctx, tx)
	if err := fn(txCtx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
