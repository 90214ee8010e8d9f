package transaction

import (
	"context"
	"errors"
)

// RunInTransaction begins a transaction on m, runs fn with the status bound to the
// context and commits when fn returns nil. On error or panic the transaction is rolled
// back; a panic is re-raised after the rollback.
//
//	err := transaction.RunInTransaction(ctx, router, nil, func(ctx context.Context) error {
//	    tx, _ := sqltx.CurrentTx(ctx)
//	    _, err := tx.ExecContext(ctx, "INSERT INTO orders ...")
//	    return err
//	})
func RunInTransaction(ctx context.Context, m Manager, def *Definition, fn func(ctx context.Context) error) (err error) {
	status, err := m.Begin(ctx, def)
	if err != nil {
		return err
	}
	txCtx := WithStatus(ctx, status)

	defer func() {
		if r := recover(); r != nil {
			_ = m.Rollback(ctx, status)
			panic(r)
		}
	}()

	if fnErr := fn(txCtx); fnErr != nil {
		if rbErr := m.Rollback(ctx, status); rbErr != nil {
			return errors.Join(fnErr, rbErr)
		}
		return fnErr
	}

	return m.Commit(ctx, status)
}
