package data

import (
	"context"
	"database/sql"
	"errors"
)

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	return txFrom(ctx) != nil
}

// WithTx runs fn inside a transaction carried by the context it receives.
// Queries issued through Conn with that context join the transaction. A
// transaction already carried by ctx is reused, so nested calls commit or
// roll back with the outermost one.
func (d *Data) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	if d.isClosed() {
		return ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
