package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxRunner executes work inside a single database transaction.
type TxRunner struct {
	db *sqlx.DB
}

// NewTxRunner constructs a runner bound to db.
func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

// Run begins a transaction, invokes fn and commits when fn returns nil.
// Any error from fn, a panic, or a failed commit rolls the transaction back.
func (r *TxRunner) Run(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if r == nil || r.db == nil {
		return errors.New("transaction runner not configured")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ext returns tx when present, otherwise db, so repositories can run the
// same statement inside or outside a caller-owned transaction.
func Ext(db *sqlx.DB, tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return db
}
