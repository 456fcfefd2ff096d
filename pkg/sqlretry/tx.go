package sqlretry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jzx17/goretry/pkg/retry"
)

// sqlTxKey is the context key for the *sql.Tx of the running attempt
type sqlTxKey struct{}

// TxPolicy retries whole database/sql transactions under a retry policy
type TxPolicy struct {
	db        *sql.DB
	policy    *retry.Policy
	txOptions *sql.TxOptions
}

// TxOption configures a TxPolicy
type TxOption func(*TxPolicy)

// WithTxOptions sets the options every transaction is started with
func WithTxOptions(opts *sql.TxOptions) TxOption {
	return func(tp *TxPolicy) {
		tp.txOptions = opts
	}
}

// NewTxPolicy creates a TxPolicy. Panics if db or policy is nil.
func NewTxPolicy(db *sql.DB, policy *retry.Policy, opts ...TxOption) *TxPolicy {
	if db == nil {
		panic("sqlretry: db cannot be nil")
	}
	if policy == nil {
		panic("sqlretry: policy cannot be nil")
	}

	tp := &TxPolicy{db: db, policy: policy}
	for _, opt := range opts {
		opt(tp)
	}
	return tp
}

// Policy returns the retry policy, for registering listeners
func (tp *TxPolicy) Policy() *retry.Policy {
	return tp.policy
}

// Do runs fn in a transaction, retrying the transaction on transient
// failures
func (tp *TxPolicy) Do(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	_, err := InTx(ctx, tp, func(ctx context.Context, tx *sql.Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// InTx runs fn inside a transaction under the retry policy of tp and
// returns its result. Each attempt begins a new transaction. It is
// committed when fn succeeds and rolled back when fn or the commit fails.
// The transaction is also available to fn through TxFromContext.
func InTx[T any](ctx context.Context, tp *TxPolicy, fn func(ctx context.Context, tx *sql.Tx) (T, error)) (T, error) {
	return retry.Action(ctx, tp.policy, func(ctx context.Context) (T, error) {
		return runTx(ctx, tp, fn)
	})
}

// runTx is a single attempt
func runTx[T any](ctx context.Context, tp *TxPolicy, fn func(ctx context.Context, tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	tx, err := tp.db.BeginTx(ctx, tp.txOptions)
	if err != nil {
		return zero, fmt.Errorf("begin transaction: %w", err)
	}

	value, err := fn(context.WithValue(ctx, sqlTxKey{}, tx), tx)
	if err != nil {
		tp.rollback(ctx, tx, err)
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		tp.rollback(ctx, tx, err)
		return zero, fmt.Errorf("commit transaction: %w", err)
	}

	return value, nil
}

// rollback releases tx after cause. Rollback failures that follow a
// connection-class cause are not logged.
func (tp *TxPolicy) rollback(ctx context.Context, tx *sql.Tx, cause error) {
	err := tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) || IsConnectionState(cause) {
		return
	}
	tp.policy.Logger().WarnContext(ctx, "transaction rollback failed",
		"policy", tp.policy.Name(),
		"error", err,
		"cause", cause,
	)
}

// TxFromContext returns the transaction of the running attempt
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(sqlTxKey{}).(*sql.Tx)
	return tx, ok
}
