package sqlretry

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jzx17/goretry/pkg/retry"
)

// pgxTxKey is the context key for the pgx.Tx of the running attempt
type pgxTxKey struct{}

// Beginner starts pgx transactions. *pgxpool.Pool, *pgx.Conn and pgx.Tx
// (as a savepoint) all implement it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ Beginner = (*pgxpool.Pool)(nil)
	_ Beginner = (*pgx.Conn)(nil)
	_ Beginner = (pgx.Tx)(nil)
)

// PgxTxPolicy retries whole pgx transactions under a retry policy
type PgxTxPolicy struct {
	db     Beginner
	policy *retry.Policy
}

// NewPgxTxPolicy creates a PgxTxPolicy. Panics if db or policy is nil.
func NewPgxTxPolicy(db Beginner, policy *retry.Policy) *PgxTxPolicy {
	if db == nil {
		panic("sqlretry: db cannot be nil")
	}
	if policy == nil {
		panic("sqlretry: policy cannot be nil")
	}
	return &PgxTxPolicy{db: db, policy: policy}
}

// Policy returns the retry policy, for registering listeners
func (tp *PgxTxPolicy) Policy() *retry.Policy {
	return tp.policy
}

// Do runs fn in a transaction, retrying the transaction on transient
// failures
func (tp *PgxTxPolicy) Do(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	_, err := InPgxTx(ctx, tp, func(ctx context.Context, tx pgx.Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// InPgxTx runs fn inside a transaction under the retry policy of tp and
// returns its result. Each attempt begins a new transaction with
// pgx.BeginFunc, which commits when fn succeeds and rolls back otherwise.
// The transaction is also available to fn through PgxTxFromContext.
func InPgxTx[T any](ctx context.Context, tp *PgxTxPolicy, fn func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	return retry.Action(ctx, tp.policy, func(ctx context.Context) (T, error) {
		var value T
		err := pgx.BeginFunc(ctx, tp.db, func(tx pgx.Tx) error {
			var err error
			value, err = fn(context.WithValue(ctx, pgxTxKey{}, tx), tx)
			return err
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return value, nil
	})
}

// PgxTxFromContext returns the transaction of the running attempt
func PgxTxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(pgxTxKey{}).(pgx.Tx)
	return tx, ok
}
