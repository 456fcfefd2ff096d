// Package sqlretry applies retry policies to database work.
//
// Detector and SQLiteDetector classify driver errors by SQLSTATE and
// SQLite result code. TxPolicy and PgxTxPolicy run a function inside a
// transaction and retry the whole transaction when it fails transiently:
// each attempt begins a fresh transaction, commits on success and rolls
// back on failure.
//
//	policy := retry.NewPolicy(retry.NewExponentialBackoff(5), sqlretry.NewDetector())
//	tp := sqlretry.NewTxPolicy(db, policy)
//
//	id, err := sqlretry.InTx(ctx, tp, func(ctx context.Context, tx *sql.Tx) (int64, error) {
//		res, err := tx.ExecContext(ctx, "INSERT INTO orders(ref) VALUES (?)", ref)
//		if err != nil {
//			return 0, err
//		}
//		return res.LastInsertId()
//	})
package sqlretry
