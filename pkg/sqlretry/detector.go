package sqlretry

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jzx17/goretry/pkg/retry"
	"github.com/jzx17/goretry/pkg/types"
)

// SQLSTATE classes and codes
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	classConnectionException = "08"
	classTransactionRollback = "40"

	codeUniqueViolation = "23505"
)

// duplicateIndexMessage is reported by servers that do not set 23505 on
// unique index violations
const duplicateIndexMessage = "duplicate value in unique index"

// SQLStater is implemented by driver errors that carry a SQLSTATE code,
// such as *pgconn.PgError.
type SQLStater interface {
	SQLState() string
}

// Detector classifies database errors.
//
// Transient: SQLSTATE class 08 (connection exception) and class 40
// (transaction rollback, including serialization failures and deadlocks),
// unique violations when duplicates are treated as transient, broken
// connections reported by database/sql, and pgx errors that are safe to
// retry. Everything else is fatal, including sql.ErrNoRows.
type Detector struct {
	duplicatesTransient bool
}

// DetectorOption configures a Detector
type DetectorOption func(*Detector)

// WithDuplicatesAsTransient controls whether unique violations are
// retried. Enabled by default.
func WithDuplicatesAsTransient(enabled bool) DetectorOption {
	return func(d *Detector) {
		d.duplicatesTransient = enabled
	}
}

// NewDetector creates a SQL detector
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{duplicatesTransient: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DuplicatesAsTransient reports whether unique violations are retried
func (d *Detector) DuplicatesAsTransient() bool {
	return d.duplicatesTransient
}

// IsTransient implements retry.TransientDetector
func (d *Detector) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if transient, marked := types.IsMarkedTransient(err); marked {
		return transient
	}

	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, sql.ErrTxDone):
		return false
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return true
	}

	if _, ok := sqlState(err); ok {
		if IsConnectionState(err) || IsRollbackState(err) {
			return true
		}
		return d.duplicatesTransient && IsDuplicateKey(err)
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	return retry.IsNetworkTransient(err)
}

// IsConnectionState reports whether err carries a class 08 SQLSTATE. A
// transaction that failed this way cannot be rolled back over the same
// connection.
func IsConnectionState(err error) bool {
	state, ok := sqlState(err)
	return ok && strings.HasPrefix(state, classConnectionException)
}

// IsRollbackState reports whether err carries a class 40 SQLSTATE
func IsRollbackState(err error) bool {
	state, ok := sqlState(err)
	return ok && strings.HasPrefix(state, classTransactionRollback)
}

// IsDuplicateKey reports whether err is a unique violation
func IsDuplicateKey(err error) bool {
	state, ok := sqlState(err)
	if !ok {
		return false
	}
	return state == codeUniqueViolation || strings.Contains(err.Error(), duplicateIndexMessage)
}

// sqlState returns the first SQLSTATE found in the chain of err
func sqlState(err error) (string, bool) {
	var stater SQLStater
	if errors.As(err, &stater) {
		if state := stater.SQLState(); state != "" {
			return state, true
		}
	}
	return "", false
}

var _ retry.TransientDetector = (*Detector)(nil)
