package sqlretry

import (
	"errors"
	"strings"

	"github.com/jzx17/goretry/pkg/types"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteDetector extends Detector with SQLite result codes. Busy and
// locked databases are always transient; unique and primary key
// constraint failures follow the duplicate setting. Other errors are
// classified by the embedded Detector.
type SQLiteDetector struct {
	*Detector
}

// NewSQLiteDetector creates a detector for the modernc.org/sqlite driver
func NewSQLiteDetector(opts ...DetectorOption) *SQLiteDetector {
	return &SQLiteDetector{Detector: NewDetector(opts...)}
}

// IsTransient implements retry.TransientDetector
func (d *SQLiteDetector) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if transient, marked := types.IsMarkedTransient(err); marked {
		return transient
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return d.duplicatesTransient
		}
		return false
	}

	// drivers that only surface the message
	if msg := err.Error(); strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") {
		return true
	}

	return d.Detector.IsTransient(err)
}
