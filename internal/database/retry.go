package database

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const maxWriteAttempts = 3

// WithRetry runs fn inside a transaction and retries it when SQLite reports
// the database as locked or busy. Backoff doubles per attempt (200/400/800ms).
// Any other error, and any error left after the attempts are spent, is
// returned as-is.
func WithRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err = db.Transaction(fn)
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(100 * time.Millisecond * (2 << attempt))
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// IsUniqueViolation reports whether err came from a unique constraint,
// e.g. a duplicate company or vendor name.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err came from a foreign key check.
func IsForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
