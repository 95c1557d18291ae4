package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// ErrConflict is returned by repositories when a write violates a uniqueness
// or foreign key constraint.
var ErrConflict = errors.New("constraint violation")

// IsConstraint reports whether err is (or wraps) a SQLite constraint failure
// or ErrConflict.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
