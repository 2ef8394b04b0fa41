package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
)

// IsUniqueViolation reports a unique constraint failure. A non-empty
// constraintName must match the violated constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		return pg.Code == pkgerrors.PGUniqueViolation && (constraintName == "" || pg.Constraint == constraintName)
	}

	// sqlite: "UNIQUE constraint failed: <table>.<column>"
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
