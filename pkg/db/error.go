package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if code := sqlState(err); code == "23505" {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// transientStates are SQLSTATE codes after which the whole transaction may be retried.
var transientStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57P01": {}, // admin_shutdown
	"08000": {}, // connection_exception
	"08003": {}, // connection_does_not_exist
	"08006": {}, // connection_failure
	"53300": {}, // too_many_connections
}

// IsTransientErr reports whether err is a storage failure that leaves no partial
// effect and may succeed on retry.
func IsTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code := sqlState(err); code != "" {
		_, ok := transientStates[code]
		return ok
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "error 1213"), // mysql deadlock
		strings.Contains(msg, "error 1205"), // mysql lock wait timeout
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "bad connection"):
		return true
	}
	return false
}

// IsCheckViolation reports whether err comes from a CHECK constraint, such as the
// non-negative balance guard.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == "23514" {
		return true
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
