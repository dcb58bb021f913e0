// Package repository provides the PostgreSQL data access layer of the
// listing service.
//
// # Repositories
//
//   - StatsRepository: restaurant engagement counters and their row locks
//   - CohortStatsRepository: per (restaurant, age band, gender) counters
//   - LikeRepository: the user/restaurant like relation
//   - UserRepository: requester cohort resolution
//   - PgListingRepository: executes planned listing queries
//   - ReviewFeedRepository: keyset paginated review feeds
//
// # Transactions
//
// Every constructor accepts a DBTX, so the same repository type serves a
// pool or a pgx.Tx:
//
//	tx, err := db.Begin(ctx)
//	if err != nil { return err }
//	defer func() { _ = tx.Rollback(ctx) }()
//
//	stats := repository.NewPgStatsRepository(tx)
//	s, err := stats.GetForUpdate(ctx, restaurantID)
//
// Counter mutations lock the restaurant row before any cohort row so that
// concurrent writers always acquire locks in the same order.
//
// # Errors
//
// Missing rows surface as domain.NotFoundError. Driver errors are wrapped
// with fmt.Errorf and %w; IsTransient reports whether a wrapped error is
// worth retrying.
package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tastemap/listing-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// PostgreSQL error codes.
const (
	pgUniqueViolation       = "23505"
	pgForeignKeyViolation   = "23503"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgLockNotAvailable      = "55P03"
	pgAdminShutdown         = "57P01"
	pgConnectionClassPrefix = "08"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

// isPgForeignKeyViolation checks if the error is a PostgreSQL foreign key violation.
func isPgForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == pgForeignKeyViolation
}

// IsTransient reports whether err is a lock conflict, serialization failure
// or connection loss that a fresh transaction may not hit again.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch code := pgErrorCode(err); {
	case code == pgSerializationFailure, code == pgDeadlockDetected,
		code == pgLockNotAvailable, code == pgAdminShutdown:
		return true
	case strings.HasPrefix(code, pgConnectionClassPrefix):
		return true
	case code != "":
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
