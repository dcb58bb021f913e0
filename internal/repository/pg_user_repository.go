package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tastemap/listing-service/internal/domain"
)

var _ UserRepository = (*PgUserRepository)(nil)

// PgUserRepository is a PostgreSQL implementation of UserRepository.
type PgUserRepository struct {
	db  DBTX
	now func() time.Time
}

// NewPgUserRepository creates a new PostgreSQL user repository.
func NewPgUserRepository(db DBTX) *PgUserRepository {
	return &PgUserRepository{db: db, now: time.Now}
}

// ResolveCohort derives the user's cohort as of today.
func (r *PgUserRepository) ResolveCohort(ctx context.Context, userID int64) (domain.Cohort, error) {
	query := `SELECT birth_date, gender FROM users WHERE id = $1`

	var (
		birth  *time.Time
		gender string
	)
	if err := r.db.QueryRow(ctx, query, userID).Scan(&birth, &gender); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Cohort{}, domain.NewUserNotFound(userID)
		}
		return domain.Cohort{}, fmt.Errorf("failed to resolve cohort: %w", err)
	}
	return domain.ResolveCohort(birth, gender, r.now()), nil
}
