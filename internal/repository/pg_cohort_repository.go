package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tastemap/listing-service/internal/domain"
)

var _ CohortStatsRepository = (*PgCohortStatsRepository)(nil)

// PgCohortStatsRepository is a PostgreSQL implementation of CohortStatsRepository.
type PgCohortStatsRepository struct {
	db DBTX
}

// NewPgCohortStatsRepository creates a new PostgreSQL cohort stats repository.
func NewPgCohortStatsRepository(db DBTX) *PgCohortStatsRepository {
	return &PgCohortStatsRepository{db: db}
}

// Adjust upserts the cohort row. The conflict path takes the row lock, and
// a first insert seeds only the positive part of each delta.
func (r *PgCohortStatsRepository) Adjust(ctx context.Context, d CohortDelta) error {
	if d.AgeBand < domain.MinAgeBand || d.AgeBand > domain.MaxAgeBand {
		return domain.NewValidationError("age_band", fmt.Sprintf("must be within [%d, %d]", domain.MinAgeBand, domain.MaxAgeBand))
	}
	gender := d.Gender
	if gender == "" {
		gender = domain.GenderUnknown
	}

	query := `
		INSERT INTO restaurant_cohort_stats (restaurant_id, age_band, gender, like_count, review_count, rating_sum, updated_at)
		VALUES ($1, $2, $3, GREATEST($4::bigint, 0), GREATEST($5::bigint, 0), GREATEST($6::bigint, 0), NOW())
		ON CONFLICT (restaurant_id, age_band, gender) DO UPDATE SET
			like_count = GREATEST(restaurant_cohort_stats.like_count + $4::bigint, 0),
			review_count = GREATEST(restaurant_cohort_stats.review_count + $5::bigint, 0),
			rating_sum = GREATEST(restaurant_cohort_stats.rating_sum + $6::bigint, 0),
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query, d.RestaurantID, d.AgeBand, string(gender), d.Likes, d.Reviews, d.Rating)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return domain.NewRestaurantNotFound(d.RestaurantID)
		}
		return fmt.Errorf("failed to adjust cohort stats: %w", err)
	}
	return nil
}

// Get returns one cohort row.
func (r *PgCohortStatsRepository) Get(ctx context.Context, restaurantID int64, ageBand int, gender domain.Gender) (*domain.CohortStat, error) {
	query := `
		SELECT restaurant_id, age_band, gender, like_count, review_count, rating_sum
		FROM restaurant_cohort_stats
		WHERE restaurant_id = $1 AND age_band = $2 AND gender = $3`

	var (
		s          domain.CohortStat
		band       int16
		genderCode string
	)
	err := r.db.QueryRow(ctx, query, restaurantID, ageBand, string(gender)).
		Scan(&s.RestaurantID, &band, &genderCode, &s.LikeCount, &s.ReviewCount, &s.RatingSum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("cohort stats", fmt.Sprintf("%d/%d/%s", restaurantID, ageBand, gender))
		}
		return nil, fmt.Errorf("failed to get cohort stats: %w", err)
	}
	s.AgeBand = int(band)
	s.Gender = domain.Gender(genderCode)
	return &s, nil
}
