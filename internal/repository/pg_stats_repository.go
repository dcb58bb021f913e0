package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/tastemap/listing-service/internal/domain"
)

const statsColumns = `id, view_count, like_count, review_count, rating_sum, rating_avg, good_count, ok_count, bad_count`

// Compile-time interface verification.
var _ StatsRepository = (*PgStatsRepository)(nil)

// PgStatsRepository is a PostgreSQL implementation of StatsRepository.
type PgStatsRepository struct {
	db DBTX
}

// NewPgStatsRepository creates a new PostgreSQL stats repository.
func NewPgStatsRepository(db DBTX) *PgStatsRepository {
	return &PgStatsRepository{db: db}
}

// Get returns the counters of one restaurant.
func (r *PgStatsRepository) Get(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error) {
	query := `SELECT ` + statsColumns + ` FROM restaurants WHERE id = $1`

	stats, err := scanStats(r.db.QueryRow(ctx, query, restaurantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewRestaurantNotFound(restaurantID)
		}
		return nil, fmt.Errorf("failed to get restaurant stats: %w", err)
	}
	return stats, nil
}

// GetMany returns the counters of the given restaurants ordered by id.
func (r *PgStatsRepository) GetMany(ctx context.Context, restaurantIDs []int64) ([]domain.RestaurantStats, error) {
	if len(restaurantIDs) == 0 {
		return []domain.RestaurantStats{}, nil
	}
	if len(restaurantIDs) > MaxStatsBatch {
		return nil, domain.NewValidationError("ids", "at most "+strconv.Itoa(MaxStatsBatch)+" ids per request")
	}

	query := `SELECT ` + statsColumns + ` FROM restaurants WHERE id = ANY($1) ORDER BY id`

	rows, err := r.db.Query(ctx, query, restaurantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query restaurant stats: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RestaurantStats, 0, len(restaurantIDs))
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restaurant stats: %w", err)
		}
		result = append(result, *stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating restaurant stats: %w", err)
	}
	return result, nil
}

// GetForUpdate reads the counters under a row lock.
func (r *PgStatsRepository) GetForUpdate(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error) {
	query := `SELECT ` + statsColumns + ` FROM restaurants WHERE id = $1 FOR UPDATE`

	stats, err := scanStats(r.db.QueryRow(ctx, query, restaurantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewRestaurantNotFound(restaurantID)
		}
		return nil, fmt.Errorf("failed to lock restaurant stats: %w", err)
	}
	return stats, nil
}

// Save writes every counter back. rating_avg is stored as computed by the
// domain so readers never observe a sum and an average out of step.
func (r *PgStatsRepository) Save(ctx context.Context, s *domain.RestaurantStats) error {
	query := `
		UPDATE restaurants SET
			view_count = $2,
			like_count = $3,
			review_count = $4,
			rating_sum = $5,
			rating_avg = $6,
			good_count = $7,
			ok_count = $8,
			bad_count = $9,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		s.RestaurantID,
		s.ViewCount,
		s.LikeCount,
		s.ReviewCount,
		s.RatingSum,
		s.RatingAvg,
		s.GoodCount,
		s.OKCount,
		s.BadCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save restaurant stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewRestaurantNotFound(s.RestaurantID)
	}
	return nil
}

// IncrementViews adds one view in a single statement.
func (r *PgStatsRepository) IncrementViews(ctx context.Context, restaurantID int64) (int64, error) {
	query := `UPDATE restaurants SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count`

	var views int64
	if err := r.db.QueryRow(ctx, query, restaurantID).Scan(&views); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.NewRestaurantNotFound(restaurantID)
		}
		return 0, fmt.Errorf("failed to increment views: %w", err)
	}
	return views, nil
}

func scanStats(row pgx.Row) (*domain.RestaurantStats, error) {
	var s domain.RestaurantStats
	err := row.Scan(
		&s.RestaurantID,
		&s.ViewCount,
		&s.LikeCount,
		&s.ReviewCount,
		&s.RatingSum,
		&s.RatingAvg,
		&s.GoodCount,
		&s.OKCount,
		&s.BadCount,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
