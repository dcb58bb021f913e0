package repository

import (
	"context"
	"fmt"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/listing"
)

var _ listing.Executor = (*PgListingRepository)(nil)

// PgListingRepository executes planned listing queries.
type PgListingRepository struct {
	db DBTX
}

// NewPgListingRepository creates a new PostgreSQL listing executor.
func NewPgListingRepository(db DBTX) *PgListingRepository {
	return &PgListingRepository{db: db}
}

// FetchListing runs q and scans the base columns followed by the derived
// columns q selects.
func (r *PgListingRepository) FetchListing(ctx context.Context, q *listing.Query) ([]domain.RestaurantSummary, error) {
	rows, err := r.db.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RestaurantSummary, 0, q.FetchLimit())
	for rows.Next() {
		var s domain.RestaurantSummary
		dest := []any{
			&s.ID,
			&s.Name,
			&s.Category,
			&s.BranchInfo,
			&s.Sido,
			&s.Sigugun,
			&s.Dongmyun,
			&s.MainImageURL,
			&s.ViewCount,
			&s.ReviewCount,
			&s.RatingAvg,
			&s.LikeCount,
		}
		var distance, score float64
		if q.IncludeDistance {
			dest = append(dest, &distance)
		}
		if q.IncludeScore {
			dest = append(dest, &score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		if q.IncludeDistance {
			s.DistanceKm = &distance
		}
		if q.IncludeScore {
			s.RecScore = &score
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing rows: %w", err)
	}
	return result, nil
}
