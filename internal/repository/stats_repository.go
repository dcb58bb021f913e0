package repository

import (
	"context"

	"github.com/tastemap/listing-service/internal/domain"
)

// MaxStatsBatch bounds the ids accepted by StatsRepository.GetMany.
const MaxStatsBatch = 100

// StatsRepository reads and writes the counters embedded in the restaurants
// table.
type StatsRepository interface {
	// Get returns the counters of one restaurant.
	// Returns domain.ErrNotFound if the restaurant does not exist.
	Get(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error)

	// GetMany returns the counters of the given restaurants ordered by id.
	// Unknown ids are omitted. At most MaxStatsBatch ids are accepted.
	GetMany(ctx context.Context, restaurantIDs []int64) ([]domain.RestaurantStats, error)

	// GetForUpdate reads the counters and holds the row lock until the
	// surrounding transaction ends. It must run inside a transaction.
	// Returns domain.ErrNotFound if the restaurant does not exist.
	GetForUpdate(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error)

	// Save writes every counter of stats back to its row.
	Save(ctx context.Context, stats *domain.RestaurantStats) error

	// IncrementViews adds one view and returns the new view count.
	// Returns domain.ErrNotFound if the restaurant does not exist.
	IncrementViews(ctx context.Context, restaurantID int64) (int64, error)
}

// CohortStatsRepository maintains per-cohort counters.
type CohortStatsRepository interface {
	// Adjust adds the deltas to the cohort row, creating it on first use.
	// Every counter is floored at zero.
	Adjust(ctx context.Context, delta CohortDelta) error

	// Get returns one cohort row.
	// Returns domain.ErrNotFound if the row does not exist.
	Get(ctx context.Context, restaurantID int64, ageBand int, gender domain.Gender) (*domain.CohortStat, error)
}

// CohortDelta is a signed change to one cohort row.
type CohortDelta struct {
	RestaurantID int64
	AgeBand      int
	Gender       domain.Gender
	Likes        int64
	Reviews      int64
	Rating       int64
}

// LikeRepository stores which users like which restaurants.
type LikeRepository interface {
	// Exists reports whether the user likes the restaurant.
	Exists(ctx context.Context, userID, restaurantID int64) (bool, error)

	// Insert records a like. It returns false when the like already existed.
	Insert(ctx context.Context, userID, restaurantID int64) (bool, error)

	// Delete removes a like. It returns false when there was nothing to remove.
	Delete(ctx context.Context, userID, restaurantID int64) (bool, error)
}

// UserRepository resolves user attributes needed by ranking.
type UserRepository interface {
	// ResolveCohort derives the user's cohort from the stored birth date and
	// gender. Returns domain.ErrNotFound if the user does not exist.
	ResolveCohort(ctx context.Context, userID int64) (domain.Cohort, error)
}
