// Package counters applies engagement and review mutations to the counters
// the listing engine ranks by.
//
// Every read-modify-write runs in one transaction that locks the restaurant
// row with SELECT ... FOR UPDATE before it touches the restaurant's cohort
// row, so concurrent writers acquire locks in the same order. Decrements are
// floored at zero. A transaction aborted by a deadlock, serialization failure
// or lost connection is returned as a domain.TransientError that callers may
// retry once.
package counters

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/observability"
	"github.com/tastemap/listing-service/internal/repository"
)

// Store is the database handle the service runs on. *database.DB satisfies it.
type Store interface {
	repository.DBTX
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Operation names used in logs, metrics and transient errors.
const (
	OpIncreaseView        = "increase_view"
	OpToggleLike          = "toggle_like"
	OpReviewCreated       = "review_created"
	OpReviewRatingChanged = "review_rating_changed"
	OpReviewDeleted       = "review_deleted"
)

// Service owns every counter mutation.
type Service struct {
	store   Store
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewService creates a counter service. metrics may be nil.
func NewService(store Store, logger zerolog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		logger:  logger.With().Str("component", "counters").Logger(),
		metrics: metrics,
	}
}

// txRepos are the repositories bound to one transaction.
type txRepos struct {
	stats   repository.StatsRepository
	cohorts repository.CohortStatsRepository
	likes   repository.LikeRepository
	users   repository.UserRepository
}

func newTxRepos(tx pgx.Tx) txRepos {
	return txRepos{
		stats:   repository.NewPgStatsRepository(tx),
		cohorts: repository.NewPgCohortStatsRepository(tx),
		likes:   repository.NewPgLikeRepository(tx),
		users:   repository.NewPgUserRepository(tx),
	}
}

// IncreaseView adds one view. The increment is a single atomic statement and
// needs no explicit lock.
func (s *Service) IncreaseView(ctx context.Context, restaurantID int64) (int64, error) {
	start := time.Now()
	views, err := repository.NewPgStatsRepository(s.store).IncrementViews(ctx, restaurantID)
	err = s.finish(ctx, OpIncreaseView, restaurantID, 0, start, err)
	return views, err
}

// ToggleLike removes the user's like if present and adds it otherwise. The
// user's cohort like counter follows when the user's age band is known.
func (s *Service) ToggleLike(ctx context.Context, userID, restaurantID int64) (*domain.LikeResult, error) {
	start := time.Now()
	var result *domain.LikeResult

	err := s.inTx(ctx, func(r txRepos) error {
		stats, err := r.stats.GetForUpdate(ctx, restaurantID)
		if err != nil {
			return err
		}
		cohort, err := r.users.ResolveCohort(ctx, userID)
		if err != nil {
			return err
		}

		removed, err := r.likes.Delete(ctx, userID, restaurantID)
		if err != nil {
			return err
		}
		var delta int64
		if removed {
			stats.LikeCount = max(stats.LikeCount-1, 0)
			delta = -1
		} else {
			inserted, err := r.likes.Insert(ctx, userID, restaurantID)
			if err != nil {
				return err
			}
			// A conflicting row means the like is already counted.
			if inserted {
				stats.LikeCount++
				delta = 1
			}
		}

		if delta != 0 {
			if err := r.stats.Save(ctx, stats); err != nil {
				return err
			}
		}
		if delta != 0 && cohort.Resolved() {
			if err := r.cohorts.Adjust(ctx, repository.CohortDelta{
				RestaurantID: restaurantID,
				AgeBand:      *cohort.AgeBand,
				Gender:       cohort.Gender,
				Likes:        delta,
			}); err != nil {
				return err
			}
		}

		result = &domain.LikeResult{LikeCount: stats.LikeCount, IsLiked: !removed}
		return nil
	})

	if err = s.finish(ctx, OpToggleLike, restaurantID, userID, start, err); err != nil {
		return nil, err
	}
	return result, nil
}

// OnReviewCreated folds a new review into the restaurant counters and, when
// userID resolves to a cohort, into the author's cohort counters.
func (s *Service) OnReviewCreated(ctx context.Context, restaurantID, userID int64, rating int) error {
	if err := domain.ValidateRating("rating", rating); err != nil {
		return err
	}
	return s.applyReview(ctx, OpReviewCreated, restaurantID, userID,
		func(st *domain.RestaurantStats) { st.ApplyReviewCreated(rating) },
		repository.CohortDelta{Reviews: 1, Rating: int64(rating)})
}

// OnReviewRatingChanged moves a review from oldRating to newRating.
func (s *Service) OnReviewRatingChanged(ctx context.Context, restaurantID, userID int64, oldRating, newRating int) error {
	if err := domain.ValidateRating("old_rating", oldRating); err != nil {
		return err
	}
	if err := domain.ValidateRating("new_rating", newRating); err != nil {
		return err
	}
	return s.applyReview(ctx, OpReviewRatingChanged, restaurantID, userID,
		func(st *domain.RestaurantStats) { st.ApplyRatingChanged(oldRating, newRating) },
		repository.CohortDelta{Rating: int64(newRating - oldRating)})
}

// OnReviewDeleted removes a review from the counters.
func (s *Service) OnReviewDeleted(ctx context.Context, restaurantID, userID int64, rating int) error {
	if err := domain.ValidateRating("rating", rating); err != nil {
		return err
	}
	return s.applyReview(ctx, OpReviewDeleted, restaurantID, userID,
		func(st *domain.RestaurantStats) { st.ApplyReviewDeleted(rating) },
		repository.CohortDelta{Reviews: -1, Rating: -int64(rating)})
}

func (s *Service) applyReview(
	ctx context.Context,
	op string,
	restaurantID, userID int64,
	apply func(*domain.RestaurantStats),
	delta repository.CohortDelta,
) error {
	start := time.Now()

	err := s.inTx(ctx, func(r txRepos) error {
		stats, err := r.stats.GetForUpdate(ctx, restaurantID)
		if err != nil {
			return err
		}
		apply(stats)
		if err := r.stats.Save(ctx, stats); err != nil {
			return err
		}

		if userID == 0 {
			return nil
		}
		cohort, err := r.users.ResolveCohort(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.Debug().Int64("user_id", userID).Str("operation", op).
					Msg("review author not found, skipping cohort counters")
				return nil
			}
			return err
		}
		if !cohort.Resolved() || (delta.Reviews == 0 && delta.Rating == 0) {
			return nil
		}

		delta.RestaurantID = restaurantID
		delta.AgeBand = *cohort.AgeBand
		delta.Gender = cohort.Gender
		return r.cohorts.Adjust(ctx, delta)
	})

	return s.finish(ctx, op, restaurantID, userID, start, err)
}

// IsLiked reports whether the user currently likes the restaurant.
func (s *Service) IsLiked(ctx context.Context, userID, restaurantID int64) (bool, error) {
	return repository.NewPgLikeRepository(s.store).Exists(ctx, userID, restaurantID)
}

// GetStats returns the counters of one restaurant.
func (s *Service) GetStats(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error) {
	return repository.NewPgStatsRepository(s.store).Get(ctx, restaurantID)
}

// GetStatsMany returns the counters of up to repository.MaxStatsBatch
// restaurants ordered by id.
func (s *Service) GetStatsMany(ctx context.Context, restaurantIDs []int64) ([]domain.RestaurantStats, error) {
	return repository.NewPgStatsRepository(s.store).GetMany(ctx, restaurantIDs)
}

// inTx runs fn in a transaction, committing on success and rolling back on
// error or panic.
func (s *Service) inTx(ctx context.Context, fn func(txRepos) error) error {
	return s.store.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(newTxRepos(tx))
	})
}

// finish classifies err, logs it and records the mutation outcome.
func (s *Service) finish(ctx context.Context, op string, restaurantID, userID int64, start time.Time, err error) error {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		outcome = "invalid"
	case repository.IsTransient(err):
		outcome = "transient"
		err = domain.NewTransientError(op, err)
	default:
		outcome = "error"
	}

	if outcome == "transient" || outcome == "error" {
		logger := observability.WithRestaurantContext(observability.WithRequestContext(ctx, s.logger), restaurantID)
		if userID != 0 {
			logger = observability.WithRequesterContext(logger, userID)
		}
		logger.Warn().
			Err(err).
			Str("operation", op).
			Msg("counter mutation failed")
	}
	if s.metrics != nil {
		s.metrics.RecordCounterMutation(op, outcome, time.Since(start))
	}
	return err
}
