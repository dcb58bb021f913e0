//go:build integration

package counters_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/listing-service/internal/counters"
	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/repository"
	"github.com/tastemap/listing-service/internal/testinfra"
)

// retryTransient repeats fn while it reports a transient failure, the way the
// review listener and API clients do.
func retryTransient(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = fn(); !errors.Is(err, domain.ErrTransient) {
			return err
		}
	}
	return err
}

func TestService_ConcurrentMutations(t *testing.T) {
	db := testinfra.MigratedDB(t)
	ctx := context.Background()
	pool := db.Pool()

	var restaurantID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO restaurants (name, lat, lng) VALUES ('dolsot', 37.55, 126.97) RETURNING id`).Scan(&restaurantID))

	birth := time.Date(1992, 6, 15, 0, 0, 0, 0, time.UTC)
	band := domain.AgeBandFromBirth(&birth, time.Now())
	require.NotNil(t, band)

	const users = 12
	userIDs := make([]int64, users)
	for i := range userIDs {
		require.NoError(t, pool.QueryRow(ctx,
			`INSERT INTO users (name, birth_date, gender) VALUES ('diner', $1, 'male') RETURNING id`, birth).Scan(&userIDs[i]))
	}

	svc := counters.NewService(db, zerolog.Nop(), nil)

	var wg sync.WaitGroup
	errs := make(chan error, users*16)
	var wantRatingSum int64
	for i, userID := range userIDs {
		first, final := i%11, (i*7)%11
		wantRatingSum += int64(final)

		// Two togglers per user race on the same like row; three toggles in
		// total leave the restaurant liked.
		for _, toggles := range []int{2, 1} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < toggles; n++ {
					errs <- retryTransient(func() error {
						_, err := svc.ToggleLike(ctx, userID, restaurantID)
						return err
					})
				}
			}()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			steps := []func() error{
				func() error { return svc.OnReviewCreated(ctx, restaurantID, userID, first) },
				func() error { return svc.OnReviewDeleted(ctx, restaurantID, userID, first) },
				func() error { return svc.OnReviewCreated(ctx, restaurantID, userID, first) },
				func() error { return svc.OnReviewRatingChanged(ctx, restaurantID, userID, first, final) },
			}
			for _, step := range steps {
				errs <- retryTransient(step)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- retryTransient(func() error {
				_, err := svc.IncreaseView(ctx, restaurantID)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := svc.GetStats(ctx, restaurantID)
	require.NoError(t, err)
	assert.True(t, stats.Consistent(), "%+v", stats)
	assert.Equal(t, int64(users), stats.ViewCount)
	assert.Equal(t, int64(users), stats.ReviewCount)
	assert.Equal(t, wantRatingSum, stats.RatingSum)

	var likeRows int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM restaurant_likes WHERE restaurant_id = $1`, restaurantID).Scan(&likeRows))
	assert.Equal(t, likeRows, stats.LikeCount)
	assert.Equal(t, int64(users), stats.LikeCount)

	for _, userID := range userIDs {
		liked, err := svc.IsLiked(ctx, userID, restaurantID)
		require.NoError(t, err)
		assert.True(t, liked, "user %d", userID)
	}

	cohort, err := repository.NewPgCohortStatsRepository(pool).Get(ctx, restaurantID, *band, domain.GenderMale)
	require.NoError(t, err)
	assert.Equal(t, int64(users), cohort.LikeCount)
	assert.Equal(t, int64(users), cohort.ReviewCount)
	assert.Equal(t, wantRatingSum, cohort.RatingSum)

	var negatives int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM restaurant_cohort_stats
		WHERE like_count < 0 OR review_count < 0 OR rating_sum < 0`).Scan(&negatives))
	assert.Zero(t, negatives)
}

func TestService_UnlikeFloorsAtZero(t *testing.T) {
	db := testinfra.MigratedDB(t)
	ctx := context.Background()
	pool := db.Pool()

	var restaurantID, userID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO restaurants (name) VALUES ('gukbap') RETURNING id`).Scan(&restaurantID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO users (name) VALUES ('anon') RETURNING id`).Scan(&userID))
	// A like row whose count was never recorded.
	_, err := pool.Exec(ctx,
		`INSERT INTO restaurant_likes (user_id, restaurant_id) VALUES ($1, $2)`, userID, restaurantID)
	require.NoError(t, err)

	svc := counters.NewService(db, zerolog.Nop(), nil)
	result, err := svc.ToggleLike(ctx, userID, restaurantID)
	require.NoError(t, err)
	assert.Equal(t, &domain.LikeResult{LikeCount: 0, IsLiked: false}, result)
}
