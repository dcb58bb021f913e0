//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/listing"
	"github.com/tastemap/listing-service/internal/repository"
	"github.com/tastemap/listing-service/internal/testinfra"
)

func loadStats(t *testing.T, db repository.DBTX) (map[int64]domain.RestaurantStats, float64) {
	t.Helper()
	rows, err := db.Query(context.Background(),
		`SELECT id, view_count, like_count, review_count, rating_avg FROM restaurants`)
	require.NoError(t, err)
	defer rows.Close()

	stats := make(map[int64]domain.RestaurantStats)
	var sum float64
	for rows.Next() {
		var s domain.RestaurantStats
		require.NoError(t, rows.Scan(&s.RestaurantID, &s.ViewCount, &s.LikeCount, &s.ReviewCount, &s.RatingAvg))
		stats[s.RestaurantID] = s
		sum += s.RatingAvg
	}
	require.NoError(t, rows.Err())
	require.NotEmpty(t, stats)
	return stats, sum / float64(len(stats))
}

func TestListing_PersonalizedScoreMatchesGo(t *testing.T) {
	db := testinfra.MigratedDB(t)
	ctx := context.Background()
	pool := db.Pool()
	seedRestaurants(t, pool, 23)

	birth := time.Date(1995, 3, 1, 0, 0, 0, 0, time.UTC)
	band := domain.AgeBandFromBirth(&birth, time.Now())
	require.NotNil(t, band)

	var userID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO users (name, birth_date, gender) VALUES ('park', $1, 'female') RETURNING id`, birth).Scan(&userID))

	cohorts := repository.NewPgCohortStatsRepository(pool)
	deltas := []repository.CohortDelta{
		{RestaurantID: 2, Likes: 4, Reviews: 3, Rating: 30},
		{RestaurantID: 5, Reviews: 1, Rating: 2},
		// Likes without reviews earn no bonus at all.
		{RestaurantID: 9, Likes: 6},
		{RestaurantID: 14, Likes: 1, Reviews: 8, Rating: 72},
	}
	own := make(map[int64]*domain.CohortStat)
	for _, d := range deltas {
		d.AgeBand, d.Gender = *band, domain.GenderFemale
		require.NoError(t, cohorts.Adjust(ctx, d))
		own[d.RestaurantID] = &domain.CohortStat{
			RestaurantID: d.RestaurantID, AgeBand: d.AgeBand, Gender: d.Gender,
			LikeCount: d.Likes, ReviewCount: d.Reviews, RatingSum: d.Rating,
		}
	}
	// Another cohort's counters must not leak into this requester's scores.
	require.NoError(t, cohorts.Adjust(ctx, repository.CohortDelta{
		RestaurantID: 3, AgeBand: *band, Gender: domain.GenderMale, Likes: 50, Reviews: 20, Rating: 200,
	}))

	cfg := listing.DefaultConfig()
	engine := listing.NewEngine(cfg, repository.NewPgListingRepository(pool),
		repository.NewPgUserRepository(pool), zerolog.Nop(), nil)

	stats, globalAvg := loadStats(t, pool)
	assert.Equal(t, 0.0, listing.CohortBonus(own[9], globalAvg, cfg.Weights))

	seen := make(map[int64]bool)
	var scores []float64
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		page, err := engine.List(ctx, listing.Request{RequesterID: &userID, Cursor: cursor, Limit: 4})
		require.NoError(t, err)
		for _, row := range page.Rows {
			assert.False(t, seen[row.ID], "row %d repeated", row.ID)
			seen[row.ID] = true

			require.NotNil(t, row.RecScore)
			want := listing.RecScore(stats[row.ID], globalAvg, own[row.ID], cfg.Weights)
			assert.InDelta(t, want, *row.RecScore, 1.1e-6, "restaurant %d", row.ID)
			scores = append(scores, *row.RecScore)
		}
		if !page.HasMore {
			break
		}
		cursor = *page.NextCursor
	}
	assert.Len(t, seen, 23)
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1], scores[i])
	}
}

func TestListing_ImplicitRadius(t *testing.T) {
	db := testinfra.MigratedDB(t)
	ctx := context.Background()
	pool := db.Pool()
	seedRestaurants(t, pool, 6)

	// Busan, around 325 km from the request location.
	_, err := pool.Exec(ctx, `
		INSERT INTO restaurants (name, sido, lat, lng, view_count) VALUES
			('far-1', 'Busan', 35.1796, 129.0756, 100),
			('far-2', 'Busan', 35.1587, 129.1604, 90)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO restaurants (name, view_count) VALUES ('unplaced', 80)`)
	require.NoError(t, err)

	engine := listing.NewEngine(listing.DefaultConfig(), repository.NewPgListingRepository(pool),
		repository.NewPgUserRepository(pool), zerolog.Nop(), nil)
	center := &listing.Point{Lat: 37.55, Lng: 126.97}

	for _, mode := range []listing.SortMode{listing.SortDefault, listing.SortViews} {
		t.Run(string(mode), func(t *testing.T) {
			seen := make(map[int64]bool)
			cursor := ""
			for pages := 0; pages < 10; pages++ {
				page, err := engine.List(ctx, listing.Request{SortMode: mode, Location: center, Cursor: cursor, Limit: 4})
				require.NoError(t, err)
				for _, row := range page.Rows {
					assert.False(t, seen[row.ID], "row %d repeated", row.ID)
					seen[row.ID] = true
					// The implicit radius filters without exposing distance.
					assert.Nil(t, row.DistanceKm)
					assert.LessOrEqual(t, row.ID, int64(6), "restaurant %s lies outside 10 km", row.Name)
				}
				if !page.HasMore {
					break
				}
				cursor = *page.NextCursor
			}
			assert.Len(t, seen, 6)
		})
	}

	t.Run("search text lifts the radius", func(t *testing.T) {
		page, err := engine.List(ctx, listing.Request{SortMode: listing.SortViews, Location: center, SearchText: "far", Limit: 10})
		require.NoError(t, err)
		assert.Len(t, page.Rows, 2)
	})
}
