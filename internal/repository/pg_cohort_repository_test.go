package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/listing-service/internal/domain"
)

func TestPgCohortStatsRepository_Adjust(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts with floored deltas", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgCohortStatsRepository(mock)

		mock.ExpectExec("INSERT INTO restaurant_cohort_stats").
			WithArgs(int64(11), 30, "F", int64(-1), int64(0), int64(0)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Adjust(ctx, CohortDelta{RestaurantID: 11, AgeBand: 30, Gender: domain.GenderFemale, Likes: -1})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("defaults an empty gender to unknown", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgCohortStatsRepository(mock)

		mock.ExpectExec("ON CONFLICT \\(restaurant_id, age_band, gender\\) DO UPDATE").
			WithArgs(int64(11), 60, "U", int64(0), int64(1), int64(8)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Adjust(ctx, CohortDelta{RestaurantID: 11, AgeBand: 60, Reviews: 1, Rating: 8})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an out of range band", func(t *testing.T) {
		repo := NewPgCohortStatsRepository(nil)

		for _, band := range []int{0, 5, 70} {
			err := repo.Adjust(ctx, CohortDelta{RestaurantID: 1, AgeBand: band, Gender: domain.GenderMale, Likes: 1})
			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr), "band %d", band)
			assert.Equal(t, "age_band", validationErr.Field)
		}
	})

	t.Run("maps a foreign key violation to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgCohortStatsRepository(mock)

		mock.ExpectExec("INSERT INTO restaurant_cohort_stats").
			WithArgs(int64(99), 20, "M", int64(1), int64(0), int64(0)).
			WillReturnError(&pgconn.PgError{Code: "23503"})

		err = repo.Adjust(ctx, CohortDelta{RestaurantID: 99, AgeBand: 20, Gender: domain.GenderMale, Likes: 1})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("preserves transient driver errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgCohortStatsRepository(mock)

		mock.ExpectExec("INSERT INTO restaurant_cohort_stats").
			WithArgs(int64(1), 20, "M", int64(1), int64(0), int64(0)).
			WillReturnError(&pgconn.PgError{Code: "40P01"})

		err = repo.Adjust(ctx, CohortDelta{RestaurantID: 1, AgeBand: 20, Gender: domain.GenderMale, Likes: 1})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})
}

func TestPgCohortStatsRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the cohort row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgCohortStatsRepository(mock)

		rows := pgxmock.NewRows([]string{"restaurant_id", "age_band", "gender", "like_count", "review_count", "rating_sum"}).
			AddRow(int64(11), int16(30), "F", int64(4), int64(2), int64(17))
		mock.ExpectQuery("SELECT .* FROM restaurant_cohort_stats").
			WithArgs(int64(11), 30, "F").
			WillReturnRows(rows)

		got, err := repo.Get(ctx, 11, 30, domain.GenderFemale)
		require.NoError(t, err)
		assert.Equal(t, domain.CohortStat{
			RestaurantID: 11,
			AgeBand:      30,
			Gender:       domain.GenderFemale,
			LikeCount:    4,
			ReviewCount:  2,
			RatingSum:    17,
		}, *got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found error when absent", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgCohortStatsRepository(mock)

		mock.ExpectQuery("SELECT .* FROM restaurant_cohort_stats").
			WithArgs(int64(11), 40, "M").
			WillReturnError(pgx.ErrNoRows)

		got, err := repo.Get(ctx, 11, 40, domain.GenderMale)
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}
