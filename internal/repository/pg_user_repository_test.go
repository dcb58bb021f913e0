package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/listing-service/internal/domain"
)

func TestPgUserRepository_ResolveCohort(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	newRepo := func(t *testing.T) (*PgUserRepository, pgxmock.PgxPoolIface) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		t.Cleanup(mock.Close)

		repo := NewPgUserRepository(mock)
		repo.now = func() time.Time { return now }
		return repo, mock
	}

	t.Run("derives band and gender", func(t *testing.T) {
		repo, mock := newRepo(t)
		birth := time.Date(1990, 6, 16, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery("SELECT birth_date, gender FROM users WHERE id = \\$1").
			WithArgs(int64(5)).
			WillReturnRows(pgxmock.NewRows([]string{"birth_date", "gender"}).AddRow(&birth, "female"))

		cohort, err := repo.ResolveCohort(ctx, 5)
		require.NoError(t, err)
		require.True(t, cohort.Resolved())
		// Turns 34 the day after now.
		assert.Equal(t, 30, *cohort.AgeBand)
		assert.Equal(t, domain.GenderFemale, cohort.Gender)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing birth date leaves the cohort unresolved", func(t *testing.T) {
		repo, mock := newRepo(t)

		mock.ExpectQuery("SELECT birth_date, gender FROM users").
			WithArgs(int64(5)).
			WillReturnRows(pgxmock.NewRows([]string{"birth_date", "gender"}).AddRow(nil, "M"))

		cohort, err := repo.ResolveCohort(ctx, 5)
		require.NoError(t, err)
		assert.False(t, cohort.Resolved())
		assert.Equal(t, domain.GenderMale, cohort.Gender)
	})

	t.Run("unknown user", func(t *testing.T) {
		repo, mock := newRepo(t)

		mock.ExpectQuery("SELECT birth_date, gender FROM users").
			WithArgs(int64(404)).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.ResolveCohort(ctx, 404)
		var nf *domain.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "user", nf.Entity)
	})
}
