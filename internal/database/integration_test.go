//go:build integration

package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/listing-service/internal/database"
	"github.com/tastemap/listing-service/internal/testinfra"
)

func TestDatabase_Integration(t *testing.T) {
	cfg := testinfra.StartPostgres(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := database.New(ctx, cfg, logger)
	require.NoError(t, err)
	defer db.Close()

	t.Run("health", func(t *testing.T) {
		health := db.Health(ctx)
		assert.True(t, health.Healthy(), health.Error)
		assert.Equal(t, cfg.MaxConns, health.MaxConns)
	})

	t.Run("migrations up, step down and up again", func(t *testing.T) {
		m, err := database.NewMigrator(db, testinfra.MigrationsPath(t), logger)
		require.NoError(t, err)
		defer m.Close()

		require.NoError(t, m.Up())
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.False(t, dirty)
		assert.GreaterOrEqual(t, version, uint(1))

		require.NoError(t, m.Up(), "re-running is a no-op")
		require.NoError(t, m.Steps(-1))
		require.NoError(t, m.Steps(1))
	})

	t.Run("transaction commits", func(t *testing.T) {
		var result int
		err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
			return tx.QueryRow(ctx, "SELECT 42").Scan(&result)
		})
		require.NoError(t, err)
		assert.Equal(t, 42, result)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		expected := errors.New("intentional failure")
		err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "INSERT INTO users (name) VALUES ('rolled back')"); err != nil {
				return err
			}
			return expected
		})
		assert.ErrorIs(t, err, expected)

		var n int
		require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM users WHERE name = 'rolled back'").Scan(&n))
		assert.Zero(t, n)
	})

	t.Run("panic rolls back and re-panics", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = db.WithTransaction(ctx, func(tx pgx.Tx) error {
				panic("intentional panic")
			})
		})
	})
}
