//go:build integration

package testinfra

import (
	"context"
	"net/url"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/tastemap/listing-service/internal/config"
	"github.com/tastemap/listing-service/internal/database"
)

// PostgresImage is the server image used by integration tests.
const PostgresImage = "postgres:16-alpine"

// SkipIfNoDocker skips the test if the Docker daemon is unreachable.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// MigrationsPath returns the absolute path of the repository migrations.
func MigrationsPath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// StartPostgres runs a PostgreSQL container for the lifetime of t and returns
// its connection settings.
func StartPostgres(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	SkipIfNoDocker(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, PostgresImage,
		tcpostgres.WithDatabase("restaurant_discovery"),
		tcpostgres.WithUsername("discovery"),
		tcpostgres.WithPassword("discovery"),
		tcpostgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	password, _ := u.User.Password()

	return &config.DatabaseConfig{
		Host:              u.Hostname(),
		Port:              port,
		User:              u.User.Username(),
		Password:          password,
		Name:              "restaurant_discovery",
		SSLMode:           config.SSLModeDisable,
		MaxConns:          8,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// MigratedDB starts PostgreSQL, applies every migration and returns the pool.
func MigratedDB(t *testing.T) *database.DB {
	t.Helper()
	cfg := StartPostgres(t)
	logger := zerolog.Nop()

	db, err := database.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	m, err := database.NewMigrator(db, MigrationsPath(t), logger)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	return db
}
