// Package main provides the entry point for the listing service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tastemap/listing-service/internal/config"
	"github.com/tastemap/listing-service/internal/counters"
	"github.com/tastemap/listing-service/internal/database"
	"github.com/tastemap/listing-service/internal/listing"
	"github.com/tastemap/listing-service/internal/observability"
	"github.com/tastemap/listing-service/internal/repository"
	httpserver "github.com/tastemap/listing-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("listing-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Score weights: configured values, optionally overlaid by a calibration file.
	weights := listing.Weights{
		Shrinkage:        cfg.Ranking.Shrinkage,
		Popularity:       cfg.Ranking.Popularity,
		CohortShrinkage:  cfg.Ranking.CohortShrinkage,
		CohortRating:     cfg.Ranking.CohortRating,
		CohortPopularity: cfg.Ranking.CohortPopularity,
	}
	// A bad calibration file is logged inside LoadCalibration and the
	// configured weights stay in effect.
	weights, _ = listing.LoadCalibration(cfg.Ranking.CalibrationFile, weights, logger)

	// Create repositories.
	listingRepo := repository.NewPgListingRepository(db)
	userRepo := repository.NewPgUserRepository(db)
	reviewRepo := repository.NewPgReviewRepository(db)

	engine := listing.NewEngine(listing.Config{
		DefaultPageSize:  cfg.Listing.DefaultPageSize,
		MaxPageSize:      cfg.Listing.MaxPageSize,
		ImplicitRadiusKm: cfg.Listing.ImplicitRadiusKm,
		DistanceRadiusKm: cfg.Listing.DistanceRadiusKm,
		MaxSearchTerms:   cfg.Listing.MaxSearchTerms,
		Weights:          weights,
	}, listingRepo, userRepo, logger, metrics)

	counterSvc := counters.NewService(db, logger, metrics)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ReviewPageSize:  cfg.Listing.ReviewPageSize,
		RateLimit: httpserver.RateLimitConfig{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			ClientTTL:         cfg.RateLimit.ClientTTL,
		},
	}

	httpSrv := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Listing:  engine,
		Counters: counterSvc,
		Reviews:  reviewRepo,
		Users:    userRepo,
		Health:   db,
	}, logger, metrics)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("listing-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down listing-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("listing-service shutdown complete")
	return nil
}
