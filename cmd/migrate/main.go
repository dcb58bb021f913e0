// Package main provides a CLI tool for database migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"

	"github.com/tastemap/listing-service/internal/config"
	"github.com/tastemap/listing-service/internal/database"
	"github.com/tastemap/listing-service/internal/observability"
)

type action int

const (
	actionNone action = iota
	actionUp
	actionDown
	actionSteps
	actionVersion
	actionForce
)

type options struct {
	action action
	steps  int
	force  int
	path   string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line and checks that exactly one action is set.
func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	up := fs.Bool("up", false, "Apply all pending migrations")
	down := fs.Bool("down", false, "Roll back all migrations")
	steps := fs.Int("steps", 0, "Apply N migrations (negative rolls back)")
	version := fs.Bool("version", false, "Print the current schema version")
	force := fs.Int("force", -1, "Set the schema version without migrating, clearing the dirty flag")
	path := fs.String("path", "", "Override the migrations directory")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{steps: *steps, force: *force, path: *path}
	selected := 0
	pick := func(set bool, a action) {
		if set {
			selected++
			opts.action = a
		}
	}
	pick(*up, actionUp)
	pick(*down, actionDown)
	pick(*steps != 0, actionSteps)
	pick(*version, actionVersion)
	pick(*force >= 0, actionForce)

	switch {
	case selected == 0:
		return opts, errors.New("no action specified: use one of -up, -down, -steps N, -version, -force V")
	case selected > 1:
		return opts, errors.New("specify only one action at a time")
	}
	return opts, nil
}

func run() error {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "migrate").Logger()

	migrationDir := cfg.Database.MigrationPath
	if opts.path != "" {
		migrationDir = opts.path
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	switch opts.action {
	case actionUp:
		err = migrator.Up()
	case actionDown:
		err = migrator.Down()
	case actionSteps:
		err = migrator.Steps(opts.steps)
	case actionForce:
		err = migrator.Force(opts.force)
	}
	if err != nil {
		return err
	}

	printVersion(migrator, logger)
	return nil
}

// printVersion logs the current schema version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info().Msg("no migrations applied")
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
