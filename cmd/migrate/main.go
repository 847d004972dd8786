// Package main provides the schema migration CLI of the materials aggregator.
//
// Usage:
//
//	migrate [-path dir] up
//	migrate [-path dir] down
//	migrate [-path dir] steps N
//	migrate [-path dir] version
//	migrate [-path dir] force V
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/materials-aggregator/internal/config"
	"github.com/helixir/materials-aggregator/internal/database"
	"github.com/helixir/materials-aggregator/internal/observability"
)

type action string

const (
	actionUp      action = "up"
	actionDown    action = "down"
	actionSteps   action = "steps"
	actionVersion action = "version"
	actionForce   action = "force"
)

// command is one parsed invocation.
type command struct {
	action action
	arg    int
	path   string
}

var errUsage = errors.New("usage: migrate [-path dir] up|down|steps N|version|force V")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseCommand(args []string, stderr io.Writer) (command, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "Override the migrations directory path")
	if err := fs.Parse(args); err != nil {
		return command{}, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return command{}, errUsage
	}

	cmd := command{action: action(rest[0]), path: *path}
	switch cmd.action {
	case actionUp, actionDown, actionVersion:
		if len(rest) != 1 {
			return command{}, errUsage
		}
	case actionSteps, actionForce:
		if len(rest) != 2 {
			return command{}, errUsage
		}
		n, err := strconv.Atoi(rest[1])
		if err != nil {
			return command{}, fmt.Errorf("%s: invalid number %q", cmd.action, rest[1])
		}
		if cmd.action == actionSteps && n == 0 {
			return command{}, fmt.Errorf("steps: N must be non-zero")
		}
		if cmd.action == actionForce && n < 0 {
			return command{}, fmt.Errorf("force: version must be >= 0")
		}
		cmd.arg = n
	default:
		return command{}, fmt.Errorf("unknown action %q: %w", rest[0], errUsage)
	}
	return cmd, nil
}

func run(args []string) error {
	cmd, err := parseCommand(args, os.Stderr)
	if err != nil {
		return err
	}

	// Load configuration (database settings from env/config file).
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Console output for the CLI tool.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "migrate").Logger()

	migrationDir := cfg.Database.MigrationPath
	if cmd.path != "" {
		migrationDir = cmd.path
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

	if err := execute(migrator, cmd, logger); err != nil {
		return err
	}
	printVersion(migrator, logger)
	return nil
}

// schemaMigrator is the part of database.Migrator the CLI drives.
type schemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func execute(m schemaMigrator, cmd command, logger zerolog.Logger) error {
	switch cmd.action {
	case actionUp:
		logger.Info().Msg("running all pending migrations")
		if err := m.Up(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case actionDown:
		logger.Warn().Msg("rolling back all migrations")
		if err := m.Down(); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case actionSteps:
		logger.Info().Int("steps", cmd.arg).Msg("running migration steps")
		if err := m.Steps(cmd.arg); err != nil {
			return fmt.Errorf("migrate steps: %w", err)
		}
	case actionForce:
		logger.Warn().Int("version", cmd.arg).Msg("forcing migration version")
		if err := m.Force(cmd.arg); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
	case actionVersion:
	default:
		return errUsage
	}
	return nil
}

func printVersion(m schemaMigrator, logger zerolog.Logger) {
	v, dirty, err := m.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
