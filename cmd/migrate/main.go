package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/liamcoop/ruleeval/internal/logger"
	"github.com/liamcoop/ruleeval/migrations"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "", "Migrations directory (defaults to the files built into the binary)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("Database URL is required. Use -database flag or DATABASE_URL environment variable")
	}

	m, err := open(databaseURL, migrationsPath)
	if err != nil {
		logger.Fatal("Failed to create migration instance", "error", err)
	}
	defer m.Close()

	if err := run(m, command, flag.Args()); err != nil {
		logger.Fatal("Migration failed", "command", command, "error", err)
	}
}

func open(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	if migrationsPath == "" {
		logger.Info("Using embedded migrations")
		return migrations.New(databaseURL)
	}

	logger.Info("Using migrations directory", "path", migrationsPath)
	return migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
}

// migrator is the subset of *migrate.Migrate the commands use
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
}

func run(m migrator, command string, args []string) error {
	switch command {
	case "up":
		logger.Info("Running migrations up")
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No migrations to run (database is up to date)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("Migrations completed")

	case "down":
		logger.Info("Rolling back migrations")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("rollback migrations: %w", err)
		}
		logger.Info("Rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("No migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		logger.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[0], err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("Forced version", "version", version)

	default:
		return fmt.Errorf("unknown command: %s (use: up, down, version, force)", command)
	}

	return nil
}
