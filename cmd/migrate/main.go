package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"contractanalyzer/internal/config"
	"contractanalyzer/internal/logger"
)

const usage = "Usage: migrate [up|down|steps N|version|force V]"

// migrationsSource can be overridden for deployments that ship migrations
// outside the working directory.
func migrationsSource() string {
	if dir := os.Getenv("CONTRACTS_MIGRATIONS_DIR"); dir != "" {
		return "file://" + dir
	}
	return "file://db/migrations"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DB.Driver != "postgres" {
		return fmt.Errorf("migrations require db.driver=postgres, got %q", cfg.DB.Driver)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	m, err := migrate.New(migrationsSource(), cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	switch cmd := args[0]; cmd {
	case "up":
		if err := m.Up(); ignoreNoChange(err) != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		zlog.Info("migrations applied")

	case "down":
		if err := m.Down(); ignoreNoChange(err) != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		zlog.Info("migrations reverted")

	case "steps", "force":
		if len(args) < 2 {
			return fmt.Errorf("%s requires a number argument", cmd)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid %s argument: %w", cmd, err)
		}
		if cmd == "force" {
			if err := m.Force(n); err != nil {
				return fmt.Errorf("migration force failed: %w", err)
			}
			zlog.Info("migration version forced", zap.Int("version", n))
			return nil
		}
		if err := m.Steps(n); ignoreNoChange(err) != nil {
			return fmt.Errorf("migration steps failed: %w", err)
		}
		zlog.Info("migration steps applied", zap.Int("steps", n))

	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get version: %w", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
