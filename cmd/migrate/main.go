package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"

	"github.com/ogurasousui/codex-expense-approval/internal/platform/config"
	"github.com/ogurasousui/codex-expense-approval/internal/platform/logging"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
		migrationsDir = flag.String("dir", "assets/migrations", "directory containing migration files")
	)
	flag.Parse()

	action := "up"
	if flag.NArg() > 0 {
		action = flag.Arg(0)
	}

	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfgPath := effectiveConfigPath(*configPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to build logger")
	}

	if cfg.Storage.Driver != config.StoragePostgres {
		logger.Fatal().Str("driver", cfg.Storage.Driver).Msg("migrations apply only to the postgres storage driver")
	}

	if err := runMigration(logger, action, *migrationsDir, cfg.Database.DSN()); err != nil {
		logger.Fatal().Err(err).Str("action", action).Msg("migration failed")
	}

	logger.Info().Str("action", action).Msg("migration completed")
}

func effectiveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.PathFromEnv()
}

func runMigration(logger zerolog.Logger, action, dir, dsn string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve path for %s: %w", dir, err)
	}
	absDir = filepath.ToSlash(absDir)

	m, err := migrate.New(fmt.Sprintf("file://%s", absDir), dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	switch action {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	case "drop":
		return m.Drop()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				logger.Info().Msg("no migration applied")
				return nil
			}
			return err
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migration version")
		return nil
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
}
