package main

import (
	"errors"
	"fmt"

	"github.com/SergeiKhy/minilinks/internal/config"
	"github.com/SergeiKhy/minilinks/internal/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateWith((*migrations.Migrator).Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateWith((*migrations.Migrator).Down)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

func migrateWith(step func(*migrations.Migrator) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Storage.Driver != config.DriverPostgres {
		return errors.New("migrations apply only to the postgres storage driver")
	}
	return runMigrations(cfg.DB.URL(), logger, step)
}

func runMigrations(databaseURL string, logger *zap.Logger, step func(*migrations.Migrator) error) error {
	m, err := migrations.New(databaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	if err := step(m); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
