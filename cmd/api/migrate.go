// AngelaMos | 2026
// migrate.go

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/templates/saas-backend/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	RunE:  runMigrateDown,
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE:  runMigrateVersion,
}

func init() {
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}

	if err := migrations.Up(url); err != nil {
		return err
	}

	slog.Info("migrations applied successfully")
	return runMigrateVersion(cmd, args)
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}

	if err := migrations.Down(url); err != nil {
		return err
	}

	slog.Info("migrations rolled back successfully")
	return nil
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}

	version, dirty, err := migrations.Version(url)
	if err != nil {
		return err
	}

	slog.Info("schema version", "version", version, "dirty", dirty)
	return nil
}

func databaseURL() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	slog.SetDefault(setupLogger(cfg.Log))
	return cfg.Database.URL, nil
}
