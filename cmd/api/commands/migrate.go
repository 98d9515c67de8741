package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eventcal/core/internal/infrastructure/database"
	"github.com/eventcal/core/internal/infrastructure/logger"
)

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	var steps int

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the postgres schema of the event store (up, down, version)",
	}
	migrateCmd.PersistentFlags().IntVar(&steps, "steps", 0, "number of migrations to apply or revert (0 = all)")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(mg *database.Migrator) error {
				changed, err := mg.Up(steps)
				if err != nil {
					return err
				}
				reportMigration(cmd, "up", changed)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(mg *database.Migrator) error {
				changed, err := mg.Down(steps)
				if err != nil {
					return err
				}
				reportMigration(cmd, "down", changed)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(mg *database.Migrator) error {
				version, dirty, err := mg.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
				fmt.Fprintf(cmd.OutOrStdout(), "Dirty: %t\n", dirty)
				return nil
			})
		},
	})

	return migrateCmd
}

func withMigrator(cmd *cobra.Command, fn func(*database.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.New(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	mg, err := db.NewMigrator(cfg.Storage.MigrationsPath)
	if err != nil {
		return err
	}
	return fn(mg)
}

func reportMigration(cmd *cobra.Command, direction string, changed bool) {
	if !changed {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations to run")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migration %s completed successfully\n", direction)
}

// migrateUp applies every pending migration, used by serve --migrate.
func migrateUp(db *database.DB, dir string, log *logger.Logger) error {
	mg, err := db.NewMigrator(dir)
	if err != nil {
		return err
	}
	changed, err := mg.Up(0)
	if err != nil {
		return err
	}
	version, _, err := mg.Version()
	if err != nil {
		return err
	}
	log.Infow("Database schema ready", "applied", changed, "version", version)
	return nil
}
