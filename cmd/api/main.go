package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/eventcal/core/cmd/api/commands"
)

// @title eventcal API
// @version 1.0
// @description Recurring calendar events: expansion engine, repeat groups and iCalendar exchange

// @license.name MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rootCmd := &cobra.Command{
		Use:           "eventcal",
		Short:         "eventcal API server and tools",
		Long:          `eventcal stores calendar events, expands recurrence rules into concrete dates and keeps repeat groups consistent across single and group edits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	commands.AddConfigFlag(rootCmd)

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewExpandCommand())
	rootCmd.AddCommand(commands.NewImportCommand())
	rootCmd.AddCommand(commands.NewTokenCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
