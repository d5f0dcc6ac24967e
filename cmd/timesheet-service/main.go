package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"timesheet-service/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "timesheet-service",
		Short: "Geofenced timesheet service and maintenance jobs",
		Long: `timesheet-service serves the geofence API and runs the scheduled jobs:
draft generation, offline reconciliation and retention cleanup.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.GenerateTodayCmd())
	rootCmd.AddCommand(cli.ReconcileCmd())
	rootCmd.AddCommand(cli.CleanupCmd())
	rootCmd.AddCommand(cli.ZonesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
