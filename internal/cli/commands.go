package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"timesheet-service/internal/app"
	"timesheet-service/internal/auth"
	"timesheet-service/internal/config"
	httphandler "timesheet-service/internal/http"
	"timesheet-service/internal/http/middleware"
	"timesheet-service/internal/logger"
	"timesheet-service/internal/repository"
	"timesheet-service/internal/service"
)

func loadApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(cfg, logger.New(cfg.Environment))
}

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Config.RequireHTTP(); err != nil {
				return err
			}

			tokenParser := auth.NewParser(a.Config.Auth.AccessSecret)
			handler := httphandler.NewHandler(a.Zones, a.Geofence, a.Reconciler, a.Cleaner, a.Generator, httphandler.JobDefaults{
				Reconcile: a.ReconcileDefaults(),
				Cleanup:   a.CleanupDefaults(),
			}, a.Log)
			router := httphandler.NewRouter(handler, middleware.Auth(tokenParser), a.Config.Environment, a.Log)

			addr := fmt.Sprintf("%s:%d", a.Config.HTTP.Host, a.Config.HTTP.Port)
			a.Log.Info().Str("addr", addr).Msg("starting timesheet service")

			return router.Run(addr)
		},
	}
}

// GenerateTodayCmd returns the generate-today command
func GenerateTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-today",
		Short: "Create today's draft timesheets from active assignments",
		Long: `Create one draft timesheet per active employee assignment for today.

Weekends are skipped. Assignments whose employee already has an overlapping
timesheet today are left alone, so the command is safe to re-run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			report, err := a.Generator.GenerateForToday(ctx)
			if err != nil {
				return err
			}
			service.RunPostCommit(ctx, report.PostCommit, a.Log)

			printGenerationReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

// ReconcileCmd returns the reconcile command
func ReconcileCmd() *cobra.Command {
	var (
		batchSize   int
		maxAgeHours int
		employeeID  string
		dryRun      bool
		backlog     bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Process pending offline timesheets",
		Long: `Validate pending offline timesheets and mark them synced.

Each record is checked for structure, geofence compliance and business rules.
Records that fail stay pending with the reason stored for triage.

Examples:
  timesheet-service reconcile
  timesheet-service reconcile --dry-run
  timesheet-service reconcile --employee-id 5f0c... --max-age-hours 72
  timesheet-service reconcile --backlog`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if backlog {
				stats, err := a.Reconciler.Backlog(ctx)
				if err != nil {
					return err
				}
				printBacklog(out, stats)
				return nil
			}

			opts, err := reconcileOptions(a.ReconcileDefaults(), batchSize, maxAgeHours, employeeID, dryRun)
			if err != nil {
				return err
			}

			report, err := a.Reconciler.Reconcile(ctx, opts)
			if report != nil {
				service.RunPostCommit(ctx, report.PostCommit, a.Log)
				printReconcileReport(out, report)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per batch (default from RECONCILE_BATCH_SIZE)")
	cmd.Flags().IntVar(&maxAgeHours, "max-age-hours", 0, "Only process entries created within this many hours (default from RECONCILE_MAX_AGE)")
	cmd.Flags().StringVar(&employeeID, "employee-id", "", "Only process this employee's entries")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run every check without writing changes or publishing events")
	cmd.Flags().BoolVar(&backlog, "backlog", false, "Show the offline backlog and exit")

	return cmd
}

func reconcileOptions(defaults service.ReconcileOptions, batchSize, maxAgeHours int, employeeID string, dryRun bool) (service.ReconcileOptions, error) {
	opts := defaults
	opts.DryRun = dryRun
	if batchSize < 0 || maxAgeHours < 0 {
		return opts, fmt.Errorf("--batch-size and --max-age-hours must not be negative")
	}
	if batchSize > 0 {
		opts.BatchSize = batchSize
	}
	if maxAgeHours > 0 {
		opts.MaxAge = time.Duration(maxAgeHours) * time.Hour
	}
	if employeeID = strings.TrimSpace(employeeID); employeeID != "" {
		id, err := uuid.Parse(employeeID)
		if err != nil {
			return opts, fmt.Errorf("invalid --employee-id: %w", err)
		}
		opts.EmployeeID = &id
	}
	return opts, nil
}

// CleanupCmd returns the cleanup command
func CleanupCmd() *cobra.Command {
	var (
		days   int
		target string
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune aged geofence data",
		Long: `Null aged location history, violations and GPS logs, and remove orphaned zones.

Targets: locations, violations, logs, orphaned, all.
Without --force a preview is shown and confirmation is asked first.

Examples:
  timesheet-service cleanup --dry-run
  timesheet-service cleanup --type locations --days 30
  timesheet-service cleanup --type all --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := service.ParseCleanupTarget(target)
			if err != nil {
				return err
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			opts := a.CleanupDefaults()
			opts.Target = parsed
			opts.DryRun = dryRun
			opts.Force = force
			if days > 0 {
				opts.RetentionDays = days
			}

			return runCleanup(cmd, a.Cleaner, opts, func(ctx context.Context, hooks []service.PostCommitHook) {
				service.RunPostCommit(ctx, hooks, a.Log)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (default from RETENTION_DAYS)")
	cmd.Flags().StringVar(&target, "type", string(service.CleanupAll), "What to clean: locations, violations, logs, orphaned, all")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count what would be cleaned without changing anything")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

type cleaner interface {
	Cleanup(ctx context.Context, opts service.CleanupOptions) (*service.CleanupReport, error)
}

// runCleanup previews an unforced destructive run and asks before applying it.
func runCleanup(cmd *cobra.Command, svc cleaner, opts service.CleanupOptions, afterCommit func(context.Context, []service.PostCommitHook)) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !opts.DryRun && !opts.Force {
		preview := opts
		preview.DryRun = true
		report, err := svc.Cleanup(ctx, preview)
		if err != nil {
			return err
		}
		printCleanupReport(out, report)
		if report.Total == 0 {
			fmt.Fprintln(out, "Nothing to clean.")
			return nil
		}
		if !confirmPrompt(cmd.InOrStdin(), out, fmt.Sprintf("Apply cleanup to %d record(s)?", report.Total)) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
		opts.Force = true
	}

	report, err := svc.Cleanup(ctx, opts)
	if err != nil {
		return err
	}
	afterCommit(ctx, report.PostCommit)
	printCleanupReport(out, report)
	return nil
}

// ZonesCmd returns the zones command
func ZonesCmd() *cobra.Command {
	var (
		projectID  string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "zones",
		Short: "List geofence zones",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter repository.ZoneListFilter
			if projectID != "" {
				id, err := uuid.Parse(projectID)
				if err != nil {
					return fmt.Errorf("invalid --project-id: %w", err)
				}
				filter.ProjectID = &id
			}
			filter.ActiveOnly = activeOnly

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			zones, err := a.Zones.ListZones(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printZones(cmd.OutOrStdout(), zones)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Only zones of this project")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active zones")

	return cmd
}
