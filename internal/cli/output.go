package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"timesheet-service/internal/model"
	"timesheet-service/internal/repository"
	"timesheet-service/internal/service"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.FgCyan)
)

func confirmPrompt(in io.Reader, out io.Writer, msg string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", msg)
	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func dryRunBanner(out io.Writer, dryRun bool) {
	if dryRun {
		fmt.Fprintln(out, warnColor.Sprint("DRY RUN - no changes will be written"))
	}
}

func printGenerationReport(out io.Writer, r *service.GenerationReport) {
	if r.Skipped {
		fmt.Fprintf(out, "%s %s: %s\n", warnColor.Sprint("Skipped"), r.Date, r.SkipReason)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Date\t%s\n", r.Date)
	fmt.Fprintf(w, "Assignments\t%d\n", r.Total)
	fmt.Fprintf(w, "Created\t%d\n", r.Created)
	fmt.Fprintf(w, "Already existing\t%d\n", r.SkippedExisting)
	fmt.Fprintf(w, "Failed\t%d\n", r.Failed)
	w.Flush()

	if r.Failed > 0 {
		fmt.Fprintln(out, errColor.Sprintf("%d draft timesheet(s) could not be created", r.Failed))
	} else {
		fmt.Fprintln(out, okColor.Sprint("✓ Draft timesheets generated"))
	}
}

func printReconcileReport(out io.Writer, r *service.ReconciliationReport) {
	dryRunBanner(out, r.DryRun)

	if r.Found == 0 {
		fmt.Fprintln(out, "No offline timesheets found to process.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Metric\tCount\n")
	fmt.Fprintf(w, "Found\t%d\n", r.Found)
	fmt.Fprintf(w, "Successfully processed\t%d\n", r.Processed)
	fmt.Fprintf(w, "Structural errors\t%d\n", r.StructuralErrors)
	fmt.Fprintf(w, "Business rule errors\t%d\n", r.BusinessRuleErrors)
	fmt.Fprintf(w, "Persistence errors\t%d\n", r.PersistenceErrors)
	fmt.Fprintf(w, "Violations detected\t%d\n", r.ViolationsDetected)
	if r.DryRun {
		fmt.Fprintf(w, "Events suppressed\t%d\n", r.EventsSuppressed)
	} else {
		fmt.Fprintf(w, "Events published\t%d\n", r.EventsPublished)
	}
	fmt.Fprintf(w, "Success rate\t%.2f%%\n", r.SuccessRate)
	w.Flush()

	if r.ViolationsDetected > 0 {
		fmt.Fprintln(out, warnColor.Sprintf("! %d timesheet(s) had geofence violations", r.ViolationsDetected))
	}
	if len(r.Failures) > 0 {
		fmt.Fprintln(out, errColor.Sprintf("✗ %d timesheet(s) failed to process", len(r.Failures)))
		for _, f := range r.Failures {
			fmt.Fprintf(out, "  %s  %-14s %s\n", f.TimesheetID, f.Stage, f.Reason)
		}
	}
	if len(r.PendingConflicts) > 0 {
		fmt.Fprintln(out, warnColor.Sprintf("! %d pending duplicate group(s) need triage", len(r.PendingConflicts)))
		for _, c := range r.PendingConflicts {
			fmt.Fprintf(out, "  employee %s on %s: %d copies\n", c.EmployeeID, c.Date, len(c.TimesheetIDs))
		}
	}
	if r.Processed > 0 && r.Errors() == 0 {
		fmt.Fprintln(out, okColor.Sprint("✓ All timesheets processed successfully"))
	}
}

func printCleanupReport(out io.Writer, r *service.CleanupReport) {
	dryRunBanner(out, r.DryRun)

	verb := "Cleaned"
	if r.DryRun {
		verb = "Would clean"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Target\t%s\n", r.Target)
	fmt.Fprintf(w, "Cutoff\t%s\n", r.Cutoff.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Location history\t%d\n", r.Locations)
	fmt.Fprintf(w, "Violations\t%d\n", r.Violations)
	fmt.Fprintf(w, "GPS logs\t%d\n", r.Logs)
	fmt.Fprintf(w, "Orphaned zones\t%d\n", r.OrphanedZones)
	fmt.Fprintf(w, "Orphaned zone references\t%d\n", r.OrphanedRefs)
	w.Flush()

	fmt.Fprintf(out, "%s %d record(s)\n", okColor.Sprint(verb), r.Total)
}

func printBacklog(out io.Writer, stats repository.BacklogStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Offline entries\t%d\n", stats.TotalOffline)
	fmt.Fprintf(w, "Pending sync\t%d\n", stats.PendingSync)
	fmt.Fprintf(w, "Synced with violations\t%d\n", stats.WithViolations)
	w.Flush()
}

func printZones(out io.Writer, zones []model.GeofenceZone) {
	if len(zones) == 0 {
		fmt.Fprintln(out, "No geofence zones.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSHAPE\tACTIVE\tPROJECT")
	for _, z := range zones {
		active := okColor.Sprint("yes")
		if !z.IsActive {
			active = dimColor.Sprint("no")
		}
		project := "-"
		if z.ProjectID != nil {
			project = z.ProjectID.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", z.ID, z.Name, z.ZoneType, z.Shape, active, project)
	}
	w.Flush()
}
