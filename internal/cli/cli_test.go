package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"timesheet-service/internal/service"
)

func TestConfirmPrompt(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirmPrompt(strings.NewReader(tt.input), &out, "Proceed?"); got != tt.want {
			t.Errorf("confirmPrompt(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Proceed? [y/N]") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestReconcileOptions(t *testing.T) {
	defaults := service.ReconcileOptions{MaxAge: 24 * time.Hour, BatchSize: 100, OvertimeThreshold: 8}
	employee := uuid.New()

	opts, err := reconcileOptions(defaults, 0, 0, "", false)
	if err != nil {
		t.Fatalf("reconcileOptions() error = %v", err)
	}
	if opts.MaxAge != defaults.MaxAge || opts.BatchSize != 100 || opts.EmployeeID != nil || opts.DryRun {
		t.Errorf("defaults not kept: %+v", opts)
	}

	opts, err = reconcileOptions(defaults, 25, 72, " "+employee.String()+" ", true)
	if err != nil {
		t.Fatalf("reconcileOptions() error = %v", err)
	}
	if opts.BatchSize != 25 || opts.MaxAge != 72*time.Hour || !opts.DryRun || opts.OvertimeThreshold != 8 {
		t.Errorf("overrides not applied: %+v", opts)
	}
	if opts.EmployeeID == nil || *opts.EmployeeID != employee {
		t.Errorf("EmployeeID = %v, want %s", opts.EmployeeID, employee)
	}

	if _, err := reconcileOptions(defaults, -1, 0, "", false); err == nil {
		t.Error("negative batch size accepted")
	}
	if _, err := reconcileOptions(defaults, 0, 0, "bob", false); err == nil {
		t.Error("invalid employee id accepted")
	}
}

type fakeCleaner struct {
	total int64
	calls []service.CleanupOptions
}

func (f *fakeCleaner) Cleanup(_ context.Context, opts service.CleanupOptions) (*service.CleanupReport, error) {
	f.calls = append(f.calls, opts)
	if !opts.DryRun && !opts.Force {
		return nil, service.ErrConfirmationRequired
	}
	report := &service.CleanupReport{DryRun: opts.DryRun, Target: opts.Target, Locations: f.total, Total: f.total}
	if !opts.DryRun {
		report.PostCommit = []service.PostCommitHook{{Name: "timesheets", Run: func(context.Context) error { return nil }}}
	}
	return report, nil
}

func newTestCommand(input string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd, out
}

func TestRunCleanupConfirmed(t *testing.T) {
	svc := &fakeCleaner{total: 3}
	cmd, out := newTestCommand("y\n")
	var hooks int

	err := runCleanup(cmd, svc, service.CleanupOptions{RetentionDays: 90, Target: service.CleanupAll}, func(_ context.Context, h []service.PostCommitHook) {
		hooks += len(h)
	})
	if err != nil {
		t.Fatalf("runCleanup() error = %v", err)
	}
	if len(svc.calls) != 2 || !svc.calls[0].DryRun || svc.calls[1].DryRun || !svc.calls[1].Force {
		t.Errorf("calls = %+v, want preview then forced run", svc.calls)
	}
	if hooks != 1 {
		t.Errorf("post-commit hooks passed = %d, want 1", hooks)
	}
	if !strings.Contains(out.String(), "Would clean") || !strings.Contains(out.String(), "Cleaned") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunCleanupDeclined(t *testing.T) {
	svc := &fakeCleaner{total: 3}
	cmd, out := newTestCommand("n\n")

	err := runCleanup(cmd, svc, service.CleanupOptions{RetentionDays: 90}, func(context.Context, []service.PostCommitHook) {
		t.Error("post-commit ran after abort")
	})
	if err != nil {
		t.Fatalf("runCleanup() error = %v", err)
	}
	if len(svc.calls) != 1 {
		t.Errorf("calls = %d, want preview only", len(svc.calls))
	}
	if !strings.Contains(out.String(), "Aborted.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunCleanupNothingToDo(t *testing.T) {
	svc := &fakeCleaner{}
	cmd, out := newTestCommand("")

	if err := runCleanup(cmd, svc, service.CleanupOptions{RetentionDays: 90}, func(context.Context, []service.PostCommitHook) {}); err != nil {
		t.Fatalf("runCleanup() error = %v", err)
	}
	if len(svc.calls) != 1 || !strings.Contains(out.String(), "Nothing to clean.") {
		t.Errorf("calls = %d, output = %q", len(svc.calls), out.String())
	}
}

func TestRunCleanupForcedSkipsPrompt(t *testing.T) {
	svc := &fakeCleaner{total: 2}
	cmd, out := newTestCommand("")

	if err := runCleanup(cmd, svc, service.CleanupOptions{RetentionDays: 90, Force: true}, func(context.Context, []service.PostCommitHook) {}); err != nil {
		t.Fatalf("runCleanup() error = %v", err)
	}
	if len(svc.calls) != 1 || svc.calls[0].DryRun {
		t.Errorf("calls = %+v, want one forced run", svc.calls)
	}
	if strings.Contains(out.String(), "[y/N]") {
		t.Error("forced run prompted for confirmation")
	}
}

func TestPrintReconcileReport(t *testing.T) {
	var out bytes.Buffer
	printReconcileReport(&out, &service.ReconciliationReport{})
	if !strings.Contains(out.String(), "No offline timesheets found to process.") {
		t.Errorf("empty report output = %q", out.String())
	}

	out.Reset()
	id := uuid.New()
	printReconcileReport(&out, &service.ReconciliationReport{
		DryRun:             true,
		Found:              2,
		Processed:          1,
		BusinessRuleErrors: 1,
		SuccessRate:        50,
		EventsSuppressed:   1,
		Failures:           []service.RecordError{{TimesheetID: id, Stage: service.StageBusinessRule, Reason: "duplicate"}},
	})
	text := out.String()
	for _, want := range []string{"DRY RUN", "Events suppressed", "50.00%", id.String(), "duplicate"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}
