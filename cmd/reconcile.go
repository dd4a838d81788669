package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"dispenser-sync/core/metrics"
	"dispenser-sync/core/reconcile"
	"dispenser-sync/feature/devices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reconcileDryRun  bool
	reconcileFixture string
	reconcileJSON    bool
)

// reconcileCmd runs one reconciliation pass.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Detect and repair drift between the document and realtime stores",
	Long: `Reconcile loads users, devices, device links and the realtime device index,
computes the repairs needed and applies them.

Repairs are additive: missing devices and links are created and legacy
devices get a primary patient. Nothing is ever deleted or revoked.

Exit status is 1 when any repair failed outside of a dry-run.

Examples:
  # Report what would change
  reconcile --dry-run

  # Rehearse against an exported snapshot
  reconcile --fixture snapshot.yaml

  # Apply and print the report as JSON
  reconcile --json`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "Report planned repairs without writing")
	reconcileCmd.Flags().StringVar(&reconcileFixture, "fixture", "", "Run against in-memory stores loaded from a YAML fixture")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "Print the report as JSON")

	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, l, err := bootstrap()
	if err != nil {
		return err
	}
	defer l.Sync()

	docs, rt, err := openStores(cfg, reconcileFixture, l)
	if err != nil {
		return err
	}

	rec := metrics.New()
	svc := devices.NewService(docs, rt, l, cfg.Reconcile).WithRecorder(rec)
	report := svc.Reconcile(ctx, reconcileDryRun)

	if path := cfg.Reconcile.MetricsFile; path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			l.Warn("Failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}

	out := cmd.OutOrStdout()
	if reconcileJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	} else if err := printReport(out, report); err != nil {
		return err
	}

	if !report.DryRun && report.HasFailures() {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d repair operations failed", len(report.Failures()))}
	}
	return nil
}

// printReport writes per-category counts followed by every per-entity outcome.
func printReport(w io.Writer, r *reconcile.Report) error {
	mode := "apply"
	if r.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(w, "Reconciliation %s (%s)\n\n", r.RunID, mode)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPLANNED\tCREATED\tUPDATED\tSKIPPED\tUNRESOLVABLE\tFAILED")
	for _, name := range r.CategoryNames() {
		c := r.Categories[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", name, c.Planned, c.Created, c.Updated, c.Skipped, c.Unresolvable, c.Failed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Outcomes) > 0 {
		fmt.Fprintln(w, "\nOutcomes")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, o := range r.Outcomes {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", o.Category, o.Key, o.Status, o.Reason)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, e := range r.Incomplete {
		fmt.Fprintf(w, "\nIncomplete: %s", e)
	}
	if len(r.Incomplete) > 0 {
		fmt.Fprintln(w)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", warn)
		}
	}
	if r.Cancelled {
		fmt.Fprintln(w, "\nPass cancelled before completion.")
	}
	return nil
}
