package cmd

import (
	"encoding/json"
	"fmt"

	"dispenser-sync/feature/devices"
	"dispenser-sync/feature/diagnose"

	"github.com/spf13/cobra"
)

var (
	diagnoseCaregiver string
	diagnoseDevice    string
	diagnoseFixture   string
	diagnoseJSON      bool
)

// diagnoseCmd prints a read-only audit of a caregiver's devices.
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Audit a caregiver's devices without repairing anything",
	Long: `Diagnose reports, for every (device, patient) pair tied to a caregiver,
whether medications, recent medication events, device config and device state
exist, together with the drift a reconciliation pass would repair.

Examples:
  diagnose --caregiver care1
  diagnose --caregiver care1 --device deviceA --json`,
	RunE: runDiagnose,
}

func init() {
	diagnoseCmd.Flags().StringVar(&diagnoseCaregiver, "caregiver", "", "Caregiver user id")
	diagnoseCmd.Flags().StringVar(&diagnoseDevice, "device", "", "Device id (discovered from the caregiver when empty)")
	diagnoseCmd.Flags().StringVar(&diagnoseFixture, "fixture", "", "Run against in-memory stores loaded from a YAML fixture")
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false, "Print the findings as JSON")
	_ = diagnoseCmd.MarkFlagRequired("caregiver")

	RootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, l, err := bootstrap()
	if err != nil {
		return err
	}
	defer l.Sync()

	docs, rt, err := openStores(cfg, diagnoseFixture, l)
	if err != nil {
		return err
	}

	svc := diagnose.NewService(docs, devices.NewService(docs, rt, l, cfg.Reconcile), l, cfg.Reconcile)
	findings, err := svc.Diagnose(cmd.Context(), diagnoseCaregiver, diagnoseDevice)
	if err != nil {
		return err
	}

	if diagnoseJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(findings); err != nil {
			return fmt.Errorf("failed to encode findings: %w", err)
		}
		return nil
	}
	return diagnose.Render(cmd.OutOrStdout(), findings)
}
