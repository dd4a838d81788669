// Package reconcile provides a generic plan/apply engine for repairing drift
// between independently-consistent stores.
//
// A pass is split in two halves:
//
// 1. Plan: a domain-specific detector turns a snapshot into an ordered list of
//    Actions. Planning never writes, so a dry-run is simply "plan and report".
//
// 2. Apply: Execute hands every Action to a Mutator. Actions are grouped into
//    waves; a wave only starts once every action of the previous wave has
//    either completed or been recorded as failed. Inside a wave, actions run on
//    a bounded worker pool because actions on distinct keys are independent.
//
// # Failure semantics
//
// Execute never aborts on a single failure. Each store call runs under its own
// timeout; a timeout or write error is recorded as a failed Outcome and the
// sweep continues. An action whose dependency failed earlier in the pass is
// recorded as failed without being attempted. Re-running the pass is the retry
// mechanism, which is sound because mutators are idempotent.
//
// # Cancellation
//
// When the context is cancelled no new action is started. Actions already in
// flight finish under a context detached from the cancellation, and the Report
// only contains outcomes that actually completed.
//
// # Usage Example
//
//	report := reconcile.NewReport(runID, false, "missing_device", "missing_link")
//	reconcile.Execute(ctx, plan.Actions, mutator, reconcile.Options{Workers: 8}, report)
//	report.Finish()
package reconcile
