package reconcile

import (
	"context"
	"time"
)

// ActionType identifies the mutation an Action performs.
type ActionType string

// Status is the outcome of one planned or applied action.
type Status string

const (
	// StatusPlanned marks an action that was detected but not applied (dry-run).
	StatusPlanned Status = "planned"
	// StatusCreated marks an entity created by the pass.
	StatusCreated Status = "created"
	// StatusUpdated marks an existing entity patched by the pass.
	StatusUpdated Status = "updated"
	// StatusSkipped marks an entity found already consistent.
	StatusSkipped Status = "skipped"
	// StatusUnresolvable marks drift the engine has no authority to repair.
	StatusUnresolvable Status = "unresolvable"
	// StatusFailed marks an action whose write failed or could not be attempted.
	StatusFailed Status = "failed"
)

// Action is one planned, independently idempotent mutation.
type Action struct {
	// Type specifies the mutation to perform.
	Type ActionType `json:"type"`

	// Category groups actions for reporting (e.g. "missing_link").
	Category string `json:"category"`

	// Key is the id of the entity the action writes.
	Key string `json:"key"`

	// Wave orders application; lower waves complete first.
	Wave int `json:"wave"`

	// DependsOn lists keys of earlier-wave actions that must not have failed.
	DependsOn []string `json:"depends_on,omitempty"`

	// Reason explains why this action is needed.
	Reason string `json:"reason"`

	// Payload carries the fields computed by the detector.
	Payload any `json:"payload,omitempty"`
}

// Outcome is the per-entity result recorded in a Report.
type Outcome struct {
	Category string     `json:"category"`
	Action   ActionType `json:"action,omitempty"`
	Key      string     `json:"key"`
	Status   Status     `json:"status"`
	Reason   string     `json:"reason,omitempty"`
}

// Mutator applies a single action. Implementations must re-check the current
// state before writing and return StatusSkipped when nothing needs to change.
// The returned string is an optional human-readable reason.
type Mutator interface {
	Apply(ctx context.Context, action Action) (Status, string, error)
}

// MutatorFunc adapts a function to the Mutator interface.
type MutatorFunc func(ctx context.Context, action Action) (Status, string, error)

// Apply calls f.
func (f MutatorFunc) Apply(ctx context.Context, action Action) (Status, string, error) {
	return f(ctx, action)
}

// Options controls how a plan is applied.
type Options struct {
	// DryRun records every action as planned without calling the mutator.
	DryRun bool

	// Workers bounds concurrent mutator calls within a wave.
	Workers int

	// CallTimeout bounds each mutator call. Zero disables the timeout.
	CallTimeout time.Duration
}

// Config is the reconcile section of the application configuration.
type Config struct {
	// Workers bounds concurrent store operations.
	Workers int `mapstructure:"workers" default:"8"`
	// CallTimeoutSeconds bounds every individual store call.
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds" default:"10"`
	// MetricsFile, when set, receives a prometheus textfile after every CLI pass.
	MetricsFile string `mapstructure:"metrics_file" default:""`
	// RecentEventsHours is the diagnosis window for medication events.
	RecentEventsHours int `mapstructure:"recent_events_hours" default:"168"`
}

// Options converts the configuration into apply options.
func (c Config) Options(dryRun bool) Options {
	workers := c.Workers
	if workers <= 0 {
		workers = 8
	}
	return Options{
		DryRun:      dryRun,
		Workers:     workers,
		CallTimeout: time.Duration(c.CallTimeoutSeconds) * time.Second,
	}
}
