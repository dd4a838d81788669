package reconcile

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Counts aggregates outcomes for one category.
type Counts struct {
	Planned      int `json:"planned"`
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"`
	Unresolvable int `json:"unresolvable"`
	Failed       int `json:"failed"`
}

func (c *Counts) add(s Status) {
	switch s {
	case StatusPlanned:
		c.Planned++
	case StatusCreated:
		c.Created++
	case StatusUpdated:
		c.Updated++
	case StatusSkipped:
		c.Skipped++
	case StatusUnresolvable:
		c.Unresolvable++
	case StatusFailed:
		c.Failed++
	}
}

// Report accumulates the outcomes of one pass. It is safe for concurrent use
// while a pass is running; read it only after Finish.
type Report struct {
	RunID      string             `json:"run_id"`
	DryRun     bool               `json:"dry_run"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Cancelled  bool               `json:"cancelled"`
	Incomplete []string           `json:"incomplete,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	Categories map[string]*Counts `json:"categories"`
	Outcomes   []Outcome          `json:"outcomes"`

	mu    sync.Mutex
	order map[string]int
}

// NewReport creates a report. Categories are listed in the order outcomes
// should be rendered.
func NewReport(runID string, dryRun bool, categories ...string) *Report {
	r := &Report{
		RunID:      runID,
		DryRun:     dryRun,
		StartedAt:  time.Now().UTC(),
		Categories: make(map[string]*Counts, len(categories)),
		Outcomes:   make([]Outcome, 0),
		order:      make(map[string]int, len(categories)),
	}
	for i, c := range categories {
		r.Categories[c] = &Counts{}
		r.order[c] = i
	}
	return r
}

// Record appends one outcome.
func (r *Report) Record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts, ok := r.Categories[o.Category]
	if !ok {
		counts = &Counts{}
		r.Categories[o.Category] = counts
		r.order[o.Category] = len(r.order)
	}
	counts.add(o.Status)
	r.Outcomes = append(r.Outcomes, o)
}

// MarkIncomplete records that an entity type could not be fully loaded.
func (r *Report) MarkIncomplete(entity string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.Incomplete {
		if e == entity {
			return
		}
	}
	r.Incomplete = append(r.Incomplete, entity)
	if err != nil {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%s incomplete: %v", entity, err))
	}
}

// Warn records a non-fatal anomaly.
func (r *Report) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// SetCancelled flags the pass as cut short by cancellation.
func (r *Report) SetCancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cancelled = true
}

// Finish stamps the end time and sorts outcomes deterministically.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
	sort.Strings(r.Incomplete)
	sort.SliceStable(r.Outcomes, func(i, j int) bool {
		a, b := r.Outcomes[i], r.Outcomes[j]
		if r.order[a.Category] != r.order[b.Category] {
			return r.order[a.Category] < r.order[b.Category]
		}
		return a.Key < b.Key
	})
}

// Totals sums the counts of every category.
func (r *Report) Totals() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	var t Counts
	for _, c := range r.Categories {
		t.Planned += c.Planned
		t.Created += c.Created
		t.Updated += c.Updated
		t.Skipped += c.Skipped
		t.Unresolvable += c.Unresolvable
		t.Failed += c.Failed
	}
	return t
}

// Failures returns the failed outcomes.
func (r *Report) Failures() []Outcome {
	return r.withStatus(StatusFailed)
}

// Unresolvable returns the outcomes the engine refused to repair.
func (r *Report) Unresolvable() []Outcome {
	return r.withStatus(StatusUnresolvable)
}

// HasFailures reports whether any outcome failed.
func (r *Report) HasFailures() bool {
	return len(r.Failures()) > 0
}

// CategoryNames returns the categories in render order.
func (r *Report) CategoryNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.Categories))
	for name := range r.Categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return r.order[names[i]] < r.order[names[j]] })
	return names
}

func (r *Report) withStatus(s Status) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}
