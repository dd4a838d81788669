package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Execute applies actions wave by wave and records every outcome in report.
// It returns once all started actions have completed. After ctx is cancelled
// no further action is started; actions already running finish.
func Execute(ctx context.Context, actions []Action, m Mutator, opts Options, report *Report) {
	if opts.DryRun {
		for _, a := range actions {
			report.Record(Outcome{Category: a.Category, Action: a.Type, Key: a.Key, Status: StatusPlanned, Reason: a.Reason})
		}
		return
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	failed := &failedSet{keys: make(map[string]string)}

	for _, wave := range groupWaves(actions) {
		if ctx.Err() != nil {
			report.SetCancelled()
			return
		}

		var g errgroup.Group
		g.SetLimit(workers)

		for _, a := range wave {
			if ctx.Err() != nil {
				report.SetCancelled()
				break
			}

			if dep, reason, blocked := failed.blocking(a.DependsOn); blocked {
				failed.add(a.Key, "dependency "+dep+" failed")
				report.Record(Outcome{
					Category: a.Category,
					Action:   a.Type,
					Key:      a.Key,
					Status:   StatusFailed,
					Reason:   fmt.Sprintf("dependency %s failed: %s", dep, reason),
				})
				continue
			}

			a := a
			g.Go(func() error {
				// Go may have waited for a free slot; cancellation during
				// that wait means this action never starts.
				if ctx.Err() != nil {
					report.SetCancelled()
					return nil
				}
				o := apply(ctx, m, a, opts)
				if o.Status == StatusFailed {
					failed.add(a.Key, o.Reason)
				}
				report.Record(o)
				return nil
			})
		}

		_ = g.Wait()
	}

	if ctx.Err() != nil {
		report.SetCancelled()
	}
}

// apply runs one mutator call under its own timeout. The call context is
// detached from ctx so in-flight writes survive cancellation.
func apply(ctx context.Context, m Mutator, a Action, opts Options) Outcome {
	callCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if opts.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(callCtx, opts.CallTimeout)
	}
	defer cancel()

	o := Outcome{Category: a.Category, Action: a.Type, Key: a.Key}

	status, reason, err := m.Apply(callCtx, a)
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)):
		o.Status = StatusFailed
		o.Reason = "timeout"
	case err != nil:
		o.Status = StatusFailed
		o.Reason = err.Error()
	default:
		o.Status = status
		o.Reason = reason
	}
	return o
}

func groupWaves(actions []Action) [][]Action {
	byWave := make(map[int][]Action)
	for _, a := range actions {
		byWave[a.Wave] = append(byWave[a.Wave], a)
	}
	waves := make([]int, 0, len(byWave))
	for w := range byWave {
		waves = append(waves, w)
	}
	sort.Ints(waves)

	out := make([][]Action, 0, len(waves))
	for _, w := range waves {
		out = append(out, byWave[w])
	}
	return out
}

type failedSet struct {
	mu   sync.Mutex
	keys map[string]string
}

func (f *failedSet) add(key, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = reason
}

func (f *failedSet) blocking(deps []string) (string, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range deps {
		if reason, ok := f.keys[d]; ok {
			return d, reason, true
		}
	}
	return "", "", false
}
