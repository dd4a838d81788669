package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMutator records applied keys and fails the configured ones.
type recordingMutator struct {
	mu      sync.Mutex
	applied []string
	fail    map[string]error
	delay   time.Duration
	status  Status
}

func (m *recordingMutator) Apply(ctx context.Context, a Action) (Status, string, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
	if err := m.fail[a.Key]; err != nil {
		return "", "", err
	}
	m.mu.Lock()
	m.applied = append(m.applied, a.Key)
	m.mu.Unlock()
	if m.status != "" {
		return m.status, "", nil
	}
	return StatusCreated, "", nil
}

func outcomesByKey(r *Report) map[string]Outcome {
	out := make(map[string]Outcome)
	for _, o := range r.Outcomes {
		out[o.Key] = o
	}
	return out
}

func TestExecute_DryRunRecordsPlanned(t *testing.T) {
	m := &recordingMutator{}
	report := NewReport("run", true, "devices", "links")

	Execute(context.Background(), []Action{
		{Type: "create", Category: "devices", Key: "d1"},
		{Type: "link", Category: "links", Key: "d1_u1", Wave: 1},
	}, m, Options{DryRun: true, Workers: 2}, report)
	report.Finish()

	assert.Empty(t, m.applied)
	assert.Equal(t, 1, report.Categories["devices"].Planned)
	assert.Equal(t, 1, report.Categories["links"].Planned)
	assert.False(t, report.HasFailures())
}

func TestExecute_WavesRunInOrder(t *testing.T) {
	var firstWaveDone atomic.Int32
	var violations atomic.Int32

	m := MutatorFunc(func(ctx context.Context, a Action) (Status, string, error) {
		if a.Wave == 0 {
			time.Sleep(5 * time.Millisecond)
			firstWaveDone.Add(1)
			return StatusCreated, "", nil
		}
		if firstWaveDone.Load() != 3 {
			violations.Add(1)
		}
		return StatusCreated, "", nil
	})

	actions := []Action{
		{Category: "links", Key: "a_u", Wave: 1},
		{Category: "devices", Key: "a", Wave: 0},
		{Category: "devices", Key: "b", Wave: 0},
		{Category: "links", Key: "b_u", Wave: 1},
		{Category: "devices", Key: "c", Wave: 0},
	}

	report := NewReport("run", false, "devices", "links")
	Execute(context.Background(), actions, m, Options{Workers: 4}, report)
	report.Finish()

	assert.Equal(t, int32(0), violations.Load())
	assert.Equal(t, 3, report.Categories["devices"].Created)
	assert.Equal(t, 2, report.Categories["links"].Created)
	require.Len(t, report.Outcomes, 5)
	assert.Equal(t, "a", report.Outcomes[0].Key)
	assert.Equal(t, "a_u", report.Outcomes[3].Key)
}

func TestExecute_PartialFailureIsolation(t *testing.T) {
	m := &recordingMutator{fail: map[string]error{"d2_u1": errors.New("permission denied")}}

	actions := []Action{
		{Category: "links", Key: "d1_u1", Wave: 1},
		{Category: "links", Key: "d2_u1", Wave: 1},
		{Category: "links", Key: "d3_u1", Wave: 1},
	}
	report := NewReport("run", false, "links")
	Execute(context.Background(), actions, m, Options{Workers: 2}, report)
	report.Finish()

	assert.ElementsMatch(t, []string{"d1_u1", "d3_u1"}, m.applied)
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "d2_u1", report.Failures()[0].Key)
	assert.Equal(t, "permission denied", report.Failures()[0].Reason)
	assert.Equal(t, 2, report.Categories["links"].Created)
}

func TestExecute_DependencyFailureBlocksLink(t *testing.T) {
	m := &recordingMutator{fail: map[string]error{"d1": errors.New("unavailable")}}

	actions := []Action{
		{Category: "devices", Key: "d1", Wave: 0},
		{Category: "links", Key: "d1_u1", Wave: 1, DependsOn: []string{"d1"}},
		{Category: "links", Key: "d2_u1", Wave: 1, DependsOn: []string{"d2"}},
	}
	report := NewReport("run", false, "devices", "links")
	Execute(context.Background(), actions, m, Options{Workers: 1}, report)
	report.Finish()

	byKey := outcomesByKey(report)
	assert.Equal(t, StatusFailed, byKey["d1"].Status)
	assert.Equal(t, StatusFailed, byKey["d1_u1"].Status)
	assert.Contains(t, byKey["d1_u1"].Reason, "dependency d1 failed")
	assert.Equal(t, StatusCreated, byKey["d2_u1"].Status)
	assert.Equal(t, []string{"d2_u1"}, m.applied)
}

func TestExecute_CallTimeout(t *testing.T) {
	m := &recordingMutator{delay: 200 * time.Millisecond}

	report := NewReport("run", false, "devices")
	Execute(context.Background(), []Action{{Category: "devices", Key: "slow"}}, m, Options{
		Workers:     1,
		CallTimeout: 10 * time.Millisecond,
	}, report)
	report.Finish()

	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "timeout", report.Failures()[0].Reason)
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	m := &recordingMutator{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewReport("run", false, "devices")
	Execute(ctx, []Action{{Category: "devices", Key: "d1"}}, m, Options{Workers: 1}, report)
	report.Finish()

	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Outcomes)
	assert.Empty(t, m.applied)
}

func TestExecute_InFlightSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	m := MutatorFunc(func(callCtx context.Context, a Action) (Status, string, error) {
		if a.Key == "first" {
			close(started)
			time.Sleep(20 * time.Millisecond)
			if err := callCtx.Err(); err != nil {
				return "", "", err
			}
			return StatusCreated, "", nil
		}
		return StatusCreated, "", nil
	})

	go func() {
		<-started
		cancel()
	}()

	report := NewReport("run", false, "devices")
	Execute(ctx, []Action{
		{Category: "devices", Key: "first"},
		{Category: "devices", Key: "second"},
	}, m, Options{Workers: 1}, report)
	report.Finish()

	assert.True(t, report.Cancelled)
	byKey := outcomesByKey(report)
	assert.Equal(t, StatusCreated, byKey["first"].Status)
	_, ran := byKey["second"]
	assert.False(t, ran)
}

func TestCoalescer_SharesInFlightPass(t *testing.T) {
	var c Coalescer
	var runs atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*Report, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := c.Do("pass", func() (*Report, error) {
				runs.Add(1)
				<-release
				return NewReport("shared", false), nil
			})
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.Same(t, results[0], results[1])
}

func TestExecute_NoNewWorkAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	m := MutatorFunc(func(_ context.Context, a Action) (Status, string, error) {
		calls.Add(1)
		if a.Key == "a1" {
			cancel()
		}
		return StatusCreated, "", nil
	})

	actions := make([]Action, 0, 5)
	for i := 1; i <= 5; i++ {
		actions = append(actions, Action{Category: "devices", Key: fmt.Sprintf("a%d", i)})
	}
	actions = append(actions, Action{Category: "links", Key: "l1", Wave: 1})

	report := NewReport("run", false, "devices", "links")
	Execute(ctx, actions, m, Options{Workers: 1}, report)
	report.Finish()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, report.Cancelled)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "a1", report.Outcomes[0].Key)
}
