package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProber reports a settable state and counts its calls.
type fakeProber struct {
	mu    sync.Mutex
	state State
	calls int
}

func (p *fakeProber) Probe(context.Context) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.state
}

func (p *fakeProber) set(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// fakeController records applied transitions and returns a canned error.
type fakeController struct {
	mu  sync.Mutex
	ops []Transition
	err error
}

func (c *fakeController) Apply(_ context.Context, op Transition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
	return c.err
}

func (c *fakeController) applied() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transition(nil), c.ops...)
}

func testTiming() Timing {
	return Timing{
		Interval:       20 * time.Millisecond,
		ProbeTimeout:   20 * time.Millisecond,
		ControlTimeout: time.Second,
		ConfirmDelay:   5 * time.Millisecond,
	}
}

func startReconciler(t *testing.T, prober Prober, ctrl Controller) (*Reconciler, <-chan Change, <-chan ControlResult) {
	t.Helper()

	r := NewReconciler(prober, ctrl, testTiming(), zap.NewNop())
	changes := r.SubscribeChanges("test-changes")
	results := r.SubscribeResults("test-results")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return r, changes, results
}

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a state change")
		return Change{}
	}
}

func waitResult(t *testing.T, ch <-chan ControlResult) ControlResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a control result")
		return ControlResult{}
	}
}

func requireNoChange(t *testing.T, ch <-chan Change, wait time.Duration) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected state change %s -> %s", c.Old, c.New)
	case <-time.After(wait):
	}
}

func TestReconcilerFirstTick(t *testing.T) {
	// Scenario: the service is already up when the reconciler starts.
	prober := &fakeProber{state: StateRunning}
	r, changes, _ := startReconciler(t, prober, &fakeController{})

	c := waitChange(t, changes)
	require.Equal(t, StateUnknown, c.Old)
	require.Equal(t, StateRunning, c.New)
	require.Equal(t, StateRunning, r.State())
}

func TestReconcilerIdempotentObservation(t *testing.T) {
	prober := &fakeProber{state: StateStopped}
	_, changes, _ := startReconciler(t, prober, &fakeController{})

	c := waitChange(t, changes)
	require.Equal(t, StateStopped, c.New)

	// Several more ticks with the same underlying state emit nothing.
	requireNoChange(t, changes, 100*time.Millisecond)
}

func TestReconcilerOrdering(t *testing.T) {
	prober := &fakeProber{state: StateStopped}
	_, changes, _ := startReconciler(t, prober, &fakeController{})

	c := waitChange(t, changes)
	require.Equal(t, StateStopped, c.New)

	prober.set(StateRunning)
	c = waitChange(t, changes)
	require.Equal(t, StateStopped, c.Old)
	require.Equal(t, StateRunning, c.New)

	prober.set(StateStopped)
	c = waitChange(t, changes)
	require.Equal(t, StateRunning, c.Old)
	require.Equal(t, StateStopped, c.New)
}

func TestReconcilerProbeFailureBecomesUnknown(t *testing.T) {
	// Scenario: a probe that times out degrades to Unknown, not to the
	// previously seen state.
	prober := &fakeProber{state: StateRunning}
	_, changes, _ := startReconciler(t, prober, &fakeController{})

	c := waitChange(t, changes)
	require.Equal(t, StateRunning, c.New)

	prober.set(StateUnknown)
	c = waitChange(t, changes)
	require.Equal(t, StateRunning, c.Old)
	require.Equal(t, StateUnknown, c.New)
}

func TestReconcilerToggleNoOptimisticFlip(t *testing.T) {
	// Scenario: toggle from Running. The controller acknowledges but the
	// state only moves once a probe actually sees the service down.
	prober := &fakeProber{state: StateRunning}
	ctrl := &fakeController{}
	r, changes, results := startReconciler(t, prober, ctrl)

	c := waitChange(t, changes)
	require.Equal(t, StateRunning, c.New)

	r.RequestToggle()

	res := waitResult(t, results)
	require.Nil(t, res.Err)
	require.Equal(t, TransitionStop, res.Op)
	require.Equal(t, []Transition{TransitionStop}, ctrl.applied())

	// Still Running: the acknowledgement alone moved nothing.
	require.Equal(t, StateRunning, r.State())

	// The service actually lands; the confirmation probe reports it.
	prober.set(StateStopped)
	c = waitChange(t, changes)
	require.Equal(t, StateRunning, c.Old)
	require.Equal(t, StateStopped, c.New)
}

func TestReconcilerToggleResolution(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected Transition
	}{
		{name: "running toggles to stop", state: StateRunning, expected: TransitionStop},
		{name: "stopped toggles to start", state: StateStopped, expected: TransitionStart},
		{name: "unknown toggles to start", state: StateUnknown, expected: TransitionStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{state: tt.state}
			ctrl := &fakeController{}
			r, changes, results := startReconciler(t, prober, ctrl)

			if tt.state != StateUnknown {
				waitChange(t, changes)
			}

			r.RequestToggle()
			res := waitResult(t, results)
			require.Equal(t, tt.expected, res.Op)
		})
	}
}

func TestReconcilerControlErrorLeavesState(t *testing.T) {
	// Scenario: the user dismisses the authentication dialog.
	prober := &fakeProber{state: StateRunning}
	ctrl := &fakeController{err: &ControlError{Op: TransitionStop, Reason: ReasonCancelled, ExitCode: 126}}
	r, changes, results := startReconciler(t, prober, ctrl)

	c := waitChange(t, changes)
	require.Equal(t, StateRunning, c.New)

	r.RequestToggle()

	res := waitResult(t, results)
	require.NotNil(t, res.Err)
	require.Equal(t, ReasonCancelled, res.Err.Reason)
	require.Equal(t, StateRunning, r.State())
	requireNoChange(t, changes, 100*time.Millisecond)
}

func TestReconcilerRestartRequest(t *testing.T) {
	prober := &fakeProber{state: StateRunning}
	ctrl := &fakeController{}
	r, changes, results := startReconciler(t, prober, ctrl)

	waitChange(t, changes)
	r.RequestRestart()

	res := waitResult(t, results)
	require.Nil(t, res.Err)
	require.Equal(t, TransitionRestart, res.Op)
}

func TestReconcilerRequestProbe(t *testing.T) {
	prober := &fakeProber{state: StateStopped}
	r, changes, _ := startReconciler(t, prober, &fakeController{})

	waitChange(t, changes)

	prober.set(StateRunning)
	r.RequestProbe()
	c := waitChange(t, changes)
	require.Equal(t, StateRunning, c.New)
}

func TestReconcilerNoConcurrentCommands(t *testing.T) {
	// Both fakes bump one shared gauge; the loop must never let it pass 1.
	var inFlight, maxSeen atomic.Int32
	enter := func() {
		n := inFlight.Add(1)
		for {
			max := maxSeen.Load()
			if n <= max || maxSeen.CompareAndSwap(max, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
	}

	prober := proberFunc(func(context.Context) State {
		enter()
		return StateStopped
	})
	ctrl := controllerFunc(func(context.Context, Transition) error {
		enter()
		return nil
	})

	r, _, _ := startReconciler(t, prober, ctrl)

	for i := 0; i < 20; i++ {
		r.RequestToggle()
		r.RequestProbe()
		time.Sleep(5 * time.Millisecond)
	}

	require.Equal(t, int32(1), maxSeen.Load())
}

type proberFunc func(ctx context.Context) State

func (f proberFunc) Probe(ctx context.Context) State { return f(ctx) }

type controllerFunc func(ctx context.Context, op Transition) error

func (f controllerFunc) Apply(ctx context.Context, op Transition) error { return f(ctx, op) }

func TestReconcilerPendingRequestsCoalesce(t *testing.T) {
	r := NewReconciler(&fakeProber{}, &fakeController{}, testTiming(), zap.NewNop())

	// Without a running loop, the buffer holds one request; further
	// clicks are dropped instead of queueing a burst of dialogs.
	r.RequestToggle()
	r.RequestToggle()
	r.RequestToggle()
	require.Len(t, r.requests, 1)
}

func TestReconcilerSetTimingNeverBlocks(t *testing.T) {
	r := NewReconciler(&fakeProber{}, &fakeController{}, testTiming(), zap.NewNop())

	r.SetTiming(Timing{Interval: time.Second})
	r.SetTiming(Timing{Interval: 2 * time.Second})
	require.Len(t, r.timingCh, 1)
	require.Equal(t, 2*time.Second, (<-r.timingCh).Interval)
}

func TestReconcilerUnsubscribe(t *testing.T) {
	r := NewReconciler(&fakeProber{}, &fakeController{}, testTiming(), zap.NewNop())

	ch := r.SubscribeChanges("gone")
	r.UnsubscribeChanges("gone")
	_, open := <-ch
	require.False(t, open)

	// Broadcasting after the unsubscribe must not panic or block.
	r.observe(StateRunning)
}

func TestTimingNormalized(t *testing.T) {
	t.Run("zero values get defaults", func(t *testing.T) {
		n := Timing{}.normalized()
		require.Equal(t, 5*time.Second, n.Interval)
		require.Equal(t, 5*time.Second, n.ProbeTimeout)
		require.Equal(t, 2*time.Minute, n.ControlTimeout)
		require.Equal(t, time.Second, n.ConfirmDelay)
	})

	t.Run("probe timeout clamped to interval", func(t *testing.T) {
		n := Timing{Interval: time.Second, ProbeTimeout: time.Minute}.normalized()
		require.Equal(t, time.Second, n.ProbeTimeout)
	})
}
