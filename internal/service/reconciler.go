package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// requestKind is a queued manual request.
type requestKind int

const (
	requestToggle requestKind = iota
	requestStop
	requestRestart
)

// ControlResult reports the outcome of one manual control request.
// Err is nil when the request was acknowledged.
type ControlResult struct {
	Op  Transition
	Err *ControlError
	At  time.Time
}

// Timing bundles the loop's adjustable durations.
type Timing struct {
	Interval       time.Duration // probe cadence
	ProbeTimeout   time.Duration // per-probe deadline
	ControlTimeout time.Duration // per-control deadline, long enough to type a password
	ConfirmDelay   time.Duration // acknowledged control to confirmation probe
}

// normalized fills zero values and clamps the probe timeout to the tick
// interval, so a hung status query resolves to Unknown before the next
// tick instead of stacking up.
func (t Timing) normalized() Timing {
	if t.Interval <= 0 {
		t.Interval = 5 * time.Second
	}
	if t.ProbeTimeout <= 0 || t.ProbeTimeout > t.Interval {
		t.ProbeTimeout = t.Interval
	}
	if t.ControlTimeout <= 0 {
		t.ControlTimeout = 2 * time.Minute
	}
	if t.ConfirmDelay <= 0 {
		t.ConfirmDelay = time.Second
	}
	return t
}

// Reconciler owns the canonical service state. One goroutine runs the
// loop; every probe and control command executes inline in it, so at most
// one external command is in flight at any time and subscribers observe
// changes in the order the loop computed them.
//
// The state starts Unknown and is only ever moved by probe results. An
// acknowledged control request does not flip it: the confirmation probe
// (and the regular cadence) report what actually happened.
type Reconciler struct {
	prober Prober
	ctrl   Controller
	log    *zap.Logger
	timing Timing

	mu    sync.RWMutex
	state State

	requests chan requestKind
	probeNow chan struct{}
	timingCh chan Timing

	subMu      sync.RWMutex
	changeSubs map[string]chan Change
	resultSubs map[string]chan ControlResult
}

// NewReconciler creates a reconciler. Run must be called for it to do
// anything.
func NewReconciler(prober Prober, ctrl Controller, timing Timing, log *zap.Logger) *Reconciler {
	return &Reconciler{
		prober:     prober,
		ctrl:       ctrl,
		log:        log,
		timing:     timing.normalized(),
		state:      StateUnknown,
		requests:   make(chan requestKind, 1),
		probeNow:   make(chan struct{}, 1),
		timingCh:   make(chan Timing, 1),
		changeSubs: make(map[string]chan Change),
		resultSubs: make(map[string]chan ControlResult),
	}
}

// State returns the current canonical state.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Run drives the loop until ctx is cancelled. It probes once immediately
// so the UI settles without waiting out the first interval.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.timing.Interval)
	defer ticker.Stop()

	// Fires once after an acknowledged control request; nil otherwise.
	var confirmCh <-chan time.Time

	r.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return

		case <-ticker.C:
			r.reconcile(ctx)

		case <-r.probeNow:
			r.reconcile(ctx)

		case <-confirmCh:
			confirmCh = nil
			r.reconcile(ctx)

		case kind := <-r.requests:
			if r.control(ctx, kind) {
				confirmCh = time.After(r.timing.ConfirmDelay)
			}

		case t := <-r.timingCh:
			t = t.normalized()
			if t.Interval != r.timing.Interval {
				ticker.Reset(t.Interval)
			}
			r.timing = t
			r.log.Info("reconciler timing updated",
				zap.Duration("interval", t.Interval),
				zap.Duration("probe_timeout", t.ProbeTimeout))
		}
	}
}

// RequestToggle asks the loop to start the service when it is stopped or
// unknown, and to stop it when it is running.
func (r *Reconciler) RequestToggle() { r.enqueue(requestToggle) }

// RequestStop asks the loop to stop the service.
func (r *Reconciler) RequestStop() { r.enqueue(requestStop) }

// RequestRestart asks the loop to restart the service.
func (r *Reconciler) RequestRestart() { r.enqueue(requestRestart) }

// enqueue posts a request without blocking. At most one request waits
// while another is in flight; further clicks are dropped rather than
// queued into a burst of elevation dialogs.
func (r *Reconciler) enqueue(kind requestKind) {
	select {
	case r.requests <- kind:
	default:
		r.log.Info("control request dropped, another is pending")
	}
}

// RequestProbe asks the loop for an immediate out-of-cadence probe.
func (r *Reconciler) RequestProbe() {
	select {
	case r.probeNow <- struct{}{}:
	default:
	}
}

// SetTiming applies new loop timing, typically after a settings reload.
// Expects a single caller; the latest value wins.
func (r *Reconciler) SetTiming(t Timing) {
	select {
	case <-r.timingCh:
	default:
	}
	r.timingCh <- t
}

// reconcile probes once and records the result.
func (r *Reconciler) reconcile(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, r.timing.ProbeTimeout)
	next := r.prober.Probe(pctx)
	cancel()
	r.observe(next)
}

// observe records a probe result and notifies subscribers when it moved
// the state. Re-observing the same state is silent.
func (r *Reconciler) observe(next State) {
	r.mu.Lock()
	old := r.state
	if old == next {
		r.mu.Unlock()
		return
	}
	r.state = next
	r.mu.Unlock()

	r.log.Info("service state changed",
		zap.String("old", string(old)),
		zap.String("new", string(next)))
	r.broadcastChange(Change{Old: old, New: next, At: time.Now()})
}

// control runs one manual request to completion. Returns true when the
// transition was acknowledged and a confirmation probe should follow.
func (r *Reconciler) control(ctx context.Context, kind requestKind) bool {
	op := r.resolve(kind)
	r.log.Info("applying control request", zap.String("op", string(op)))

	cctx, cancel := context.WithTimeout(ctx, r.timing.ControlTimeout)
	err := r.ctrl.Apply(cctx, op)
	cancel()

	if err != nil {
		var ctrlErr *ControlError
		if !errors.As(err, &ctrlErr) {
			ctrlErr = &ControlError{Op: op, Reason: ReasonExecution, ExitCode: -1, Err: err}
		}
		r.log.Warn("control request failed",
			zap.String("op", string(op)),
			zap.String("reason", string(ctrlErr.Reason)),
			zap.Error(ctrlErr))
		r.broadcastResult(ControlResult{Op: op, Err: ctrlErr, At: time.Now()})
		return false
	}

	r.broadcastResult(ControlResult{Op: op, At: time.Now()})
	return true
}

// resolve maps a queued request onto a concrete transition using the
// current state. A toggle from Unknown is a start attempt: the user asked
// for the service to be up, and starting an already-running unit is
// harmless.
func (r *Reconciler) resolve(kind requestKind) Transition {
	switch kind {
	case requestStop:
		return TransitionStop
	case requestRestart:
		return TransitionRestart
	}
	if r.State() == StateRunning {
		return TransitionStop
	}
	return TransitionStart
}

// SubscribeChanges registers a state change subscriber under the given id.
func (r *Reconciler) SubscribeChanges(id string) <-chan Change {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	ch := make(chan Change, 16)
	r.changeSubs[id] = ch
	return ch
}

// UnsubscribeChanges removes a state change subscriber.
func (r *Reconciler) UnsubscribeChanges(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if ch, ok := r.changeSubs[id]; ok {
		delete(r.changeSubs, id)
		close(ch)
	}
}

// SubscribeResults registers a control result subscriber under the given id.
func (r *Reconciler) SubscribeResults(id string) <-chan ControlResult {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	ch := make(chan ControlResult, 16)
	r.resultSubs[id] = ch
	return ch
}

// UnsubscribeResults removes a control result subscriber.
func (r *Reconciler) UnsubscribeResults(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if ch, ok := r.resultSubs[id]; ok {
		delete(r.resultSubs, id)
		close(ch)
	}
}

func (r *Reconciler) broadcastChange(change Change) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for id, ch := range r.changeSubs {
		select {
		case ch <- change:
		default:
			// Evict the oldest update so the latest state always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
			r.log.Debug("evicted stale update for slow subscriber", zap.String("subscriber", id))
		}
	}
}

func (r *Reconciler) broadcastResult(result ControlResult) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for id, ch := range r.resultSubs {
		select {
		case ch <- result:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- result:
			default:
			}
			r.log.Debug("evicted stale result for slow subscriber", zap.String("subscriber", id))
		}
	}
}
