package operator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acqlab/instrumentd/pkg/gate"
	"github.com/acqlab/instrumentd/pkg/logging"
)

// State is the lifecycle state of the current activation cycle. The
// ready outcome is not a state of its own: observing the ready event
// moves a starting runtime straight to active.
type State string

const (
	StateCreated   State = "created"   // runtime exists, no worker yet
	StateStarting  State = "starting"  // worker spawned, prepare in flight
	StateActive    State = "active"    // prepare succeeded, device usable
	StateFailed    State = "failed"    // prepare faulted, device killed
	StateStopping  State = "stopping"  // finalize requested
	StateFinalized State = "finalized" // worker exited
)

// Recorder counts runtime events for the metrics surface
type Recorder interface {
	GateUnderflow(gate string)
}

// ErrorEvent carries a failure from the worker to the controller. It holds
// either a wrapped error value (Err != nil) or a structured message with
// optional detail. Immutable once constructed.
type ErrorEvent struct {
	Message string
	Detail  interface{}
	Err     error
}

// Wrapped reports whether the event carries an error value rather than a
// structured message
func (e ErrorEvent) Wrapped() bool {
	return e.Err != nil
}

// Runtime binds a device to one Operator instance and guarantees at most
// one live worker goroutine per device at a time. Activation acquires the
// run gate before the worker starts; the gate is released exactly once per
// cycle, either when the ready event is observed or when a fatal error
// arrives before readiness.
//
// All device callbacks are delivered through the dispatch loop, never from
// the worker goroutine directly.
type Runtime struct {
	dev     Device
	loop    *Loop
	runGate *gate.Gate
	log     *logging.Logger
	rec     Recorder

	mu                sync.Mutex
	op                Operator
	stop              chan struct{}
	done              chan struct{}
	state             State
	preparedCompleted bool
	gateHeld          bool
	killed            bool

	deactivateTimeout time.Duration
}

// NewRuntime creates a runtime for the given device. The dispatch loop and
// run gate are shared across the process and passed by reference.
func NewRuntime(dev Device, loop *Loop, runGate *gate.Gate, log *logging.Logger) *Runtime {
	return &Runtime{
		dev:     dev,
		loop:    loop,
		runGate: runGate,
		log:     log,
		state:   StateCreated,
	}
}

// SetRecorder installs the metrics recorder. Must be called before
// Activate; nil leaves events uncounted.
func (r *Runtime) SetRecorder(rec Recorder) {
	r.rec = rec
}

// SetDeactivateTimeout bounds the wait for worker exit during Deactivate.
// Zero, the default, waits forever: finalize must complete before the
// device can be considered gone.
func (r *Runtime) SetDeactivateTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deactivateTimeout = d
}

// State returns the current lifecycle state
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Prepared reports whether the ready event of the current cycle has been
// observed. Once true it never reverts within the same cycle.
func (r *Runtime) Prepared() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preparedCompleted
}

// Activate acquires the run gate, binds the operator to the error reporter
// and spawns the worker goroutine. It never blocks on the operator itself:
// readiness or failure arrives later through the dispatch loop.
func (r *Runtime) Activate(op Operator, args interface{}) error {
	r.mu.Lock()
	if r.stop != nil || r.done != nil {
		// Covers both a live worker and one still draining its finalize
		r.mu.Unlock()
		return ErrAlreadyActive
	}

	r.runGate.Acquire()
	r.gateHeld = true
	r.preparedCompleted = false
	r.killed = false
	r.op = op
	r.state = StateStarting
	stop := make(chan struct{})
	done := make(chan struct{})
	r.stop = stop
	r.done = done
	r.mu.Unlock()

	op.Bind(reporter{r})
	go r.work(op, args, stop, done)

	return nil
}

// Deactivate requests the worker to stop, which triggers Finalize, and
// waits for the worker goroutine to exit. Calling it again after the worker
// has been stopped is a no-op; the gate is never touched here.
func (r *Runtime) Deactivate() error {
	r.mu.Lock()
	stop := r.stop
	done := r.done
	timeout := r.deactivateTimeout
	if stop == nil {
		r.mu.Unlock()
		return nil
	}
	r.stop = nil
	r.state = StateStopping
	r.mu.Unlock()

	close(stop)

	if timeout > 0 {
		select {
		case <-done:
		case <-time.After(timeout):
			return &DeactivateTimeoutError{Timeout: timeout}
		}
	} else {
		<-done
	}

	r.mu.Lock()
	r.state = StateFinalized
	r.op = nil
	r.done = nil
	r.mu.Unlock()
	return nil
}

// work is the worker goroutine: run prepare, hand the outcome to the
// dispatch loop, wait for the stop request, run finalize.
func (r *Runtime) work(op Operator, args interface{}, stop, done chan struct{}) {
	defer close(done)

	res, err := runPrepare(op, args)
	if err != nil {
		r.postError(ErrorEvent{Err: err})
	} else {
		r.loop.Post(func() { r.onReady(res) })
	}

	<-stop

	if err := runFinalize(op); err != nil {
		r.postError(ErrorEvent{Err: err})
	}
}

// runPrepare executes Prepare with the worker-boundary fault barrier: both
// returned errors and panics become a PrepareFault.
func runPrepare(op Operator, args interface{}) (res interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = &PrepareFault{Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	res, perr := op.Prepare(args)
	if perr != nil {
		return nil, &PrepareFault{Err: perr}
	}
	return res, nil
}

// runFinalize executes Finalize with the same fault barrier as runPrepare
func runFinalize(op Operator) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &FinalizeFault{Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if ferr := op.Finalize(); ferr != nil {
		return &FinalizeFault{Err: ferr}
	}
	return nil
}

func (r *Runtime) postError(ev ErrorEvent) {
	r.loop.Post(func() { r.onError(ev) })
}

// onReady runs on the dispatch loop when prepare succeeded
func (r *Runtime) onReady(res interface{}) {
	r.mu.Lock()
	if r.preparedCompleted || r.killed {
		// Readiness fires at most once per cycle; a duplicate or a ready
		// arriving after a kill is dropped, releasing the gate if it is
		// somehow still held.
		release := r.gateHeld
		r.gateHeld = false
		r.mu.Unlock()
		if release {
			r.releaseGate()
		}
		return
	}
	r.preparedCompleted = true
	if r.state == StateStarting {
		r.state = StateActive
	}
	release := r.gateHeld
	r.gateHeld = false
	r.mu.Unlock()

	r.dev.OperatorReady(res)

	if release {
		r.releaseGate()
	}
}

// onError runs on the dispatch loop for every reported failure. Errors
// arriving before readiness are fatal, except finalize faults which only
// ever accompany teardown; errors after readiness are informational.
func (r *Runtime) onError(ev ErrorEvent) {
	var finalizeFault *FinalizeFault
	isFinalize := ev.Err != nil && errors.As(ev.Err, &finalizeFault)

	r.mu.Lock()
	fatal := !r.preparedCompleted && !isFinalize && !r.killed
	var release bool
	if fatal {
		r.state = StateFailed
		r.killed = true
		release = r.gateHeld
		r.gateHeld = false
	}
	r.mu.Unlock()

	if ev.Wrapped() {
		r.dev.ShowException(ev.Err)
	} else {
		r.dev.ShowError(ev.Message, ev.Detail)
	}

	if fatal {
		if release {
			r.releaseGate()
		}
		r.dev.Kill()
	}
}

func (r *Runtime) releaseGate() {
	if err := r.runGate.Release(); err != nil {
		// A release miscount is a logic defect, not a runtime condition
		// to recover from. Surface it loudly.
		r.log.Error("run gate underflow", logging.Fields{"error": err.Error()})
		if r.rec != nil {
			r.rec.GateUnderflow(r.runGate.Name())
		}
	}
}

// reporter adapts the runtime into the Reporter handed to operators
type reporter struct {
	r *Runtime
}

func (p reporter) ReportError(message string, detail interface{}) {
	p.r.postError(ErrorEvent{Message: message, Detail: detail})
}

func (p reporter) ReportFault(err error) {
	p.r.postError(ErrorEvent{Err: err})
}
