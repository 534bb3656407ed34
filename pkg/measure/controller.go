// Package measure implements the run/step engine. It owns the lifecycle of
// a measurement run, publishes prepared/started/stopped notifications to
// interested devices, and treats the completion gates as the sole
// precondition for declaring a run or step finished.
package measure

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acqlab/instrumentd/pkg/gate"
	"github.com/acqlab/instrumentd/pkg/logging"
	"github.com/acqlab/instrumentd/pkg/models"
	"github.com/acqlab/instrumentd/pkg/store"
)

var (
	ErrRunActive = errors.New("a run is already active")
	ErrNoRun     = errors.New("no active run")
	ErrStepOpen  = errors.New("a step is still open")
	ErrNoStep    = errors.New("no active step")
)

// recheckInterval is the fallback poll against missed gate edges
const recheckInterval = 50 * time.Millisecond

// Recorder counts run and step outcomes for the metrics surface
type Recorder interface {
	RunStarted()
	RunCompleted()
	RunFailed()
	StepOpened()
	GateUnderflow(gate string)
}

type nopRecorder struct{}

func (nopRecorder) RunStarted()          {}
func (nopRecorder) RunCompleted()        {}
func (nopRecorder) RunFailed()           {}
func (nopRecorder) StepOpened()          {}
func (nopRecorder) GateUnderflow(string) {}

// Controller drives measurement runs. It installs itself as the listener
// on both gates; a gate returning to zero nudges whichever wait is in
// progress, which then re-checks the count before proceeding. The count
// being zero is always re-verified after a wake-up, never assumed.
type Controller struct {
	runGate  *gate.Gate
	stepGate *gate.Gate
	st       store.Store
	log      *logging.Logger
	rec      Recorder

	mu        sync.Mutex
	run       *models.Run
	step      *models.Step
	stepIndex int

	preparedSubs []func()
	startedSubs  []func()
	stoppedSubs  []func()

	notify chan struct{}
}

// NewController creates the run/step engine over the two process gates
func NewController(runGate, stepGate *gate.Gate, st store.Store, log *logging.Logger) *Controller {
	c := &Controller{
		runGate:  runGate,
		stepGate: stepGate,
		st:       st,
		log:      log,
		rec:      nopRecorder{},
		notify:   make(chan struct{}, 1),
	}
	runGate.SetListener(c)
	stepGate.SetListener(c)
	return c
}

// SetRecorder installs the metrics recorder. Must be called before the
// first run is started.
func (c *Controller) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	c.rec = rec
}

// GateAcquired implements gate.Listener
func (c *Controller) GateAcquired(name string) {
	c.log.Debug("gate acquired", logging.Fields{"gate": name})
}

// GateReleased implements gate.Listener; it nudges any wait in progress
func (c *Controller) GateReleased(name string) {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// OnPrepared registers a callback invoked when a run has been requested,
// before the engine waits for outstanding device initialization
func (c *Controller) OnPrepared(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preparedSubs = append(c.preparedSubs, fn)
}

// OnStarted registers a callback invoked when a run begins
func (c *Controller) OnStarted(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedSubs = append(c.startedSubs, fn)
}

// OnStopped registers a callback invoked when a run stop is requested
func (c *Controller) OnStopped(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stoppedSubs = append(c.stoppedSubs, fn)
}

func (c *Controller) notifyAll(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}

// CurrentRun returns a copy of the active run, if any
func (c *Controller) CurrentRun() (*models.Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return nil, false
	}
	copied := *c.run
	return &copied, true
}

// StartRun creates a run, announces it, waits until no device holds the
// run gate anymore, then takes its own hold for the duration of the run
// and declares it started. Blocks until the run is running or ctx ends.
func (c *Controller) StartRun(ctx context.Context, label string) (*models.Run, error) {
	c.mu.Lock()
	if c.run != nil {
		c.mu.Unlock()
		return nil, ErrRunActive
	}
	run := &models.Run{
		ID:        uuid.New().String(),
		Label:     label,
		Status:    models.RunStatusStarting,
		StartedAt: time.Now(),
	}
	if err := c.st.CreateRun(run); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.run = run
	c.stepIndex = 0
	prepared := append([]func(){}, c.preparedSubs...)
	started := append([]func(){}, c.startedSubs...)
	c.mu.Unlock()

	c.log.Info("run requested", logging.Fields{"run": run.ID, "label": label})
	c.notifyAll(prepared)

	// Devices still bringing hardware up hold the run gate; the run does
	// not begin until every one of them has settled.
	if err := c.waitZero(ctx, c.runGate); err != nil {
		c.failRun(run.ID, "canceled while waiting for device initialization")
		return nil, err
	}

	// The engine holds the run gate itself for the whole run, so nothing
	// can observe a zero count and declare completion mid-run.
	c.runGate.Acquire()

	if err := c.st.UpdateRunStatus(run.ID, models.RunStatusRunning, ""); err != nil {
		c.releaseRunHold()
		c.failRun(run.ID, err.Error())
		return nil, err
	}

	c.mu.Lock()
	c.run.Status = models.RunStatusRunning
	copied := *c.run
	c.mu.Unlock()

	c.log.Info("run started", logging.Fields{"run": run.ID})
	c.rec.RunStarted()
	c.notifyAll(started)
	return &copied, nil
}

// StopRun announces the stop, closes any open step, releases the engine's
// own run-gate hold and waits for both gates to reach zero before marking
// the run completed. Blocks until then or until ctx ends.
func (c *Controller) StopRun(ctx context.Context) (*models.Run, error) {
	c.mu.Lock()
	if c.run == nil {
		c.mu.Unlock()
		return nil, ErrNoRun
	}
	run := c.run
	stepOpen := c.step != nil
	stopped := append([]func(){}, c.stoppedSubs...)
	c.mu.Unlock()

	c.log.Info("run stop requested", logging.Fields{"run": run.ID})
	c.notifyAll(stopped)

	if stepOpen {
		if err := c.EndStep(ctx); err != nil && !errors.Is(err, ErrNoStep) {
			c.failRun(run.ID, err.Error())
			return nil, err
		}
	}

	if err := c.st.UpdateRunStatus(run.ID, models.RunStatusStopping, ""); err != nil {
		return nil, err
	}

	c.releaseRunHold()

	// Late acquirers are legitimate: a device may still be flushing its
	// final data. Completion requires both gates at zero, re-checked
	// after every wake-up.
	if err := c.waitZero(ctx, c.stepGate); err != nil {
		c.failRun(run.ID, "canceled while waiting for step data")
		return nil, err
	}
	if err := c.waitZero(ctx, c.runGate); err != nil {
		c.failRun(run.ID, "canceled while waiting for devices")
		return nil, err
	}

	if err := c.st.UpdateRunStatus(run.ID, models.RunStatusCompleted, ""); err != nil {
		return nil, err
	}

	c.mu.Lock()
	run.Status = models.RunStatusCompleted
	copied := *run
	c.run = nil
	c.step = nil
	c.mu.Unlock()

	c.log.Info("run completed", logging.Fields{"run": copied.ID})
	c.rec.RunCompleted()
	return &copied, nil
}

// BeginStep opens the next step of the active run
func (c *Controller) BeginStep() (*models.Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run == nil {
		return nil, ErrNoRun
	}
	if c.run.Status != models.RunStatusRunning {
		return nil, ErrNoRun
	}
	if c.step != nil {
		return nil, ErrStepOpen
	}

	step := &models.Step{
		ID:        uuid.New().String(),
		RunID:     c.run.ID,
		Index:     c.stepIndex,
		Status:    models.StepStatusActive,
		StartedAt: time.Now(),
	}
	if err := c.st.CreateStep(step); err != nil {
		return nil, err
	}
	c.step = step
	c.stepIndex++

	c.log.Info("step started", logging.Fields{"run": c.run.ID, "step": step.Index})
	c.rec.StepOpened()
	copied := *step
	return &copied, nil
}

// EndStep closes the open step, waiting until no device holds the step
// gate so every sample belonging to the step has been handed over.
func (c *Controller) EndStep(ctx context.Context) error {
	c.mu.Lock()
	if c.step == nil {
		c.mu.Unlock()
		return ErrNoStep
	}
	step := c.step
	c.mu.Unlock()

	if c.stepGate.Acquired() {
		if err := c.st.UpdateStepStatus(step.ID, models.StepStatusClosing); err != nil {
			return err
		}
		if err := c.waitZero(ctx, c.stepGate); err != nil {
			return err
		}
	}

	if err := c.st.UpdateStepStatus(step.ID, models.StepStatusDone); err != nil {
		return err
	}

	c.mu.Lock()
	c.step = nil
	runID := ""
	if c.run != nil {
		runID = c.run.ID
	}
	c.mu.Unlock()

	c.log.Info("step done", logging.Fields{"run": runID, "step": step.Index})
	return nil
}

// waitZero blocks until the gate count is zero. Every wake-up re-checks
// the count, so an acquire racing the notification cannot slip through.
func (c *Controller) waitZero(ctx context.Context, g *gate.Gate) error {
	for {
		if g.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.notify:
		case <-time.After(recheckInterval):
		}
	}
}

func (c *Controller) releaseRunHold() {
	if err := c.runGate.Release(); err != nil {
		c.log.Error("run gate underflow in engine", logging.Fields{"error": err.Error()})
		c.rec.GateUnderflow(c.runGate.Name())
	}
}

func (c *Controller) failRun(id, reason string) {
	if err := c.st.UpdateRunStatus(id, models.RunStatusFailed, reason); err != nil {
		c.log.Error("failed to record run failure", logging.Fields{"run": id, "error": err.Error()})
	}
	c.rec.RunFailed()
	c.mu.Lock()
	if c.run != nil && c.run.ID == id {
		c.run = nil
		c.step = nil
	}
	c.mu.Unlock()
}
