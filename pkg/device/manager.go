// Package device tracks the instruments attached to the daemon. Each
// device owns one operator runtime; the manager provides lookup, status
// snapshots and ordered shutdown.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acqlab/instrumentd/pkg/gate"
	"github.com/acqlab/instrumentd/pkg/logging"
	"github.com/acqlab/instrumentd/pkg/operator"
	"github.com/acqlab/instrumentd/pkg/profile"
)

var ErrDeviceExists = errors.New("device already exists")
var ErrDeviceNotFound = errors.New("device not found")

// Recorder is the metrics surface the manager reports into
type Recorder interface {
	OperatorActivated()
	PrepareFault()
	FinalizeFault()
	ErrorReported()
	GateUnderflow(gate string)
	DeviceAdded()
	DeviceRemoved()
}

type nopRecorder struct{}

func (nopRecorder) OperatorActivated()   {}
func (nopRecorder) PrepareFault()        {}
func (nopRecorder) FinalizeFault()       {}
func (nopRecorder) ErrorReported()       {}
func (nopRecorder) GateUnderflow(string) {}
func (nopRecorder) DeviceAdded()         {}
func (nopRecorder) DeviceRemoved()       {}

// DeviceState is the externally visible state of a device
type DeviceState string

const (
	StateActivating DeviceState = "activating"
	StateReady      DeviceState = "ready"
	StateFailed     DeviceState = "failed"
	StateStopped    DeviceState = "stopped"
)

// Status is a point-in-time snapshot of one device
type Status struct {
	Name  string      `json:"name"`
	Kind  string      `json:"kind"`
	State DeviceState `json:"state"`
	Error string      `json:"error,omitempty"`
	Since time.Time   `json:"since"`
}

// Manager owns all attached devices. Shutdown deactivates them in
// reverse attach order, so late-attached instruments that depend on
// earlier ones come down first.
type Manager struct {
	loop    *operator.Loop
	runGate *gate.Gate
	log     *logging.Logger
	rec     Recorder

	mu      sync.Mutex
	devices []*Device
}

// NewManager creates a device manager. rec may be nil.
func NewManager(loop *operator.Loop, runGate *gate.Gate, log *logging.Logger, rec Recorder) *Manager {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Manager{
		loop:    loop,
		runGate: runGate,
		log:     log,
		rec:     rec,
	}
}

// Activate attaches the device the spec describes and starts its
// operator with the given prepare arguments. It returns as soon as the
// worker is spawned; use Device.WaitSettled to block until the
// instrument is ready or has failed. The spec is retained so the live
// device set can be serialized back into a profile.
func (m *Manager) Activate(spec profile.DeviceSpec, op operator.Operator, prepareArgs interface{}) (*Device, error) {
	m.mu.Lock()
	for _, d := range m.devices {
		if d.name == spec.Name {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDeviceExists, spec.Name)
		}
	}

	d := &Device{
		name:    spec.Name,
		kind:    spec.Kind,
		args:    spec.Args,
		m:       m,
		state:   StateActivating,
		since:   time.Now(),
		settled: make(chan struct{}),
	}
	d.rt = operator.NewRuntime(d, m.loop, m.runGate, m.log)
	d.rt.SetRecorder(m.rec)
	m.devices = append(m.devices, d)
	m.mu.Unlock()

	if err := d.rt.Activate(op, prepareArgs); err != nil {
		m.detach(d)
		return nil, err
	}

	m.rec.OperatorActivated()
	m.rec.DeviceAdded()
	m.log.Info("device activating", logging.Fields{"device": spec.Name, "kind": spec.Kind})
	return d, nil
}

// Specs returns the live device set as profile entries in attach order
func (m *Manager) Specs() []profile.DeviceSpec {
	m.mu.Lock()
	defer m.mu.Unlock()

	specs := make([]profile.DeviceSpec, 0, len(m.devices))
	for _, d := range m.devices {
		specs = append(specs, profile.DeviceSpec{Name: d.name, Kind: d.kind, Args: d.args})
	}
	return specs
}

// Get returns the device with the given name
func (m *Manager) Get(name string) (*Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

// Deactivate finalizes the named device and detaches it
func (m *Manager) Deactivate(name string) error {
	d, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}

	err := d.rt.Deactivate()
	d.setState(StateStopped, "")
	m.detach(d)
	m.rec.DeviceRemoved()
	m.log.Info("device deactivated", logging.Fields{"device": name})
	return err
}

// List returns status snapshots in attach order
func (m *Manager) List() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]Status, 0, len(m.devices))
	for _, d := range m.devices {
		statuses = append(statuses, d.Status())
	}
	return statuses
}

// Shutdown deactivates every device in reverse attach order
func (m *Manager) Shutdown() {
	m.mu.Lock()
	devices := make([]*Device, len(m.devices))
	copy(devices, m.devices)
	m.mu.Unlock()

	for i := len(devices) - 1; i >= 0; i-- {
		if err := m.Deactivate(devices[i].name); err != nil && !errors.Is(err, ErrDeviceNotFound) {
			m.log.Warn("device shutdown error", logging.Fields{
				"device": devices[i].name,
				"error":  err.Error(),
			})
		}
	}
}

func (m *Manager) detach(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.devices {
		if cur == d {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return
		}
	}
}

// Device is one attached instrument. It receives the runtime callbacks
// on the dispatch loop and must never block there.
type Device struct {
	name string
	kind string
	args map[string]interface{}
	rt   *operator.Runtime
	m    *Manager

	mu        sync.Mutex
	state     DeviceState
	result    interface{}
	lastError string
	since     time.Time

	settleOnce sync.Once
	settled    chan struct{}
}

func (d *Device) Name() string { return d.name }
func (d *Device) Kind() string { return d.kind }

// Result returns the value the operator produced on readiness
func (d *Device) Result() interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// Status returns a point-in-time snapshot
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Name:  d.name,
		Kind:  d.kind,
		State: d.state,
		Error: d.lastError,
		Since: d.since,
	}
}

// WaitSettled blocks until the device is ready or has failed
func (d *Device) WaitSettled(ctx context.Context) error {
	select {
	case <-d.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateFailed {
		return fmt.Errorf("device %s failed: %s", d.name, d.lastError)
	}
	return nil
}

func (d *Device) setState(state DeviceState, errMsg string) {
	d.mu.Lock()
	d.state = state
	d.since = time.Now()
	if errMsg != "" {
		d.lastError = errMsg
	}
	d.mu.Unlock()
}

// OperatorReady implements operator.Device
func (d *Device) OperatorReady(result interface{}) {
	d.mu.Lock()
	d.state = StateReady
	d.result = result
	d.since = time.Now()
	d.mu.Unlock()
	d.settleOnce.Do(func() { close(d.settled) })

	d.m.log.Info("device ready", logging.Fields{"device": d.name, "kind": d.kind})
}

// ShowError implements operator.Device
func (d *Device) ShowError(message string, detail interface{}) {
	d.mu.Lock()
	d.lastError = message
	d.mu.Unlock()
	d.m.rec.ErrorReported()

	d.m.log.Warn("device error", logging.Fields{
		"device": d.name,
		"error":  message,
		"detail": fmt.Sprintf("%v", detail),
	})
}

// ShowException implements operator.Device
func (d *Device) ShowException(err error) {
	d.mu.Lock()
	d.lastError = err.Error()
	d.mu.Unlock()

	var finalizeFault *operator.FinalizeFault
	if errors.As(err, &finalizeFault) {
		d.m.rec.FinalizeFault()
	} else {
		d.m.rec.ErrorReported()
	}

	d.m.log.Error("device exception", logging.Fields{"device": d.name, "error": err.Error()})
}

// Kill implements operator.Device. It runs on the dispatch loop, so the
// blocking deactivation happens on a separate goroutine; waiting here
// would deadlock against the worker posting its finalize outcome.
func (d *Device) Kill() {
	d.mu.Lock()
	d.state = StateFailed
	d.since = time.Now()
	d.mu.Unlock()
	d.settleOnce.Do(func() { close(d.settled) })

	d.m.rec.PrepareFault()
	d.m.log.Error("device killed", logging.Fields{"device": d.name, "error": d.lastError})

	go func() {
		if err := d.rt.Deactivate(); err != nil {
			d.m.log.Warn("kill deactivation error", logging.Fields{"device": d.name, "error": err.Error()})
		}
		d.m.detach(d)
		d.m.rec.DeviceRemoved()
	}()
}
