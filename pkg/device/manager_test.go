package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acqlab/instrumentd/pkg/channel"
	"github.com/acqlab/instrumentd/pkg/gate"
	"github.com/acqlab/instrumentd/pkg/logging"
	"github.com/acqlab/instrumentd/pkg/operator"
	"github.com/acqlab/instrumentd/pkg/profile"
)

type testOperator struct {
	operator.Base
	prepare  func(args interface{}) (interface{}, error)
	finalize func() error
}

func (o *testOperator) Prepare(args interface{}) (interface{}, error) {
	if o.prepare == nil {
		return nil, nil
	}
	return o.prepare(args)
}

func (o *testOperator) Finalize() error {
	if o.finalize == nil {
		return nil
	}
	return o.finalize()
}

func newTestManager(t *testing.T) (*Manager, *gate.Gate) {
	t.Helper()
	loop := operator.NewLoop(0)
	loop.Start()
	t.Cleanup(loop.Stop)

	runGate := gate.New("run")
	log := logging.New(logging.ERROR, false)
	return NewManager(loop, runGate, log, nil), runGate
}

func spec(name, kind string) profile.DeviceSpec {
	return profile.DeviceSpec{Name: name, Kind: kind}
}

func TestActivateAndSettle(t *testing.T) {
	m, runGate := newTestManager(t)
	ctx := context.Background()

	op := &testOperator{prepare: func(args interface{}) (interface{}, error) {
		return "idn-42", nil
	}}

	d, err := m.Activate(spec("dmm", "serial"), op, nil)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if err := d.WaitSettled(ctx); err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}

	if d.Status().State != StateReady {
		t.Errorf("Expected ready, got %s", d.Status().State)
	}
	if d.Result() != "idn-42" {
		t.Errorf("Unexpected result: %v", d.Result())
	}
	if runGate.Count() != 0 {
		t.Errorf("Expected run gate released after readiness, got %d", runGate.Count())
	}

	statuses := m.List()
	if len(statuses) != 1 || statuses[0].Name != "dmm" || statuses[0].Kind != "serial" {
		t.Errorf("Unexpected status list: %+v", statuses)
	}
}

func TestDuplicateNameRefused(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.Activate(spec("dmm", "serial"), &testOperator{}, nil); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if _, err := m.Activate(spec("dmm", "serial"), &testOperator{}, nil); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Expected ErrDeviceExists, got %v", err)
	}
}

func TestFailedPrepareDetachesDevice(t *testing.T) {
	m, runGate := newTestManager(t)
	ctx := context.Background()

	op := &testOperator{prepare: func(args interface{}) (interface{}, error) {
		return nil, errors.New("instrument not responding")
	}}

	d, err := m.Activate(spec("broken", "serial"), op, nil)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if err := d.WaitSettled(ctx); err == nil {
		t.Fatal("Expected WaitSettled to report the failure")
	}
	if d.Status().State != StateFailed {
		t.Errorf("Expected failed, got %s", d.Status().State)
	}
	if runGate.Count() != 0 {
		t.Errorf("Expected run gate released after the fault, got %d", runGate.Count())
	}

	// The kill path detaches the device on its own goroutine
	deadline := time.After(2 * time.Second)
	for {
		if len(m.List()) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Killed device was never detached")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDeactivate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	finalized := make(chan struct{})
	op := &testOperator{finalize: func() error {
		close(finalized)
		return nil
	}}

	d, err := m.Activate(spec("dmm", "serial"), op, nil)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if err := d.WaitSettled(ctx); err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}

	if err := m.Deactivate("dmm"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	select {
	case <-finalized:
	case <-time.After(2 * time.Second):
		t.Fatal("Finalize never ran")
	}

	if len(m.List()) != 0 {
		t.Error("Expected the device detached")
	}
	if err := m.Deactivate("dmm"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestShutdownIsLIFO(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var order []string
	appendOrder := func(name string) func() error {
		return func() error {
			order = append(order, name)
			return nil
		}
	}

	for _, name := range []string{"first", "second", "third"} {
		d, err := m.Activate(spec(name, "serial"), &testOperator{finalize: appendOrder(name)}, nil)
		if err != nil {
			t.Fatalf("Activate %s failed: %v", name, err)
		}
		if err := d.WaitSettled(ctx); err != nil {
			t.Fatalf("WaitSettled %s failed: %v", name, err)
		}
	}

	m.Shutdown()

	if len(order) != 3 || order[0] != "third" || order[2] != "first" {
		t.Errorf("Expected reverse attach order, got %v", order)
	}
	if len(m.List()) != 0 {
		t.Error("Expected all devices detached")
	}
}

func TestSpecsRetainArguments(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	specs := []profile.DeviceSpec{
		{Name: "dmm", Kind: "serial", Args: map[string]interface{}{"address": "10.0.0.5:5025"}},
		{Name: "cpu", Kind: "cpu", Args: map[string]interface{}{"interval": "250ms"}},
	}
	for _, s := range specs {
		d, err := m.Activate(s, &testOperator{}, nil)
		if err != nil {
			t.Fatalf("Activate %s failed: %v", s.Name, err)
		}
		if err := d.WaitSettled(ctx); err != nil {
			t.Fatalf("WaitSettled %s failed: %v", s.Name, err)
		}
	}

	got := m.Specs()
	if len(got) != 2 {
		t.Fatalf("Expected 2 specs, got %d", len(got))
	}
	if got[0].Name != "dmm" || got[0].Kind != "serial" {
		t.Errorf("Unexpected first spec: %+v", got[0])
	}
	if got[0].Args["address"] != "10.0.0.5:5025" {
		t.Errorf("Expected address argument retained, got %v", got[0].Args)
	}
	if got[1].Args["interval"] != "250ms" {
		t.Errorf("Expected interval argument retained, got %v", got[1].Args)
	}

	if err := m.Deactivate("dmm"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if got := m.Specs(); len(got) != 1 || got[0].Name != "cpu" {
		t.Errorf("Expected only cpu after detach, got %+v", got)
	}
}

func TestRegistryBuildsKnownKinds(t *testing.T) {
	r := NewRegistry(channel.NewHub())

	op, _, err := r.Build("cpu", "host-cpu", map[string]interface{}{"interval": "100ms"})
	if err != nil {
		t.Fatalf("Build cpu failed: %v", err)
	}
	if op == nil {
		t.Fatal("Expected an operator")
	}

	if _, _, err := r.Build("fridge", "f1", nil); err == nil {
		t.Error("Expected unknown kind to be rejected")
	}
	if _, _, err := r.Build("serial", "dmm", map[string]interface{}{}); err == nil {
		t.Error("Expected missing address to be rejected")
	}
	if _, _, err := r.Build("cpu", "c1", map[string]interface{}{"interval": "soon"}); err == nil {
		t.Error("Expected bad interval to be rejected")
	}
}
