package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/acqlab/instrumentd/pkg/gate"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(body)
}

func TestGateCountGauge(t *testing.T) {
	g := gate.New("run")
	r := NewRecorder(g)

	g.Acquire()
	g.Acquire()

	body := scrape(t, r)
	if !strings.Contains(body, `instrumentd_gate_count{gate="run"} 2`) {
		t.Errorf("Expected gate count 2 in scrape:\n%s", body)
	}

	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	body = scrape(t, r)
	if !strings.Contains(body, `instrumentd_gate_count{gate="run"} 0`) {
		t.Errorf("Expected gate count 0 in scrape:\n%s", body)
	}
}

func TestCounters(t *testing.T) {
	r := NewRecorder()

	r.OperatorActivated()
	r.OperatorActivated()
	r.PrepareFault()
	r.GateUnderflow("step")
	r.DeviceAdded()
	r.DeviceAdded()
	r.DeviceRemoved()

	body := scrape(t, r)
	for _, want := range []string{
		"instrumentd_operator_activations_total 2",
		"instrumentd_prepare_faults_total 1",
		`instrumentd_gate_underflows_total{gate="step"} 1`,
		"instrumentd_devices_active 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in scrape:\n%s", want, body)
		}
	}
}

func TestIndependentRegistries(t *testing.T) {
	// Two recorders must not collide on registration
	a := NewRecorder(gate.New("run"))
	b := NewRecorder(gate.New("run"))
	a.RunStarted()

	if strings.Contains(scrape(t, b), "instrumentd_runs_started_total 1") {
		t.Error("Recorders must not share state")
	}
}
