// Package metrics exposes the daemon's operational counters in
// Prometheus format: gate counts, device states, operator activations
// and faults, run totals.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acqlab/instrumentd/pkg/gate"
)

// Recorder owns its own registry so tests never collide on the global one
type Recorder struct {
	registry *prometheus.Registry

	activations    prometheus.Counter
	prepareFaults  prometheus.Counter
	finalizeFaults prometheus.Counter
	reportedErrors prometheus.Counter
	gateUnderflows *prometheus.CounterVec
	runsStarted    prometheus.Counter
	runsCompleted  prometheus.Counter
	runsFailed     prometheus.Counter
	stepsTotal     prometheus.Counter
	devicesActive  prometheus.Gauge
}

// NewRecorder builds a recorder and registers per-gate count gauges
func NewRecorder(gates ...*gate.Gate) *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instrumentd_operator_activations_total",
			Help: "Number of operator activations",
		}),
		prepareFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instrumentd_prepare_faults_total",
			Help: "Number of fatal initialization faults",
		}),
		finalizeFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instrumentd_finalize_faults_total",
			Help: "Number of teardown faults",
		}),
		reportedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instrumentd_reported_errors_total",
			Help: "Number of non-fatal errors reported by operators",
		}),
		gateUnderflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "instrumentd_gate_underflows_total",
			Help: "Number of gate releases without a matching acquire",
		}, []string{"gate"}),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instrumentd_runs_started_total",
			Help: "Number of runs started",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instrumentd_runs_completed_total",
			Help: "Number of runs completed",
		}),
		runsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instrumentd_runs_failed_total",
			Help: "Number of runs that failed",
		}),
		stepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instrumentd_steps_total",
			Help: "Number of steps opened",
		}),
		devicesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "instrumentd_devices_active",
			Help: "Number of devices currently active",
		}),
	}

	registry.MustRegister(
		r.activations,
		r.prepareFaults,
		r.finalizeFaults,
		r.reportedErrors,
		r.gateUnderflows,
		r.runsStarted,
		r.runsCompleted,
		r.runsFailed,
		r.stepsTotal,
		r.devicesActive,
	)

	for _, g := range gates {
		g := g
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "instrumentd_gate_count",
			Help:        "Current hold count of a completion gate",
			ConstLabels: prometheus.Labels{"gate": g.Name()},
		}, func() float64 {
			return float64(g.Count())
		}))
	}

	return r
}

// Handler returns the HTTP handler for the /metrics endpoint
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) OperatorActivated()        { r.activations.Inc() }
func (r *Recorder) PrepareFault()             { r.prepareFaults.Inc() }
func (r *Recorder) FinalizeFault()            { r.finalizeFaults.Inc() }
func (r *Recorder) ErrorReported()            { r.reportedErrors.Inc() }
func (r *Recorder) GateUnderflow(name string) { r.gateUnderflows.WithLabelValues(name).Inc() }
func (r *Recorder) RunStarted()               { r.runsStarted.Inc() }
func (r *Recorder) RunCompleted()             { r.runsCompleted.Inc() }
func (r *Recorder) RunFailed()                { r.runsFailed.Inc() }
func (r *Recorder) StepOpened()               { r.stepsTotal.Inc() }
func (r *Recorder) DeviceAdded()              { r.devicesActive.Inc() }
func (r *Recorder) DeviceRemoved()            { r.devicesActive.Dec() }
