// Package api exposes the daemon's control surface over HTTP: device
// attachment, run and step control, gate inspection and run history.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/acqlab/instrumentd/pkg/channel"
	"github.com/acqlab/instrumentd/pkg/device"
	"github.com/acqlab/instrumentd/pkg/gate"
	"github.com/acqlab/instrumentd/pkg/logging"
	"github.com/acqlab/instrumentd/pkg/measure"
	"github.com/acqlab/instrumentd/pkg/profile"
	"github.com/acqlab/instrumentd/pkg/store"
)

// Handler serves the daemon API
type Handler struct {
	controller *measure.Controller
	manager    *device.Manager
	registry   *device.Registry
	store      store.Store
	gates      []*gate.Gate
	hub        *channel.Hub
	metrics    http.Handler
	log        *logging.Logger
}

// NewHandler creates the API handler
func NewHandler(
	controller *measure.Controller,
	manager *device.Manager,
	registry *device.Registry,
	st store.Store,
	gates []*gate.Gate,
	hub *channel.Hub,
	metrics http.Handler,
	log *logging.Logger,
) *Handler {
	return &Handler{
		controller: controller,
		manager:    manager,
		registry:   registry,
		store:      st,
		gates:      gates,
		hub:        hub,
		metrics:    metrics,
		log:        log,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	r.HandleFunc("/devices", h.ListDevices).Methods("GET")
	r.HandleFunc("/devices", h.AttachDevice).Methods("POST")
	r.HandleFunc("/devices/{name}", h.DetachDevice).Methods("DELETE")

	r.HandleFunc("/gates", h.ListGates).Methods("GET")
	r.HandleFunc("/channels", h.ListChannels).Methods("GET")
	r.HandleFunc("/profile", h.GetProfile).Methods("GET")

	// Specific routes before parameterized ones
	r.HandleFunc("/runs/start", h.StartRun).Methods("POST")
	r.HandleFunc("/runs/stop", h.StopRun).Methods("POST")
	r.HandleFunc("/runs/current", h.CurrentRun).Methods("GET")
	r.HandleFunc("/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")

	r.HandleFunc("/steps/begin", h.BeginStep).Methods("POST")
	r.HandleFunc("/steps/end", h.EndStep).Methods("POST")

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
}

// Health reports daemon liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListDevices returns status snapshots for all attached devices
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List())
}

// AttachDeviceRequest is the body of POST /devices
type AttachDeviceRequest struct {
	Name string                 `json:"name"`
	Kind string                 `json:"kind"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// AttachDevice builds and activates a device, waiting until it settles
func (h *Handler) AttachDevice(w http.ResponseWriter, r *http.Request) {
	var req AttachDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Kind == "" {
		http.Error(w, "Name and kind are required", http.StatusBadRequest)
		return
	}

	op, args, err := h.registry.Build(req.Kind, req.Name, req.Args)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.manager.Activate(profile.DeviceSpec{Name: req.Name, Kind: req.Kind, Args: req.Args}, op, args)
	if err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := d.WaitSettled(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, d.Status())
}

// DetachDevice finalizes and removes a device
func (h *Handler) DetachDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.manager.Deactivate(name); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GateStatus is one entry of GET /gates
type GateStatus struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	Acquired bool   `json:"acquired"`
}

// ListGates reports the current hold counts of the completion gates
func (h *Handler) ListGates(w http.ResponseWriter, r *http.Request) {
	statuses := make([]GateStatus, 0, len(h.gates))
	for _, g := range h.gates {
		statuses = append(statuses, GateStatus{
			Name:     g.Name(),
			Count:    g.Count(),
			Acquired: g.Acquired(),
		})
	}
	writeJSON(w, http.StatusOK, statuses)
}

// ListChannels returns the names of all data channels
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Names())
}

// GetProfile serializes the live device set as a profile, arguments
// included, so the current setup can be saved and re-attached later.
// The optional name query parameter names the resulting profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "current"
	}
	writeJSON(w, http.StatusOK, profile.Profile{
		Name:    name,
		Devices: h.manager.Specs(),
	})
}

// StartRunRequest is the body of POST /runs/start
type StartRunRequest struct {
	Label string `json:"label,omitempty"`
}

// StartRun begins a run, blocking until devices have settled
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	run, err := h.controller.StartRun(r.Context(), req.Label)
	if err != nil {
		if errors.Is(err, measure.ErrRunActive) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// StopRun stops the active run, blocking until both gates are clear
func (h *Handler) StopRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.controller.StopRun(r.Context())
	if err != nil {
		if errors.Is(err, measure.ErrNoRun) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CurrentRun returns the active run, if any
func (h *Handler) CurrentRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.controller.CurrentRun()
	if !ok {
		http.Error(w, "No active run", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRuns returns the run history, newest first
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// RunDetail is the body of GET /runs/{id}
type RunDetail struct {
	Run   interface{} `json:"run"`
	Steps interface{} `json:"steps"`
}

// GetRun returns one run with its steps
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.store.GetRun(id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	steps, err := h.store.StepsForRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RunDetail{Run: run, Steps: steps})
}

// BeginStep opens the next step of the active run
func (h *Handler) BeginStep(w http.ResponseWriter, r *http.Request) {
	step, err := h.controller.BeginStep()
	if err != nil {
		if errors.Is(err, measure.ErrNoRun) || errors.Is(err, measure.ErrStepOpen) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, step)
}

// EndStep closes the open step, blocking until the step gate is clear
func (h *Handler) EndStep(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.EndStep(r.Context()); err != nil {
		if errors.Is(err, measure.ErrNoStep) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
