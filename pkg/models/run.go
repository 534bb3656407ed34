package models

import "time"

// RunStatus represents the status of a measurement run
type RunStatus string

const (
	RunStatusStarting  RunStatus = "starting"  // waiting for outstanding device initialization
	RunStatusRunning   RunStatus = "running"   // acquisition in progress
	RunStatusStopping  RunStatus = "stopping"  // stop requested, waiting for gates to clear
	RunStatusCompleted RunStatus = "completed" // finished cleanly
	RunStatusFailed    RunStatus = "failed"    // aborted on error
)

// StepStatus represents the status of one step within a run
type StepStatus string

const (
	StepStatusActive  StepStatus = "active"  // step data being acquired
	StepStatusClosing StepStatus = "closing" // step end requested, waiting for step gate
	StepStatusDone    StepStatus = "done"
)

// Run is the persistent record of one measurement run
type Run struct {
	ID        string     `json:"id"`
	Label     string     `json:"label,omitempty"`
	Status    RunStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Step is the persistent record of one step within a run
type Step struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id"`
	Index     int        `json:"index"`
	Status    StepStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}
