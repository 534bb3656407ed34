package models

import "fmt"

// validRunTransitions maps from-status to allowed to-statuses
var validRunTransitions = map[RunStatus]map[RunStatus]bool{
	RunStatusStarting: {
		RunStatusRunning: true, // Starting → Running (run gate cleared)
		RunStatusFailed:  true, // Starting → Failed (aborted before running)
	},
	RunStatusRunning: {
		RunStatusStopping: true, // Running → Stopping (stop requested)
		RunStatusFailed:   true, // Running → Failed (fatal error mid-run)
	},
	RunStatusStopping: {
		RunStatusCompleted: true, // Stopping → Completed (gates cleared)
		RunStatusFailed:    true, // Stopping → Failed (teardown error)
	},
	// Terminal statuses
	RunStatusCompleted: {},
	RunStatusFailed:    {},
}

// ValidateRunTransition checks if a run status transition is valid
func ValidateRunTransition(from, to RunStatus) error {
	allowed, exists := validRunTransitions[from]
	if !exists {
		return fmt.Errorf("unknown run status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid run transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalRunStatus returns true if no further transitions are allowed
func IsTerminalRunStatus(status RunStatus) bool {
	return status == RunStatusCompleted || status == RunStatusFailed
}

var validStepTransitions = map[StepStatus]map[StepStatus]bool{
	StepStatusActive: {
		StepStatusClosing: true, // Active → Closing (step end requested)
		StepStatusDone:    true, // Active → Done (step gate already clear)
	},
	StepStatusClosing: {
		StepStatusDone: true, // Closing → Done (step gate cleared)
	},
	StepStatusDone: {},
}

// ValidateStepTransition checks if a step status transition is valid
func ValidateStepTransition(from, to StepStatus) error {
	allowed, exists := validStepTransitions[from]
	if !exists {
		return fmt.Errorf("unknown step status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid step transition from %s to %s", from, to)
	}
	return nil
}
