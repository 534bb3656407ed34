package store

import (
	"errors"

	"github.com/acqlab/instrumentd/pkg/models"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrStepNotFound = errors.New("step not found")
)

// Store persists the history of measurement runs and their steps
type Store interface {
	CreateRun(run *models.Run) error
	GetRun(id string) (*models.Run, error)
	ListRuns() ([]*models.Run, error)
	// UpdateRunStatus validates the transition before applying it
	UpdateRunStatus(id string, status models.RunStatus, errMsg string) error

	CreateStep(step *models.Step) error
	StepsForRun(runID string) ([]*models.Step, error)
	UpdateStepStatus(id string, status models.StepStatus) error

	Close() error
}
