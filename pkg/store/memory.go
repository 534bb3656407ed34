package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/acqlab/instrumentd/pkg/models"
)

// MemoryStore is the in-memory implementation of the run history store,
// used when no database path is configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*models.Run
	steps map[string]*models.Step
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]*models.Run),
		steps: make(map[string]*models.Step),
	}
}

// CreateRun adds a run record
func (s *MemoryStore) CreateRun(run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

// GetRun retrieves a run by ID
func (s *MemoryStore) GetRun(id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

// ListRuns returns all runs ordered by start time, newest first
func (s *MemoryStore) ListRuns() ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		copied := *run
		runs = append(runs, &copied)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// UpdateRunStatus applies a validated status transition
func (s *MemoryStore) UpdateRunStatus(id string, status models.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if err := models.ValidateRunTransition(run.Status, status); err != nil {
		return err
	}

	run.Status = status
	run.Error = errMsg
	if models.IsTerminalRunStatus(status) {
		now := time.Now()
		run.StoppedAt = &now
	}
	return nil
}

// CreateStep adds a step record
func (s *MemoryStore) CreateStep(step *models.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.steps[step.ID]; exists {
		return fmt.Errorf("step %s already exists", step.ID)
	}
	if _, exists := s.runs[step.RunID]; !exists {
		return ErrRunNotFound
	}
	copied := *step
	s.steps[step.ID] = &copied
	return nil
}

// StepsForRun returns the steps of a run in index order
func (s *MemoryStore) StepsForRun(runID string) ([]*models.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := make([]*models.Step, 0)
	for _, step := range s.steps {
		if step.RunID == runID {
			copied := *step
			steps = append(steps, &copied)
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Index < steps[j].Index
	})
	return steps, nil
}

// UpdateStepStatus applies a validated status transition
func (s *MemoryStore) UpdateStepStatus(id string, status models.StepStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.steps[id]
	if !ok {
		return ErrStepNotFound
	}
	if err := models.ValidateStepTransition(step.Status, status); err != nil {
		return err
	}

	step.Status = status
	if status == models.StepStatusDone {
		now := time.Now()
		step.StoppedAt = &now
	}
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
