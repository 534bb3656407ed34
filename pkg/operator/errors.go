package operator

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyActive is returned by Activate while a previous worker
	// for the same runtime has not been deactivated yet
	ErrAlreadyActive = errors.New("operator already active")
)

// PrepareFault wraps a failure inside Operator.Prepare. It is always fatal
// to the current activation: the ready event is never emitted and the
// owning device is killed.
type PrepareFault struct {
	Err error
}

func (f *PrepareFault) Error() string {
	return fmt.Sprintf("operator prepare failed: %v", f.Err)
}

func (f *PrepareFault) Unwrap() error {
	return f.Err
}

// FinalizeFault wraps a failure inside Operator.Finalize. It is reported to
// the device but never fatal: the worker still exits and teardown proceeds.
type FinalizeFault struct {
	Err error
}

func (f *FinalizeFault) Error() string {
	return fmt.Sprintf("operator finalize failed: %v", f.Err)
}

func (f *FinalizeFault) Unwrap() error {
	return f.Err
}

// DeactivateTimeoutError reports that a worker did not exit within the
// configured bound during Deactivate. The worker keeps running; the caller
// decides whether to abandon it.
type DeactivateTimeoutError struct {
	Timeout time.Duration
}

func (e *DeactivateTimeoutError) Error() string {
	return fmt.Sprintf("worker did not exit within %v", e.Timeout)
}
