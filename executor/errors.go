package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHandler is returned when no handler is registered for a job type.
	ErrNoHandler = errors.New("executor: no handler registered")
	// ErrCancelled is returned by handlers that stop because their job was cancelled.
	ErrCancelled = errors.New("executor: job cancelled")
	// ErrLeaseLost is the cancellation cause used when the heartbeat loop
	// loses ownership of a run.
	ErrLeaseLost = errors.New("executor: lease lost")
	// ErrShutdown is the cancellation cause used when the worker gives up on a
	// run at the end of its shutdown grace period.
	ErrShutdown = errors.New("executor: worker shutting down")
)

// SuspendError is returned by Exec.Ask while a question is unresolved.
// Handlers return it, possibly wrapped, to suspend the job.
type SuspendError struct {
	QuestionID string
	Key        string
}

func (e *SuspendError) Error() string {
	return fmt.Sprintf("executor: waiting for answer to %q", e.Key)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a configuration error: the run fails without retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
