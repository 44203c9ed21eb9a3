package worker

import (
	"errors"
	"fmt"
)

// ErrRestartInProgress is returned to a restart caller who attached to an
// already in-flight restart. It is an acknowledgment, not a failure: the
// caller still receives the Handle produced by the collapsed operation.
var ErrRestartInProgress = errors.New("restart already in progress")

// ErrAlreadyRunning is returned by Start when a live handle exists.
var ErrAlreadyRunning = errors.New("worker already running")

// SpawnError reports that the worker executable could not be started,
// typically because the script or interpreter is missing. It is fatal to the
// start attempt but never to the supervising process.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
