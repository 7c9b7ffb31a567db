package harness

import "fmt"

// Phase names the pipeline stage an execution failed in.
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap"
	PhaseInstall   Phase = "install"
	PhaseExecute   Phase = "execute"
	PhaseSerialize Phase = "serialize"
)

// BootstrapError means the runtime could not be brought up at all. It is
// the only failure that does not produce an outcome.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("starting runtime: %v", e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// RunError is a failure reported through the outcome.
type RunError struct {
	Phase   Phase
	Message string
}

func (e *RunError) Error() string { return e.Message }
