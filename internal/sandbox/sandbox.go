package sandbox

import (
	"context"
	"errors"
)

// OutputDirEnv names the environment variable holding the writable directory
// a sandboxed program reports its results into.
const OutputDirEnv = "SANDBOX_OUTPUT_DIR"

// ErrStart is wrapped by errors raised when the sandbox itself could not be
// brought up, as opposed to the program inside it failing.
var ErrStart = errors.New("sandbox failed to start")

// LineSink receives one line of program output, newline included when present.
type LineSink func(line string)

// ExecOpts describes a code execution request.
type ExecOpts struct {
	Name    string            // Container / workspace name suffix
	Image   string            // Docker image (e.g. "python:3.12-slim")
	Command []string          // Run from the workspace directory
	Files   map[string][]byte // Written into the workspace before start
	Env     map[string]string
	Stdout  LineSink
	Stderr  LineSink
	Collect []string // Files read back from the output dir after exit
	// Started is a file the program creates in the output dir as soon as it
	// runs. When it exists, exit statuses docker reserves for its own
	// failures are the program's and not a start failure.
	Started string
}

// ExecResult is the output of a sandboxed execution.
type ExecResult struct {
	ExitCode int
	Files    map[string][]byte // Collected files that exist
}

// Sandbox runs code in an isolated environment.
type Sandbox interface {
	// Available reports whether the sandbox can be started at all.
	Available() error
	Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error)
}
