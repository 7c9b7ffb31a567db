package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
)

// ProcessSandbox runs the command directly on the host inside a throwaway
// workspace directory. It isolates files, not the process; use it for local
// development where Docker is unavailable.
type ProcessSandbox struct {
	Logger *log.Logger
}

// NewProcessSandbox creates a host-process sandbox.
func NewProcessSandbox(logger *log.Logger) *ProcessSandbox {
	if logger == nil {
		logger = log.Default()
	}
	return &ProcessSandbox{Logger: logger}
}

func (p *ProcessSandbox) Available() error {
	return nil
}

func (p *ProcessSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrStart)
	}
	if _, err := exec.LookPath(opts.Command[0]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStart, err)
	}

	ws, err := newWorkspace(opts.Name, opts.Files)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStart, err)
	}
	defer ws.remove()

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	cmd.Dir = ws.input
	cmd.Env = append(os.Environ(), OutputDirEnv+"="+ws.output)
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrStart, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrStart, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStart, err)
	}
	p.Logger.Debug("process started", "pid", cmd.Process.Pid, "dir", ws.input)

	var wg sync.WaitGroup
	wg.Add(2)
	go pump(&wg, stdout, opts.Stdout)
	go pump(&wg, stderr, opts.Stderr)
	wg.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("waiting for process: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	files, err := ws.collect(opts.Collect)
	if err != nil {
		return nil, err
	}
	return &ExecResult{ExitCode: exitCode, Files: files}, nil
}
