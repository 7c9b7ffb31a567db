package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Exit codes docker run uses for its own failures rather than the program's.
const (
	exitDockerError = 125
	exitCannotExec  = 126
	exitNotFound    = 127
)

// DockerSandbox runs code in Docker containers.
type DockerSandbox struct {
	Policy Policy
	Binary string
	Logger *log.Logger
}

// NewDockerSandbox creates a sandbox with the given policy.
func NewDockerSandbox(policy Policy, logger *log.Logger) *DockerSandbox {
	if logger == nil {
		logger = log.Default()
	}
	return &DockerSandbox{Policy: policy, Binary: "docker", Logger: logger}
}

func (d *DockerSandbox) Available() error {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrStart, d.Binary, err)
	}
	return nil
}

func (d *DockerSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if !d.Policy.IsImageAllowed(opts.Image) {
		return nil, fmt.Errorf("%w: image %q not in allowlist", ErrStart, opts.Image)
	}

	if d.Policy.MaxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Policy.MaxTimeout)
		defer cancel()
	}

	ws, err := newWorkspace(opts.Name, opts.Files)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStart, err)
	}
	defer ws.remove()

	name := "pyrun-" + opts.Name
	cmd := exec.CommandContext(ctx, d.Binary, d.runArgs(name, ws, opts)...)
	cmd.Cancel = func() error {
		// Killing the CLI client leaves the container running.
		if out, err := exec.Command(d.Binary, "kill", name).CombinedOutput(); err != nil {
			d.Logger.Debug("docker kill failed", "container", name, "err", err, "output", strings.TrimSpace(string(out)))
		}
		return cmd.Process.Kill()
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrStart, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrStart, err)
	}

	var last lastLine
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: running docker: %v", ErrStart, err)
	}
	d.Logger.Debug("container started", "container", name, "image", opts.Image)

	var wg sync.WaitGroup
	wg.Add(2)
	go pump(&wg, stdout, opts.Stdout)
	go pump(&wg, stderr, last.wrap(opts.Stderr))
	wg.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("waiting for docker: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch exitCode {
	case exitDockerError, exitCannotExec, exitNotFound:
		if opts.Started == "" || !ws.exists(opts.Started) {
			return nil, fmt.Errorf("%w: docker exited with %d: %s", ErrStart, exitCode, strings.TrimSpace(last.String()))
		}
	}

	files, err := ws.collect(opts.Collect)
	if err != nil {
		return nil, err
	}
	return &ExecResult{ExitCode: exitCode, Files: files}, nil
}

func (d *DockerSandbox) runArgs(name string, ws *workspace, opts ExecOpts) []string {
	args := []string{
		"run", "--rm", "--name", name,
		"--memory", d.Policy.MaxMemory,
		"-v", ws.input + ":/workspace:ro",
		"-v", ws.output + ":/output",
		"-w", "/workspace",
		"-e", OutputDirEnv + "=/output",
	}
	if d.Policy.MaxCPUs != "" {
		args = append(args, "--cpus", d.Policy.MaxCPUs)
	}
	if !d.Policy.Network {
		args = append(args, "--network=none")
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	args = append(args, opts.Image)
	return append(args, opts.Command...)
}
