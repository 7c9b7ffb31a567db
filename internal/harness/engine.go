// Package harness runs one request in a fresh sandboxed Python runtime and
// turns what happened into an Outcome.
package harness

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/michaelbrown/pyrun/internal/encode"
	"github.com/michaelbrown/pyrun/internal/sandbox"
)

//go:embed driver.py
var driverSource []byte

const (
	driverFile  = "driver.py"
	requestFile = "request.json"
	resultFile  = "result.json"
	startedFile = "started"
)

// Config controls how the engine drives the runtime.
type Config struct {
	Image       string // ignored by the process sandbox
	Interpreter string
	Baseline    []string
	Markers     []MarkerRule
	IndexURL    string
	Timeout     time.Duration // zero means no deadline
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Image:       "python:3.12-slim",
		Interpreter: "python3",
		Baseline:    DefaultBaseline,
		Markers:     DefaultMarkers,
	}
}

// Engine executes requests. Each Run gets its own runtime.
type Engine struct {
	cfg      Config
	sandbox  sandbox.Sandbox
	resolver *encode.Resolver
	logger   *log.Logger
}

// New creates an Engine. A nil resolver means encode.DefaultResolver.
func New(cfg Config, sb sandbox.Sandbox, resolver *encode.Resolver, logger *log.Logger) *Engine {
	if resolver == nil {
		resolver = encode.DefaultResolver()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{cfg: cfg, sandbox: sb, resolver: resolver, logger: logger}
}

// invocation carries state between pipeline stages.
type invocation struct {
	req      Request
	session  *Session
	packages PackageSet
	value    json.RawMessage
	retval   string
}

type stage struct {
	phase Phase
	run   func(context.Context, *invocation) error
}

func (e *Engine) pipeline() []stage {
	return []stage{
		{PhaseInstall, e.plan},
		{PhaseExecute, e.launch},
		{PhaseSerialize, e.serialize},
	}
}

// Run executes req. The error return is reserved for *BootstrapError; every
// other failure is reported in the Outcome.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	id := uuid.NewString()
	logger := e.logger.With("run", id)

	sess, err := Bootstrap(e.sandbox, id)
	if err != nil {
		return nil, err
	}
	inv := &invocation{req: req, session: sess}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	for _, st := range e.pipeline() {
		err := st.run(ctx, inv)
		if err == nil {
			continue
		}
		var bootErr *BootstrapError
		if errors.As(err, &bootErr) {
			return nil, err
		}
		runErr := &RunError{Phase: st.phase, Message: err.Error()}
		errors.As(err, &runErr)

		out := e.outcome(inv)
		out.Err = runErr
		// The wire outcome only carries the error; keep the streams in the log.
		logger.Debug("run failed", "phase", runErr.Phase, "elapsed", time.Since(start),
			"stdout", out.Stdout, "stderr", out.Stderr)
		return out, nil
	}

	logger.Debug("run finished", "elapsed", time.Since(start))
	return e.outcome(inv), nil
}

func (e *Engine) outcome(inv *invocation) *Outcome {
	stdout, stderr := inv.session.Flush()
	return &Outcome{
		RunID:       inv.session.ID,
		Stdout:      stdout,
		Stderr:      stderr,
		ReturnValue: inv.retval,
	}
}

func (e *Engine) plan(_ context.Context, inv *invocation) error {
	for _, d := range inv.req.Dependencies {
		if err := ValidateRequirement(d); err != nil {
			return err
		}
	}
	text := inv.req.DependencyText
	if text == "" {
		text = FormatDependencies(inv.req.Dependencies)
	}
	inv.packages = Plan(e.cfg.Baseline, e.cfg.Markers, text)
	e.logger.Debug("planned packages", "run", inv.session.ID, "packages", inv.packages, "dependencies", inv.req.Dependencies)
	return nil
}

// runtimeRequest is what the driver reads from request.json.
type runtimeRequest struct {
	Packages     []string `json:"packages"`
	Dependencies []string `json:"dependencies"`
	Code         string   `json:"code"`
	IndexURL     string   `json:"index_url,omitempty"`
}

// runtimeResult is what the driver writes to result.json.
type runtimeResult struct {
	Phase Phase           `json:"phase"`
	Error string          `json:"error"`
	Value json.RawMessage `json:"value"`
}

func (e *Engine) launch(ctx context.Context, inv *invocation) error {
	deps := inv.req.Dependencies
	if deps == nil {
		deps = []string{}
	}
	reqJSON, err := json.Marshal(runtimeRequest{
		Packages:     inv.packages,
		Dependencies: deps,
		Code:         inv.req.Code,
		IndexURL:     e.cfg.IndexURL,
	})
	if err != nil {
		return fmt.Errorf("encoding runtime request: %w", err)
	}

	res, err := inv.session.Sandbox.Exec(ctx, sandbox.ExecOpts{
		Name:    inv.session.ID,
		Image:   e.cfg.Image,
		Command: []string{e.cfg.Interpreter, "-u", "-B", driverFile},
		Files: map[string][]byte{
			driverFile:  driverSource,
			requestFile: reqJSON,
		},
		Env:     map[string]string{"PYTHONIOENCODING": "utf-8"},
		Stdout:  inv.session.appendStdout,
		Stderr:  inv.session.appendStderr,
		Collect: []string{resultFile},
		Started: startedFile,
	})
	switch {
	case err == nil:
	case errors.Is(err, sandbox.ErrStart):
		return &BootstrapError{Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		msg := "execution deadline exceeded"
		if e.cfg.Timeout > 0 {
			msg = fmt.Sprintf("execution timed out after %s", e.cfg.Timeout)
		}
		return &RunError{Phase: PhaseExecute, Message: msg}
	case errors.Is(err, context.Canceled):
		return &RunError{Phase: PhaseExecute, Message: "execution cancelled"}
	default:
		return fmt.Errorf("running sandbox: %w", err)
	}

	data, ok := res.Files[resultFile]
	if !ok {
		return &RunError{
			Phase:   PhaseExecute,
			Message: fmt.Sprintf("runtime exited with status %d without reporting a result", res.ExitCode),
		}
	}

	var result runtimeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return &RunError{Phase: PhaseSerialize, Message: fmt.Sprintf("decoding runtime result: %v", err)}
	}
	if result.Error != "" {
		phase := result.Phase
		if phase == "" {
			phase = PhaseExecute
		}
		return &RunError{Phase: phase, Message: result.Error}
	}
	inv.value = result.Value
	return nil
}

func (e *Engine) serialize(_ context.Context, inv *invocation) error {
	rv, err := e.resolver.Encode(inv.value)
	if err != nil {
		return fmt.Errorf("serializing return value: %w", err)
	}
	inv.retval = rv
	return nil
}
