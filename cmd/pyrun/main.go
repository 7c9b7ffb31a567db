package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/config"
	"github.com/michaelbrown/pyrun/internal/encode"
	"github.com/michaelbrown/pyrun/internal/harness"
	"github.com/michaelbrown/pyrun/internal/sandbox"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "pyrun",
	Short: "pyrun - run untrusted Python in a throwaway runtime",
	Long: `pyrun executes a snippet of Python in a fresh, isolated runtime, installs the
packages it asks for, and reports stdout, stderr and the value of the last
expression as one JSON line.

It can also serve the same operation over HTTP, as an MCP tool, or to a chat
model that answers questions by writing code.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./pyrun.yaml or $HOME/.pyrun/pyrun.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// setup loads configuration and builds the logger every command shares.
func setup() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "pyrun",
		ReportTimestamp: true,
		Level:           lvl,
	})
	return cfg, logger, nil
}

// newEngine builds an engine on the configured runtime kind.
func newEngine(cfg *config.Config, logger *log.Logger) (*harness.Engine, error) {
	var sb sandbox.Sandbox
	switch cfg.Runtime.Kind {
	case "docker", "":
		sb = sandbox.NewDockerSandbox(cfg.Policy(), logger.WithPrefix("docker"))
	case "process":
		sb = sandbox.NewProcessSandbox(logger.WithPrefix("process"))
	default:
		return nil, fmt.Errorf("unknown runtime kind %q (want docker or process)", cfg.Runtime.Kind)
	}
	return harness.New(cfg.Engine(), sb, encode.DefaultResolver(), logger), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	os.Exit(1)
}
