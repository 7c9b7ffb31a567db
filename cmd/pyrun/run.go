package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/harness"
)

var requestFileFlag string

var runCmd = &cobra.Command{
	Use:   "run <dependencies> <code>",
	Short: "Run one piece of code and print its outcome",
	Long: `Run executes code in a fresh runtime and prints exactly one line: the output
marker followed by the JSON outcome.

The dependencies argument is a list literal of requirement strings. An empty
string means no extra packages.

Examples:
  pyrun run "[]" "1 + 1"
  pyrun run "['numpy']" "import numpy as np; np.arange(4).reshape(2, 2)"
  pyrun run --file request.yaml`,
	Args: func(cmd *cobra.Command, args []string) error {
		if requestFileFlag != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&requestFileFlag, "file", "f", "", "Read the request from a YAML or JSON file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	var req harness.Request
	if requestFileFlag != "" {
		req, err = harness.LoadRequestFile(requestFileFlag)
	} else {
		req, err = harness.NewRequest(args[0], args[1])
	}

	var out *harness.Outcome
	if err != nil {
		// A malformed request is reported like any other failed run.
		out = &harness.Outcome{Err: &harness.RunError{Phase: harness.PhaseInstall, Message: err.Error()}}
	} else {
		out, err = engine.Run(cmd.Context(), req)
		if err != nil {
			var bootErr *harness.BootstrapError
			if errors.As(err, &bootErr) {
				return &exitError{code: 2, err: err}
			}
			return err
		}
	}

	if err := harness.WriteOutcome(cmd.OutOrStdout(), cfg.Output.Marker, out); err != nil {
		return fmt.Errorf("writing outcome: %w", err)
	}
	return nil
}
