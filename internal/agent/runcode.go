package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/michaelbrown/pyrun/internal/harness"
	"github.com/michaelbrown/pyrun/internal/llm"
)

// Runner executes one request in a fresh runtime.
type Runner interface {
	Run(ctx context.Context, req harness.Request) (*harness.Outcome, error)
}

const (
	RunCodeTool = "run_code"

	RunCodeDescription = "Use this tool to run python code to answer any quantitative, temporal or numerical questions. " +
		"Returns an object with stdout, stderr, and the return value of the code, which is the value of its last expression. " +
		"On failure the object holds only an error message."
)

// RunCodeParameters is the JSON Schema of the run_code arguments.
func RunCodeParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"python_code": map[string]any{
				"type":        "string",
				"description": "The python code to run",
			},
			"python_dependencies": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "The python dependencies to install before running the code",
			},
		},
		"required": []string{"python_code"},
	}
}

// RunCodeToolDef is the run_code tool as offered to a chat model.
func RunCodeToolDef() llm.ToolDef {
	return llm.ToolDef{
		Name:        RunCodeTool,
		Description: RunCodeDescription,
		Parameters:  RunCodeParameters(),
	}
}

// RequestFromArgs builds a request from decoded run_code arguments.
func RequestFromArgs(args map[string]any) (harness.Request, error) {
	code, ok := args["python_code"].(string)
	if !ok {
		return harness.Request{}, fmt.Errorf("'python_code' argument must be a string")
	}

	var deps []string
	switch v := args["python_dependencies"].(type) {
	case nil:
	case []any:
		for _, d := range v {
			s, ok := d.(string)
			if !ok {
				return harness.Request{}, fmt.Errorf("'python_dependencies' must be a list of strings")
			}
			deps = append(deps, s)
		}
	case []string:
		deps = v
	case string:
		return harness.NewRequest(v, code)
	default:
		return harness.Request{}, fmt.Errorf("'python_dependencies' must be a list of strings")
	}
	return harness.NewRequestList(deps, code)
}

// RunCode executes a run_code call and returns the outcome as JSON text.
// Failures that produce no outcome are reported as an error string.
func RunCode(ctx context.Context, runner Runner, args map[string]any) (string, bool) {
	req, err := RequestFromArgs(args)
	if err != nil {
		return "error: " + err.Error(), true
	}
	out, err := runner.Run(ctx, req)
	if err != nil {
		return "error running code: " + err.Error(), true
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "error running code: " + err.Error(), true
	}
	return string(data), out.Failed()
}
