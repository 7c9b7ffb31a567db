package main

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/pyrun/internal/harness"
)

type stubRunner struct {
	req harness.Request
	out *harness.Outcome
}

func (s *stubRunner) Run(ctx context.Context, req harness.Request) (*harness.Outcome, error) {
	s.req = req
	return s.out, nil
}

func newTestMCPClient(t *testing.T, runner *stubRunner) *client.Client {
	t.Helper()
	c, err := client.NewInProcessClient(newMCPServer(runner, log.New(io.Discard)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	ctx := t.Context()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "test", Version: "0.0.0"},
		},
	}); err != nil {
		t.Fatal(err)
	}
	return c
}

func callText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestMCPListsRunCode(t *testing.T) {
	c := newTestMCPClient(t, &stubRunner{})

	res, err := c.ListTools(t.Context(), mcp.ListToolsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != "run_code" {
		t.Fatalf("tools = %+v", res.Tools)
	}
	if req := res.Tools[0].InputSchema.Required; len(req) != 1 || req[0] != "python_code" {
		t.Errorf("required = %v", req)
	}
}

func TestMCPRunCode(t *testing.T) {
	runner := &stubRunner{out: &harness.Outcome{Stdout: "hi\n", ReturnValue: "2"}}
	c := newTestMCPClient(t, runner)

	res, err := c.CallTool(t.Context(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "run_code",
			Arguments: map[string]any{
				"python_code":         "print('hi'); 1 + 1",
				"python_dependencies": []any{"numpy"},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", callText(t, res))
	}
	if got := callText(t, res); got != `{"stdout":"hi\n","stderr":"","returnValue":"2"}` {
		t.Errorf("text = %s", got)
	}
	if len(runner.req.Dependencies) != 1 || runner.req.Dependencies[0] != "numpy" {
		t.Errorf("request = %+v", runner.req)
	}
}

func TestMCPRunCodeFailure(t *testing.T) {
	runner := &stubRunner{out: &harness.Outcome{Err: &harness.RunError{Phase: harness.PhaseExecute, Message: "ZeroDivisionError"}}}
	c := newTestMCPClient(t, runner)

	res, err := c.CallTool(t.Context(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "run_code", Arguments: map[string]any{"python_code": "1/0"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || callText(t, res) != `{"error":"ZeroDivisionError"}` {
		t.Errorf("result = %+v", res)
	}
}
