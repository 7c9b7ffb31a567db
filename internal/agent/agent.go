package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/michaelbrown/pyrun/internal/llm"
)

const defaultSystemPrompt = `You are a helpful assistant that answers questions precisely.
For anything quantitative, temporal or numerical, write python code and execute it with the run_code tool
instead of working it out yourself. Install any third-party packages you import through python_dependencies.
After running code, answer from its output.`

// maxResultLen bounds tool output kept in history.
const maxResultLen = 8000

// Agent manages a conversation and executes the ReAct loop.
type Agent struct {
	llm          llm.Client
	runner       Runner
	history      []llm.Message
	tools        []llm.ToolDef
	maxIter      int
	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result string)
	OnTextDelta  func(delta string)
}

// New creates an Agent that can execute python through runner.
func New(client llm.Client, runner Runner, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Agent{
		llm:     client,
		runner:  runner,
		maxIter: maxIterations,
		tools:   []llm.ToolDef{RunCodeToolDef()},
		history: []llm.Message{
			llm.SystemMessage(defaultSystemPrompt),
		},
	}
}

// SetSystemPrompt overrides the default system prompt.
func (a *Agent) SetSystemPrompt(prompt string) {
	if prompt != "" {
		a.history[0] = llm.SystemMessage(prompt)
	}
}

// Run sends a user message and executes the full ReAct loop, returning the
// final assistant text.
func (a *Agent) Run(ctx context.Context, userMessage string) (string, error) {
	return a.loop(ctx, userMessage, func(ctx context.Context) (*llm.Response, error) {
		return a.llm.ChatCompletion(ctx, a.history, a.tools)
	})
}

// RunStreaming is like Run but streams text through OnTextDelta.
func (a *Agent) RunStreaming(ctx context.Context, userMessage string) (string, error) {
	return a.loop(ctx, userMessage, func(ctx context.Context) (*llm.Response, error) {
		return a.llm.ChatCompletionStream(ctx, a.history, a.tools, a.OnTextDelta)
	})
}

func (a *Agent) loop(ctx context.Context, userMessage string, call func(context.Context) (*llm.Response, error)) (string, error) {
	a.history = append(a.history, llm.UserMessage(userMessage))

	for i := 0; i < a.maxIter; i++ {
		resp, err := call(ctx)
		if err != nil {
			return "", fmt.Errorf("llm call (iteration %d): %w", i+1, err)
		}

		a.history = append(a.history, resp.Message)
		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		for _, tc := range resp.Message.ToolCalls {
			if a.OnToolCall != nil {
				a.OnToolCall(tc.Name, tc.Args)
			}

			result := a.executeTool(ctx, tc)

			if a.OnToolResult != nil {
				a.OnToolResult(tc.Name, result)
			}
			a.history = append(a.history, llm.ToolResultMessage(tc.ID, result))
		}
	}

	return "", fmt.Errorf("agent reached max iterations (%d) without a final response", a.maxIter)
}

func (a *Agent) executeTool(ctx context.Context, tc llm.ToolCall) string {
	if tc.Name != RunCodeTool {
		return fmt.Sprintf("error: unknown tool %q", tc.Name)
	}
	result, _ := RunCode(ctx, a.runner, tc.Args)
	if len(result) > maxResultLen {
		result = result[:maxResultLen] + "\n... (output truncated)"
	}
	return result
}

// History returns the current conversation history.
func (a *Agent) History() []llm.Message {
	return a.history
}

// HistoryJSON returns the conversation as formatted JSON.
func (a *Agent) HistoryJSON() string {
	data, _ := json.MarshalIndent(a.history, "", "  ")
	return string(data)
}

// Reset clears conversation history, keeping the system prompt.
func (a *Agent) Reset() {
	a.history = a.history[:1]
}

// FormatToolCall returns a one-line rendering of a tool call with its
// arguments in key order.
func FormatToolCall(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, args[k])
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
