package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/agent"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the run_code tool over MCP on stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing one tool,
run_code(python_code, python_dependencies). Each call runs in a fresh runtime
and returns the JSON outcome.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	return server.ServeStdio(newMCPServer(engine, logger.WithPrefix("mcp")))
}

func newMCPServer(runner agent.Runner, logger *log.Logger) *server.MCPServer {
	s := server.NewMCPServer("pyrun", "0.1.0")
	s.AddTool(runCodeMCPTool(), runCodeHandler(runner, logger))
	return s
}

func runCodeMCPTool() mcp.Tool {
	params := agent.RunCodeParameters()
	return mcp.Tool{
		Name:        agent.RunCodeTool,
		Description: agent.RunCodeDescription,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: params["properties"].(map[string]any),
			Required:   params["required"].([]string),
		},
	}
}

func runCodeHandler(runner agent.Runner, logger *log.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		if args == nil {
			return toolResult("error: invalid arguments", true), nil
		}

		text, failed := agent.RunCode(ctx, runner, args)
		logger.Debug("ran code", "failed", failed)
		return toolResult(text, failed), nil
	}
}

func toolResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: isError,
	}
}
