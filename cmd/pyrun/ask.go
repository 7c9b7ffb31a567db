package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/agent"
	"github.com/michaelbrown/pyrun/internal/llm"
)

var modelFlag string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer questions with a chat model that can run Python",
	Long: `Ask a chat model a question. The model can call run_code to execute Python
in a fresh runtime and answer from the result.

With a question argument, ask prints the answer and exits. Without one it
starts an interactive session.

Examples:
  pyrun ask "how many days between 1970-01-01 and 2022-01-31?"
  pyrun ask --model gpt-4o-mini`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&modelFlag, "model", "", "Model to use (overrides config)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	model := cfg.LLM.Model
	if modelFlag != "" {
		model = modelFlag
	}
	client := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, model, logger.WithPrefix("llm"))
	a := agent.New(client, engine, cfg.LLM.MaxIterations)

	out := cmd.OutOrStdout()
	a.OnToolCall = func(name string, args map[string]any) {
		fmt.Fprintf(out, "\n  \033[33m⚡ %s\033[0m\n", agent.FormatToolCall(name, args))
	}
	a.OnToolResult = func(name string, result string) {
		printPreview(out, result, 8)
	}

	if len(args) > 0 {
		answer, err := a.Run(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
		return nil
	}
	return chatLoop(cmd.Context(), a, out, model)
}

// printPreview shows the first limit lines of a tool result.
func printPreview(w io.Writer, result string, limit int) {
	lines := strings.Split(strings.TrimSpace(result), "\n")
	preview := lines
	if len(preview) > limit {
		preview = preview[:limit]
	}
	for _, line := range preview {
		fmt.Fprintf(w, "  \033[90m│ %s\033[0m\n", line)
	}
	if len(lines) > limit {
		fmt.Fprintf(w, "  \033[90m│ ... (%d more lines)\033[0m\n", len(lines)-limit)
	}
	fmt.Fprintln(w)
}

func chatLoop(ctx context.Context, a *agent.Agent, out io.Writer, model string) error {
	fmt.Fprintf(out, "pyrun ask | model: %s\n", model)
	fmt.Fprintf(out, "Type /help for commands, /quit to exit\n\n")

	a.OnTextDelta = func(delta string) {
		fmt.Fprint(out, delta)
	}

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".pyrun", "ask_history")
		os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36myou>\033[0m ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the active request, not the session.
	var active interrupter
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			active.interrupt()
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := handleCommand(out, input, a); quit {
				return nil
			}
			continue
		}

		reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		active.set(cancel)

		fmt.Fprintf(out, "\n\033[32mpyrun>\033[0m ")
		_, err = a.RunStreaming(reqCtx, input)
		interrupted := reqCtx.Err() != nil
		active.set(nil)
		cancel()

		if err != nil {
			if interrupted {
				fmt.Fprintln(out, "\n(interrupted)")
				continue
			}
			fmt.Fprintf(out, "\n\033[31merror: %s\033[0m\n\n", err)
			continue
		}
		fmt.Fprintf(out, "\n\n")
	}
}

// interrupter holds the cancel func of the request in flight. The signal
// goroutine and the chat loop both touch it.
type interrupter struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (i *interrupter) set(cancel context.CancelFunc) {
	i.mu.Lock()
	i.cancel = cancel
	i.mu.Unlock()
}

// interrupt cancels the active request and reports whether there was one.
func (i *interrupter) interrupt() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel == nil {
		return false
	}
	i.cancel()
	return true
}

// handleCommand runs a slash command and reports whether the session should end.
func handleCommand(out io.Writer, input string, a *agent.Agent) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Fprintln(out, "Goodbye!")
		return true
	case "/reset":
		a.Reset()
		fmt.Fprintln(out, "Conversation reset.")
	case "/history":
		fmt.Fprintln(out, a.HistoryJSON())
	case "/help":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  /help     - Show this help")
		fmt.Fprintln(out, "  /reset    - Clear conversation history")
		fmt.Fprintln(out, "  /history  - Show raw conversation history (JSON)")
		fmt.Fprintln(out, "  /quit     - Exit")
	default:
		fmt.Fprintf(out, "Unknown command: %s (try /help)\n", input)
	}
	fmt.Fprintln(out)
	return false
}
