package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
)

// Client is the interface for LLM interactions.
type Client interface {
	ChatCompletion(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error)
	ChatCompletionStream(ctx context.Context, messages []Message, tools []ToolDef, handler StreamHandler) (*Response, error)
}

const maxAttempts = 3

// OpenAICompatClient talks to any OpenAI-compatible chat completions API.
type OpenAICompatClient struct {
	client *openai.Client
	model  string
	logger *log.Logger
}

func NewClient(baseURL, apiKey, model string, logger *log.Logger) *OpenAICompatClient {
	if logger == nil {
		logger = log.Default()
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &OpenAICompatClient{
		client: &client,
		model:  model,
		logger: logger.With("model", model),
	}
}

func (c *OpenAICompatClient) params(messages []Message, tools []ToolDef) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}
	return params
}

// backoff waits before the next attempt when err is a rate limit. It
// returns err unchanged when no retry should happen.
func (c *OpenAICompatClient) backoff(ctx context.Context, attempt int, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests || attempt == maxAttempts-1 {
		return err
	}
	wait := time.Duration(2<<attempt) * time.Second // 2s, 4s
	c.logger.Warn("rate limited, retrying", "wait", wait)
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *OpenAICompatClient) ChatCompletion(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error) {
	params := c.params(messages, tools)

	var completion *openai.ChatCompletion
	var err error
	for attempt := range maxAttempts {
		completion, err = c.client.Chat.Completions.New(ctx, params)
		if err == nil {
			break
		}
		if err = c.backoff(ctx, attempt, err); err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	return toResponse(completion.Choices[0].Message), nil
}

// ChatCompletionStream is like ChatCompletion but passes text deltas to
// handler while the response arrives.
func (c *OpenAICompatClient) ChatCompletionStream(ctx context.Context, messages []Message, tools []ToolDef, handler StreamHandler) (*Response, error) {
	params := c.params(messages, tools)

	var stream *ssestream.Stream[openai.ChatCompletionChunk]
	for attempt := range maxAttempts {
		stream = c.client.Chat.Completions.NewStreaming(ctx, params)
		err := stream.Err()
		if err == nil {
			break
		}
		stream.Close()
		if err = c.backoff(ctx, attempt, err); err != nil {
			return nil, fmt.Errorf("chat completion stream: %w", err)
		}
	}
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && handler != nil {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				handler(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("streaming: %w", err)
	}

	if len(acc.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	return toResponse(acc.Choices[0].Message), nil
}

func toResponse(msg openai.ChatCompletionMessage) *Response {
	resp := &Response{
		Message: Message{
			Role:    RoleAssistant,
			Content: msg.Content,
		},
	}
	for _, tc := range msg.ToolCalls {
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: decodeArgs(tc.Function.Arguments),
		})
	}
	return resp
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				}
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if m.Content != "" {
				assistant.Content.OfString = param.NewOpt(m.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func convertTools(tools []ToolDef) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}
