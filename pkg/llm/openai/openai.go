// Package openai implements llm.Model on top of an OpenAI-compatible Chat
// Completions endpoint.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kindapat/kindapat/pkg/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Options configures the adapter.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Model talks to the Chat Completions API.
type Model struct {
	client openai.Client
	model  string
}

// New builds a Model. Extra request options are appended after the ones
// derived from opts.
func New(opts Options, extra ...option.RequestOption) *Model {
	clientOpts := []option.RequestOption{}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	clientOpts = append(clientOpts, extra...)

	name := opts.Model
	if name == "" {
		name = DefaultModel
	}
	return &Model{client: openai.NewClient(clientOpts...), model: name}
}

// Complete implements llm.Model.
func (m *Model) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	completion, err := m.client.Chat.Completions.New(ctx, m.buildParams(req))
	if err != nil {
		return llm.Response{}, wrapError(err)
	}
	if len(completion.Choices) == 0 {
		return llm.Response{}, errors.New("openai: empty completion choices")
	}
	choice := completion.Choices[0]
	resp := fromMessage(choice.Message, choice.FinishReason)
	resp.Usage = llm.Usage{
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}
	return resp, nil
}

// Stream implements llm.Model.
func (m *Model) Stream(ctx context.Context, req llm.Request, onText func(string)) (llm.Response, error) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, m.buildParams(req))
	defer func() { _ = stream.Close() }()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		if !acc.AddChunk(chunk) {
			return llm.Response{}, errors.New("openai: failed to accumulate stream")
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && onText != nil {
			onText(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return llm.Response{}, wrapError(err)
	}
	if len(acc.Choices) == 0 {
		return llm.Response{}, errors.New("openai: empty streamed completion choices")
	}
	choice := acc.Choices[0]
	resp := fromMessage(choice.Message, choice.FinishReason)
	resp.Usage = llm.Usage{
		InputTokens:  acc.Usage.PromptTokens,
		OutputTokens: acc.Usage.CompletionTokens,
	}
	return resp, nil
}

func (m *Model) buildParams(req llm.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.model),
		Messages: toMessages(req.System, req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		params.Tools = toTools(req.Tools)
	}
	return params
}

func toMessages(system string, transcript llm.Transcript) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, turn := range transcript {
		if turn.Role == llm.RoleAssistant {
			out = append(out, assistantMessage(turn))
			continue
		}
		// Tool results answer the previous assistant message and must come
		// before any new user text.
		for _, b := range turn.Blocks {
			if b.Type == llm.BlockToolResult {
				out = append(out, openai.ToolMessage(b.Content, b.ToolUseID))
			}
		}
		if text := turn.Text(); text != "" {
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}

func assistantMessage(turn llm.Turn) openai.ChatCompletionMessageParamUnion {
	msg := openai.ChatCompletionAssistantMessageParam{}
	if text := turn.Text(); text != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
	}
	for _, use := range turn.ToolUses() {
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: use.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      use.Name,
				Arguments: string(use.Input),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func toTools(specs []llm.ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(spec.Schema()),
			},
		})
	}
	return out
}

func fromMessage(msg openai.ChatCompletionMessage, finishReason string) llm.Response {
	resp := llm.Response{StopReason: stopReason(finishReason)}
	if msg.Content != "" {
		resp.Blocks = append(resp.Blocks, llm.TextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		args := strings.TrimSpace(call.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		resp.Blocks = append(resp.Blocks, llm.ToolUseBlock(call.ID, call.Function.Name, json.RawMessage(args)))
	}
	if len(msg.ToolCalls) > 0 && resp.StopReason == llm.StopEndTurn {
		// Some compatible servers report "stop" alongside tool calls.
		resp.StopReason = llm.StopToolUse
	}
	return resp
}

func stopReason(finishReason string) llm.StopReason {
	switch finishReason {
	case "stop", "content_filter":
		return llm.StopEndTurn
	case "tool_calls", "function_call":
		return llm.StopToolUse
	case "length":
		return llm.StopMaxTokens
	default:
		return llm.StopUnrecognized
	}
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %w", llm.ErrAuthentication, err)
		}
	}
	return fmt.Errorf("openai: %w", err)
}
