// Package anthropic implements llm.Model on top of the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kindapat/kindapat/pkg/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// Options configures the adapter.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Model talks to the Messages API.
type Model struct {
	client anthropic.Client
	model  anthropic.Model
}

// New builds a Model. Extra request options are appended after the ones
// derived from opts.
func New(opts Options, extra ...option.RequestOption) *Model {
	clientOpts := []option.RequestOption{}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	clientOpts = append(clientOpts, extra...)

	name := opts.Model
	if name == "" {
		name = DefaultModel
	}
	return &Model{
		client: anthropic.NewClient(clientOpts...),
		model:  anthropic.Model(name),
	}
}

// Complete implements llm.Model.
func (m *Model) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params := m.buildParams(req)
	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, wrapError(err)
	}
	return fromMessage(msg), nil
}

// Stream implements llm.Model.
func (m *Model) Stream(ctx context.Context, req llm.Request, onText func(string)) (llm.Response, error) {
	params := m.buildParams(req)
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return llm.Response{}, fmt.Errorf("accumulate stream: %w", err)
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if onText != nil && delta.Text != "" {
					onText(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return llm.Response{}, wrapError(err)
	}
	return fromMessage(&msg), nil
}

func (m *Model) buildParams(req llm.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: req.MaxTokens,
		Messages:  toMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toTools(req.Tools)
	}
	return params
}

func toMessages(transcript llm.Transcript) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(transcript))
	for _, turn := range transcript {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Blocks))
		for _, b := range turn.Blocks {
			switch b.Type {
			case llm.BlockText:
				if b.Text == "" {
					continue
				}
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case llm.BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, b.Input, b.Name))
			case llm.BlockToolResult:
				blocks = append(blocks, toolResultBlock(b))
			}
		}
		if turn.Role == llm.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// toolResultBlock leaves the content out for an empty result; the API
// rejects empty text blocks.
func toolResultBlock(b llm.Block) anthropic.ContentBlockParamUnion {
	if b.Content != "" {
		return anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError)
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &anthropic.ToolResultBlockParam{
		ToolUseID: b.ToolUseID,
		IsError:   anthropic.Bool(b.IsError),
	}}
}

func toTools(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		tool := anthropic.ToolParam{
			Name: spec.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: spec.Properties(),
				Required:   spec.Required(),
			},
		}
		if spec.Description != "" {
			tool.Description = anthropic.String(spec.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func fromMessage(msg *anthropic.Message) llm.Response {
	resp := llm.Response{
		StopReason: llm.StopReason(msg.StopReason),
		Usage: llm.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Blocks = append(resp.Blocks, llm.TextBlock(block.Text))
		case "tool_use":
			resp.Blocks = append(resp.Blocks, llm.ToolUseBlock(block.ID, block.Name, json.RawMessage(block.Input)))
		}
	}
	return resp
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %w", llm.ErrAuthentication, err)
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}
