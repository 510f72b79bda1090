// Package agent runs the tool-dispatch loop: it sends the transcript to the
// model, executes every tool call the model asks for and feeds the results
// back until the model stops asking.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kindapat/kindapat/pkg/llm"
	loggerpkg "github.com/kindapat/kindapat/pkg/logger"
	"github.com/kindapat/kindapat/pkg/tools"
)

// DefaultMaxTokens is used when WithMaxTokens is not given.
const DefaultMaxTokens = 8192

// ErrMaxTurns is returned when a task is still calling tools after the
// configured number of model calls.
var ErrMaxTurns = errors.New("max turns reached before the task completed")

// Toolbox declares tools to the model and runs them. *tools.Registry
// implements it.
type Toolbox interface {
	Specs() []llm.ToolSpec
	Dispatch(ctx context.Context, name string, input json.RawMessage) string
}

var _ Toolbox = (*tools.Registry)(nil)

// Display shows the progress of a task.
type Display interface {
	Start()
	Text(text string)
	StreamText(delta string)
	EndStream()
	ToolCall(name string, input json.RawMessage)
	ToolResult(name, result string)
	Done()
}

type nopDisplay struct{}

func (nopDisplay) Start()                           {}
func (nopDisplay) Text(string)                      {}
func (nopDisplay) StreamText(string)                {}
func (nopDisplay) EndStream()                       {}
func (nopDisplay) ToolCall(string, json.RawMessage) {}
func (nopDisplay) ToolResult(string, string)        {}
func (nopDisplay) Done()                            {}

// AgentLoop holds the settings shared by every task. The transcript of a
// task lives only for the duration of Run.
type AgentLoop struct {
	model   llm.Model
	tools   Toolbox
	system  string
	display Display
	logger  loggerpkg.Logger

	maxTokens int64
	maxTurns  int
	stream    bool
}

// New builds an AgentLoop around model and toolbox.
func New(model llm.Model, toolbox Toolbox, systemPrompt string, opts ...AgentOption) (*AgentLoop, error) {
	if model == nil {
		return nil, errors.New("model is not set")
	}
	if toolbox == nil {
		return nil, errors.New("toolbox is not set")
	}
	deps := agentDeps{
		logger:    loggerpkg.NopLogger{},
		display:   nopDisplay{},
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}
	if deps.logger == nil {
		deps.logger = loggerpkg.NopLogger{}
	}
	if deps.display == nil {
		deps.display = nopDisplay{}
	}
	if deps.maxTokens <= 0 {
		deps.maxTokens = DefaultMaxTokens
	}
	if deps.maxTurns < 0 {
		deps.maxTurns = 0
	}

	return &AgentLoop{
		model:     model,
		tools:     toolbox,
		system:    systemPrompt,
		display:   deps.display,
		logger:    deps.logger,
		maxTokens: deps.maxTokens,
		maxTurns:  deps.maxTurns,
		stream:    deps.stream,
	}, nil
}

// NewRunID returns an identifier for one CLI task.
func NewRunID() string {
	return fmt.Sprintf("cli-%s", uuid.NewString()[:8])
}

// Run executes task until the model stops calling tools and returns the
// final transcript. On error the transcript built so far is returned too.
func (a *AgentLoop) Run(ctx context.Context, task string) (llm.Transcript, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, errors.New("task is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := loggerpkg.With(a.logger, loggerpkg.Fields{"run_id": NewRunID()})
	loggerpkg.Info(log, "agent run started", loggerpkg.Fields{"task_bytes": len(task), "max_turns": a.maxTurns})

	transcript := llm.Transcript{llm.UserText(task)}
	specs := a.tools.Specs()
	a.display.Start()

	for turn := 1; a.maxTurns == 0 || turn <= a.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return transcript, err
		}
		if err := transcript.Validate(); err != nil {
			return transcript, fmt.Errorf("invalid transcript: %w", err)
		}

		loggerpkg.Debug(log, "model call", loggerpkg.Fields{"turn": turn, "turns_in_transcript": len(transcript)})
		resp, err := a.complete(ctx, llm.Request{
			System:    a.system,
			Tools:     specs,
			Messages:  transcript,
			MaxTokens: a.maxTokens,
		})
		if err != nil {
			loggerpkg.Error(log, "model call failed", loggerpkg.Fields{"turn": turn, "error": err.Error()})
			return transcript, fmt.Errorf("model call: %w", err)
		}
		loggerpkg.Debug(log, "model response", loggerpkg.Fields{
			"turn":          turn,
			"stop_reason":   resp.StopReason,
			"blocks":        len(resp.Blocks),
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		})

		var hasToolUse bool
		transcript, hasToolUse = a.applyResponse(ctx, log, transcript, resp)

		if !hasToolUse || resp.StopReason == llm.StopEndTurn {
			loggerpkg.Info(log, "agent run finished", loggerpkg.Fields{"turns": turn, "stop_reason": resp.StopReason})
			a.display.Done()
			return transcript, nil
		}
	}

	loggerpkg.Warn(log, "agent run stopped", loggerpkg.Fields{"max_turns": a.maxTurns})
	return transcript, fmt.Errorf("%w (%d)", ErrMaxTurns, a.maxTurns)
}

// applyResponse walks the response blocks in order. Every tool call is run
// immediately and recorded as an assistant turn ending in that call followed
// by a user turn holding its result.
func (a *AgentLoop) applyResponse(ctx context.Context, log loggerpkg.Logger, transcript llm.Transcript, resp llm.Response) (llm.Transcript, bool) {
	var pending []llm.Block
	hasToolUse := false

	for _, block := range resp.Blocks {
		switch block.Type {
		case llm.BlockText:
			if block.Text == "" {
				continue
			}
			if !a.stream {
				a.display.Text(block.Text)
			}
			pending = append(pending, block)
		case llm.BlockToolUse:
			hasToolUse = true
			a.display.ToolCall(block.Name, block.Input)
			result := a.tools.Dispatch(ctx, block.Name, block.Input)
			a.display.ToolResult(block.Name, result)
			loggerpkg.Debug(log, "tool call", loggerpkg.Fields{
				"tool":         block.Name,
				"tool_use_id":  block.ID,
				"error":        tools.IsFailure(result),
				"result_bytes": len(result),
			})

			pending = append(pending, block)
			transcript = append(transcript,
				llm.Turn{Role: llm.RoleAssistant, Blocks: pending},
				llm.Turn{Role: llm.RoleUser, Blocks: []llm.Block{
					llm.ToolResultBlock(block.ID, result, tools.IsFailure(result)),
				}},
			)
			pending = nil
		}
	}

	if len(pending) > 0 {
		if !hasToolUse || resp.StopReason == llm.StopEndTurn {
			transcript = append(transcript, llm.Turn{Role: llm.RoleAssistant, Blocks: pending})
		} else {
			// The next request must end with the tool results.
			loggerpkg.Debug(log, "dropping text after last tool call", loggerpkg.Fields{"blocks": len(pending)})
		}
	}
	return transcript, hasToolUse
}

func (a *AgentLoop) complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if !a.stream {
		return a.model.Complete(ctx, req)
	}
	streamed := false
	resp, err := a.model.Stream(ctx, req, func(delta string) {
		streamed = true
		a.display.StreamText(delta)
	})
	if streamed {
		a.display.EndStream()
	}
	return resp, err
}
