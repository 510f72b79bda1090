package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindapat/kindapat/pkg/llm"
	"github.com/kindapat/kindapat/pkg/tools"
)

// scriptedModel replays canned responses and records every request.
type scriptedModel struct {
	responses []llm.Response
	err       error
	requests  []llm.Request
	streamed  int
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	// Copy the transcript so later appends by the loop are not observed.
	req.Messages = append(llm.Transcript(nil), req.Messages...)
	m.requests = append(m.requests, req)
	if m.err != nil {
		return llm.Response{}, m.err
	}
	if len(m.requests) > len(m.responses) {
		return llm.Response{}, fmt.Errorf("unexpected model call %d", len(m.requests))
	}
	return m.responses[len(m.requests)-1], nil
}

func (m *scriptedModel) Stream(ctx context.Context, req llm.Request, onText func(string)) (llm.Response, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	m.streamed++
	for _, b := range resp.Blocks {
		if b.Type == llm.BlockText {
			onText(b.Text)
		}
	}
	return resp, nil
}

// recordingDisplay captures display events as short strings.
type recordingDisplay struct {
	events []string
}

func (d *recordingDisplay) Start()                  { d.events = append(d.events, "start") }
func (d *recordingDisplay) Text(text string)        { d.events = append(d.events, "text:"+text) }
func (d *recordingDisplay) StreamText(delta string) { d.events = append(d.events, "delta:"+delta) }
func (d *recordingDisplay) EndStream()              { d.events = append(d.events, "end_stream") }
func (d *recordingDisplay) ToolCall(name string, _ json.RawMessage) {
	d.events = append(d.events, "call:"+name)
}
func (d *recordingDisplay) ToolResult(name, result string) {
	d.events = append(d.events, "result:"+name+":"+result)
}
func (d *recordingDisplay) Done() { d.events = append(d.events, "done") }

// stubToolbox answers every call with a fixed result.
type stubToolbox struct {
	calls []string
}

func (s *stubToolbox) Specs() []llm.ToolSpec {
	return []llm.ToolSpec{{Name: "echo", Parameters: []llm.Parameter{{Name: "v", Type: "string", Required: true}}}}
}

func (s *stubToolbox) Dispatch(_ context.Context, name string, _ json.RawMessage) string {
	s.calls = append(s.calls, name)
	return "ok:" + name
}

func toolUse(id, name, input string) llm.Block {
	return llm.ToolUseBlock(id, name, json.RawMessage(input))
}

func TestRunReadsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	input, err := json.Marshal(map[string]string{"path": path})
	require.NoError(t, err)

	model := &scriptedModel{responses: []llm.Response{
		{Blocks: []llm.Block{llm.ToolUseBlock("toolu_1", string(tools.ReadFile), input)}, StopReason: llm.StopToolUse},
		{Blocks: []llm.Block{llm.TextBlock("It is empty.")}, StopReason: llm.StopEndTurn},
	}}
	loop, err := New(model, tools.New(tools.Context{}), "system prompt")
	require.NoError(t, err)

	transcript, err := loop.Run(context.Background(), "read empty.txt")
	require.NoError(t, err)

	require.Len(t, model.requests, 2)
	result := model.requests[1].Messages[2].Blocks[0]
	assert.Equal(t, llm.BlockToolResult, result.Type)
	assert.Equal(t, "", result.Content)
	assert.False(t, result.IsError)
	assert.Equal(t, "It is empty.", transcript[len(transcript)-1].Text())
}

func TestRunReadFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello from disk"), 0o644))

	input, err := json.Marshal(map[string]string{"path": path})
	require.NoError(t, err)

	model := &scriptedModel{responses: []llm.Response{
		{
			Blocks:     []llm.Block{llm.TextBlock("Let me read it."), llm.ToolUseBlock("toolu_1", string(tools.ReadFile), input)},
			StopReason: llm.StopToolUse,
		},
		{
			Blocks:     []llm.Block{llm.TextBlock("The file says hello.")},
			StopReason: llm.StopEndTurn,
		},
	}}
	display := &recordingDisplay{}
	loop, err := New(model, tools.New(tools.Context{}), "system prompt", WithDisplay(display))
	require.NoError(t, err)

	transcript, err := loop.Run(context.Background(), "read hello.txt")
	require.NoError(t, err)

	require.Len(t, model.requests, 2)
	assert.Equal(t, "system prompt", model.requests[0].System)
	assert.Len(t, model.requests[0].Tools, len(tools.Names))
	assert.Equal(t, int64(DefaultMaxTokens), model.requests[0].MaxTokens)

	// Second call sees: task, assistant(text + tool_use), user(tool_result).
	second := model.requests[1].Messages
	require.Len(t, second, 3)
	require.NoError(t, second.Validate())
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	assert.Len(t, second[1].ToolUses(), 1)
	require.Len(t, second[2].Blocks, 1)
	result := second[2].Blocks[0]
	assert.Equal(t, llm.BlockToolResult, result.Type)
	assert.Equal(t, "toolu_1", result.ToolUseID)
	assert.Equal(t, "hello from disk", result.Content)
	assert.False(t, result.IsError)

	require.Len(t, transcript, 4)
	assert.Equal(t, "The file says hello.", transcript[3].Text())
	require.NoError(t, transcript.Validate())

	assert.Equal(t, []string{
		"start",
		"text:Let me read it.",
		"call:read_file",
		"result:read_file:hello from disk",
		"text:The file says hello.",
		"done",
	}, display.events)
}

func TestRunPairsEveryToolUse(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{
		{
			Blocks: []llm.Block{
				toolUse("a", "echo", `{"v":"1"}`),
				llm.TextBlock("and another"),
				toolUse("b", "echo", `{"v":"2"}`),
			},
			StopReason: llm.StopToolUse,
		},
		{Blocks: []llm.Block{llm.TextBlock("done")}, StopReason: llm.StopEndTurn},
	}}
	box := &stubToolbox{}
	loop, err := New(model, box, "")
	require.NoError(t, err)

	transcript, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "echo"}, box.calls)

	// user, asst(a), user(a), asst(text, b), user(b), asst(done)
	require.Len(t, transcript, 6)
	require.NoError(t, transcript.Validate())
	assert.Equal(t, "a", transcript[2].Blocks[0].ToolUseID)
	assert.Equal(t, "and another", transcript[3].Text())
	assert.Equal(t, "b", transcript[4].Blocks[0].ToolUseID)
}

func TestRunStopsOnEndTurnWithToolUse(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{
		{
			Blocks:     []llm.Block{toolUse("a", "echo", `{}`), llm.TextBlock("wrapping up")},
			StopReason: llm.StopEndTurn,
		},
	}}
	box := &stubToolbox{}
	loop, err := New(model, box, "")
	require.NoError(t, err)

	transcript, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Len(t, model.requests, 1)
	assert.Len(t, box.calls, 1)
	require.Len(t, transcript, 4)
	assert.Equal(t, "wrapping up", transcript[3].Text())
}

func TestRunDropsTextAfterLastToolCall(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{
		{
			Blocks:     []llm.Block{toolUse("a", "echo", `{}`), llm.TextBlock("thinking aloud")},
			StopReason: llm.StopToolUse,
		},
		{Blocks: []llm.Block{llm.TextBlock("finished")}, StopReason: llm.StopEndTurn},
	}}
	loop, err := New(model, &stubToolbox{}, "")
	require.NoError(t, err)

	_, err = loop.Run(context.Background(), "go")
	require.NoError(t, err)

	second := model.requests[1].Messages
	last, ok := second.Last()
	require.True(t, ok)
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, llm.BlockToolResult, last.Blocks[0].Type)
}

func TestRunUnknownToolFeedsErrorBack(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{
		{Blocks: []llm.Block{toolUse("x", "launch_rockets", `{}`)}, StopReason: llm.StopToolUse},
		{Blocks: []llm.Block{llm.TextBlock("sorry")}, StopReason: llm.StopEndTurn},
	}}
	loop, err := New(model, tools.New(tools.Context{}), "")
	require.NoError(t, err)

	transcript, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	result := transcript[2].Blocks[0]
	assert.Equal(t, "Error: Unknown tool: launch_rockets", result.Content)
	assert.True(t, result.IsError)
}

func TestRunMaxTurns(t *testing.T) {
	looping := llm.Response{Blocks: []llm.Block{toolUse("a", "echo", `{}`)}, StopReason: llm.StopToolUse}
	model := &scriptedModel{responses: []llm.Response{looping, looping, looping, looping}}
	loop, err := New(model, &stubToolbox{}, "", WithMaxTurns(3))
	require.NoError(t, err)

	transcript, err := loop.Run(context.Background(), "go")
	require.ErrorIs(t, err, ErrMaxTurns)
	assert.Len(t, model.requests, 3)
	assert.Len(t, transcript, 7)
	assert.NoError(t, transcript.Validate())
}

func TestRunModelError(t *testing.T) {
	model := &scriptedModel{err: fmt.Errorf("%w: 401", llm.ErrAuthentication)}
	display := &recordingDisplay{}
	loop, err := New(model, &stubToolbox{}, "", WithDisplay(display))
	require.NoError(t, err)

	transcript, err := loop.Run(context.Background(), "go")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrAuthentication))
	assert.Len(t, transcript, 1)
	assert.NotContains(t, display.events, "done")
}

func TestRunStreaming(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{
		{Blocks: []llm.Block{llm.TextBlock("streamed reply")}, StopReason: llm.StopEndTurn},
	}}
	display := &recordingDisplay{}
	loop, err := New(model, &stubToolbox{}, "", WithDisplay(display), WithStreaming(true), WithMaxTokens(100))
	require.NoError(t, err)

	_, err = loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, 1, model.streamed)
	assert.Equal(t, int64(100), model.requests[0].MaxTokens)
	assert.Equal(t, []string{"start", "delta:streamed reply", "end_stream", "done"}, display.events)
}

func TestRunCancelledContext(t *testing.T) {
	model := &scriptedModel{}
	loop, err := New(model, &stubToolbox{}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loop.Run(ctx, "go")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.requests)
}

func TestRunRequiresTask(t *testing.T) {
	loop, err := New(&scriptedModel{}, &stubToolbox{}, "")
	require.NoError(t, err)
	_, err = loop.Run(context.Background(), "   ")
	require.Error(t, err)
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(nil, &stubToolbox{}, "")
	require.Error(t, err)
	_, err = New(&scriptedModel{}, nil, "")
	require.Error(t, err)
}

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	assert.True(t, strings.HasPrefix(id, "cli-"))
	assert.Len(t, id, len("cli-")+8)
	assert.NotEqual(t, id, NewRunID())
}
