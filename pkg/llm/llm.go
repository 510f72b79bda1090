// Package llm defines the provider-neutral transcript and model interface
// shared by the chat session and the agent loop.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAuthentication marks a model call rejected because of a missing or
// invalid credential.
var ErrAuthentication = errors.New("authentication failed")

// Role is the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags the content carried by a Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// StopReason is the model's signal for why generation ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopSequence     StopReason = "stop_sequence"
	StopUnrecognized StopReason = ""
)

// Block is one typed piece of turn content. Which fields are meaningful
// depends on Type.
type Block struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock builds a text block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool call block. A nil input is sent as an empty object.
func ToolUseBlock(id, name string, input json.RawMessage) Block {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds the result block answering the tool call with id toolUseID.
func ToolResultBlock(toolUseID, content string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Turn is one role-attributed entry in a transcript.
type Turn struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"content"`
}

// UserText returns a user turn holding plain text.
func UserText(text string) Turn {
	return Turn{Role: RoleUser, Blocks: []Block{TextBlock(text)}}
}

// AssistantText returns an assistant turn holding plain text.
func AssistantText(text string) Turn {
	return Turn{Role: RoleAssistant, Blocks: []Block{TextBlock(text)}}
}

// Text concatenates the text blocks of the turn.
func (t Turn) Text() string {
	return joinText(t.Blocks)
}

// ToolUses returns the tool_use blocks of the turn in order.
func (t Turn) ToolUses() []Block {
	return filterBlocks(t.Blocks, BlockToolUse)
}

// Transcript is the ordered turn history of one task or conversation.
type Transcript []Turn

// Validate checks that every tool_use block is answered by exactly one
// tool_result in the user turn that immediately follows it, and that no
// tool_result appears without a matching call.
func (t Transcript) Validate() error {
	for i, turn := range t {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return fmt.Errorf("turn %d: invalid role %q", i, turn.Role)
		}
		uses := turn.ToolUses()
		if turn.Role == RoleUser && len(uses) > 0 {
			return fmt.Errorf("turn %d: tool_use block in user turn", i)
		}
		if turn.Role == RoleAssistant && len(filterBlocks(turn.Blocks, BlockToolResult)) > 0 {
			return fmt.Errorf("turn %d: tool_result block in assistant turn", i)
		}
		if len(uses) == 0 {
			continue
		}
		if i+1 >= len(t) || t[i+1].Role != RoleUser {
			return fmt.Errorf("turn %d: %d tool call(s) without a following tool_result turn", i, len(uses))
		}
		answered := map[string]int{}
		for _, b := range filterBlocks(t[i+1].Blocks, BlockToolResult) {
			answered[b.ToolUseID]++
		}
		for _, use := range uses {
			switch answered[use.ID] {
			case 0:
				return fmt.Errorf("turn %d: tool call %s (%s) has no result", i, use.ID, use.Name)
			case 1:
				delete(answered, use.ID)
			default:
				return fmt.Errorf("turn %d: tool call %s (%s) has %d results", i, use.ID, use.Name, answered[use.ID])
			}
		}
		if len(answered) > 0 {
			stray := make([]string, 0, len(answered))
			for id := range answered {
				stray = append(stray, id)
			}
			sort.Strings(stray)
			return fmt.Errorf("turn %d: tool_result %s does not answer any tool call", i+1, strings.Join(stray, ", "))
		}
	}

	// Results must answer the turn directly before them.
	for i, turn := range t {
		results := filterBlocks(turn.Blocks, BlockToolResult)
		if len(results) == 0 {
			continue
		}
		if i == 0 || len(t[i-1].ToolUses()) == 0 {
			return fmt.Errorf("turn %d: tool_result without a preceding tool call", i)
		}
	}
	return nil
}

// Last returns the final turn, if any.
func (t Transcript) Last() (Turn, bool) {
	if len(t) == 0 {
		return Turn{}, false
	}
	return t[len(t)-1], true
}

// ToolSpec declares a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Parameter is one named field of a tool's input object.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Properties returns the JSON schema properties object.
func (s ToolSpec) Properties() map[string]any {
	props := make(map[string]any, len(s.Parameters))
	for _, p := range s.Parameters {
		props[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	return props
}

// Required lists the required parameter names in declaration order.
func (s ToolSpec) Required() []string {
	var out []string
	for _, p := range s.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Schema returns the full JSON schema of the tool input.
func (s ToolSpec) Schema() map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": s.Properties(),
	}
	if required := s.Required(); len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Request is one model invocation.
type Request struct {
	System    string
	Tools     []ToolSpec
	Messages  Transcript
	MaxTokens int64
}

// Usage reports token accounting for one response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the model's answer to a Request.
type Response struct {
	Blocks     []Block
	StopReason StopReason
	Usage      Usage
}

// Text concatenates the text blocks of the response.
func (r Response) Text() string {
	return joinText(r.Blocks)
}

// ToolUses returns the tool_use blocks of the response in emission order.
func (r Response) ToolUses() []Block {
	return filterBlocks(r.Blocks, BlockToolUse)
}

// Model is a remote LLM endpoint.
type Model interface {
	// Complete sends the request and waits for the whole response.
	Complete(ctx context.Context, req Request) (Response, error)
	// Stream sends the request and calls onText for every text delta as it
	// arrives. The returned Response holds the accumulated blocks.
	Stream(ctx context.Context, req Request, onText func(string)) (Response, error)
}

func joinText(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func filterBlocks(blocks []Block, typ BlockType) []Block {
	var out []Block
	for _, b := range blocks {
		if b.Type == typ {
			out = append(out, b)
		}
	}
	return out
}
