package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kindapat/kindapat/pkg/llm"
	loggerpkg "github.com/kindapat/kindapat/pkg/logger"
)

// Name identifies a tool. The values are the names declared to the model.
type Name string

const (
	Bash          Name = "bash"
	ReadFile      Name = "read_file"
	WriteFile     Name = "write_file"
	ListDirectory Name = "list_directory"
)

// Names lists every built-in tool in declaration order.
var Names = []Name{Bash, ReadFile, WriteFile, ListDirectory}

// DefaultCommandTimeout bounds a bash call when Context.CommandTimeout is unset.
const DefaultCommandTimeout = 60 * time.Second

// ErrorPrefix starts every failed tool result.
const ErrorPrefix = "Error: "

type tool interface {
	spec() llm.ToolSpec
	execute(ctx context.Context, input json.RawMessage) string
}

// Context carries the settings shared by the tool handlers.
type Context struct {
	CommandTimeout time.Duration
	// AllowedDirs restricts file tools when non-empty.
	AllowedDirs []string
	Logger      loggerpkg.Logger
}

func (c Context) debug(msg string, fields loggerpkg.Fields) {
	loggerpkg.Debug(c.Logger, msg, fields)
}

// Registry maps tool names to handlers.
type Registry struct {
	registry map[Name]tool
	specs    []llm.ToolSpec
	ctx      Context
}

// New builds a registry with the built-in tools.
func New(ctx Context) *Registry {
	if ctx.Logger == nil {
		ctx.Logger = loggerpkg.NopLogger{}
	}
	if ctx.CommandTimeout <= 0 {
		ctx.CommandTimeout = DefaultCommandTimeout
	}
	r := &Registry{
		registry: make(map[Name]tool, len(Names)),
		ctx:      ctx,
	}
	for _, name := range Names {
		r.register(name, newTool(name, ctx))
	}
	return r
}

// newTool is the exhaustive constructor table for Names.
func newTool(name Name, ctx Context) tool {
	switch name {
	case Bash:
		return &bashTool{ctx: ctx}
	case ReadFile:
		return &readFileTool{ctx: ctx}
	case WriteFile:
		return &writeFileTool{ctx: ctx}
	case ListDirectory:
		return &listDirectoryTool{ctx: ctx}
	}
	panic(fmt.Sprintf("tools: no handler for %q", name))
}

func (r *Registry) register(name Name, t tool) {
	spec := t.spec()
	if spec.Name != string(name) {
		panic(fmt.Sprintf("tools: %q declares itself as %q", name, spec.Name))
	}
	r.registry[name] = t
	r.specs = append(r.specs, spec)
	r.ctx.debug("registered tool", loggerpkg.Fields{"tool": name})
}

// Specs returns the tool declarations sent to the model.
func (r *Registry) Specs() []llm.ToolSpec {
	out := make([]llm.ToolSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Dispatch runs the named tool and returns its text result. It never fails:
// unknown tools, bad input and handler panics all come back as text starting
// with ErrorPrefix.
func (r *Registry) Dispatch(ctx context.Context, name string, input json.RawMessage) (result string) {
	t, ok := r.registry[Name(name)]
	if !ok {
		return failuref("Unknown tool: %s", name)
	}
	if err := ctx.Err(); err != nil {
		return failure(err)
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result = failuref("%s panicked: %v", name, p)
		}
		r.ctx.debug("tool finished", loggerpkg.Fields{
			"tool":        name,
			"duration_ms": time.Since(start).Milliseconds(),
			"error":       IsFailure(result),
			"bytes":       len(result),
		})
	}()
	return t.execute(ctx, input)
}

// IsFailure reports whether a tool result describes an error.
func IsFailure(result string) bool {
	return strings.HasPrefix(result, ErrorPrefix)
}

func failure(err error) string {
	return ErrorPrefix + err.Error()
}

func failuref(format string, args ...any) string {
	return ErrorPrefix + fmt.Sprintf(format, args...)
}

var errMissingField = errors.New("missing required field")

// decodeInput unmarshals input into v and checks that every named field was
// present in the JSON object.
func decodeInput(input json.RawMessage, v any, required ...string) error {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(input, &present); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	for _, field := range required {
		if _, ok := present[field]; !ok {
			return fmt.Errorf("%w: %s", errMissingField, field)
		}
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
