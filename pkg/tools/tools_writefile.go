package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kindapat/kindapat/pkg/llm"
	loggerpkg "github.com/kindapat/kindapat/pkg/logger"
)

type writeFileTool struct {
	ctx Context
}

func (t *writeFileTool) spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        string(WriteFile),
		Description: "Write content to a file. Creates the file if it doesn't exist.",
		Parameters: []llm.Parameter{
			{Name: "path", Type: "string", Description: "Path to the file to write", Required: true},
			{Name: "content", Type: "string", Description: "Content to write to the file", Required: true},
		},
	}
}

func (t *writeFileTool) execute(_ context.Context, input json.RawMessage) string {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decodeInput(input, &args, "path", "content"); err != nil {
		return failure(err)
	}

	path, err := t.ctx.resolvePath(args.Path)
	if err != nil {
		t.ctx.debug("write_file: path rejected", loggerpkg.Fields{"path": args.Path, "error": err.Error()})
		return failure(err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return failure(err)
		}
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return failure(err)
	}

	t.ctx.debug("write_file: success", loggerpkg.Fields{"path": path, "bytes": len(args.Content)})
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(args.Content), path)
}
