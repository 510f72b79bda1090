package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"unicode/utf8"

	"github.com/kindapat/kindapat/pkg/llm"
	loggerpkg "github.com/kindapat/kindapat/pkg/logger"
)

type readFileTool struct {
	ctx Context
}

func (t *readFileTool) spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        string(ReadFile),
		Description: "Read the contents of a file.",
		Parameters: []llm.Parameter{
			{Name: "path", Type: "string", Description: "Path to the file to read", Required: true},
		},
	}
}

func (t *readFileTool) execute(_ context.Context, input json.RawMessage) string {
	var args struct {
		Path string `json:"path"`
	}
	if err := decodeInput(input, &args, "path"); err != nil {
		return failure(err)
	}

	path, err := t.ctx.resolvePath(args.Path)
	if err != nil {
		t.ctx.debug("read_file: path rejected", loggerpkg.Fields{"path": args.Path, "error": err.Error()})
		return failure(err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return failuref("File not found: %s", args.Path)
	}
	if err != nil {
		return failure(err)
	}
	if !utf8.Valid(data) {
		return failuref("File is not valid UTF-8 text: %s", args.Path)
	}
	t.ctx.debug("read_file: success", loggerpkg.Fields{"path": path, "bytes": len(data)})
	return string(data)
}
