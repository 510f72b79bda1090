package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kindapat/kindapat/pkg/llm"
)

const (
	dirMarker  = "📁 "
	fileMarker = "📄 "

	// EmptyDirectory is the listing of a directory with no entries.
	EmptyDirectory = "(empty directory)"
)

type listDirectoryTool struct {
	ctx Context
}

func (t *listDirectoryTool) spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        string(ListDirectory),
		Description: "List contents of a directory.",
		Parameters: []llm.Parameter{
			{Name: "path", Type: "string", Description: "Path to the directory to list", Required: true},
		},
	}
}

func (t *listDirectoryTool) execute(_ context.Context, input json.RawMessage) string {
	var args struct {
		Path string `json:"path"`
	}
	if err := decodeInput(input, &args, "path"); err != nil {
		return failure(err)
	}

	path, err := t.ctx.resolvePath(args.Path)
	if err != nil {
		return failure(err)
	}

	// os.ReadDir returns entries sorted by filename.
	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return failuref("Directory not found: %s", args.Path)
	}
	if err != nil {
		return failure(err)
	}
	if len(entries) == 0 {
		return EmptyDirectory
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		marker := fileMarker
		if isDir(path, entry) {
			marker = dirMarker
		}
		lines = append(lines, marker+entry.Name())
	}
	return strings.Join(lines, "\n")
}

// isDir follows symlinks so a link to a directory is listed as one.
func isDir(parent string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir()
	}
	info, err := os.Stat(filepath.Join(parent, entry.Name()))
	return err == nil && info.IsDir()
}
