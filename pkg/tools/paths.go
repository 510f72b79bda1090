package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}

// resolvePath expands path and, when allowed directories are configured,
// checks that it stays inside one of them. The returned path keeps the
// caller's form (relative stays relative).
func (c Context) resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	roots := normalizeAllowedDirs(c.AllowedDirs)
	if len(roots) == 0 {
		return expanded, nil
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	for _, root := range roots {
		if within(root, absPath) {
			return expanded, nil
		}
	}
	return "", fmt.Errorf("path outside allowed directories: %s (allowed: %s)", absPath, strings.Join(roots, ", "))
}

// within reports whether path is root or a descendant of it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// normalizeAllowedDirs returns a sorted, deduplicated list of absolute directories.
func normalizeAllowedDirs(allowedDirs []string) []string {
	normalized := make([]string, 0, len(allowedDirs))
	seen := map[string]struct{}{}
	for _, dir := range allowedDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		expanded, err := expandHome(dir)
		if err != nil {
			continue
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			continue
		}
		abs = filepath.Clean(abs)
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		normalized = append(normalized, abs)
	}
	slices.Sort(normalized)
	return normalized
}
