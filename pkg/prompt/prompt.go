// Package prompt loads the system prompt file and its optional YAML front matter.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kindapat/kindapat/pkg/config"
)

// ErrNotFound is returned by Load when the prompt file does not exist.
var ErrNotFound = errors.New("system prompt file not found")

// AgentInstructions is appended to the system prompt in agentic mode.
const AgentInstructions = `

---

## Agentic Mode

You are running as an agent with tool access. You can:
- Execute bash commands to interact with the system
- Read and write files
- List directories
- Build and create things

When given a task:
1. Think through what needs to be done
2. Use tools to accomplish it
3. Verify your work
4. Report back concisely

Don't ask for permission—act. State your assumption and execute.
`

// Prompt is a loaded system prompt.
type Prompt struct {
	Path string
	Body string
	Meta Meta
}

// Meta mirrors the optional YAML front matter of the prompt file.
type Meta struct {
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// Load reads the prompt file at path.
func Load(path string) (Prompt, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Prompt{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Prompt{}, fmt.Errorf("read system prompt: %w", err)
	}
	meta, body, err := splitFrontMatter(string(content))
	if err != nil {
		return Prompt{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return Prompt{Path: path, Body: body, Meta: meta}, nil
}

// WithAgentInstructions returns the body with the agentic section appended.
func (p Prompt) WithAgentInstructions() string {
	return p.Body + AgentInstructions
}

// ApplyTo fills blank cfg fields from the front matter.
func (p Prompt) ApplyTo(cfg config.Config) config.Config {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = p.Meta.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = p.Meta.MaxTokens
	}
	return cfg
}

// splitFrontMatter separates a leading "---" delimited YAML block from the
// body. Files without front matter are returned whole.
func splitFrontMatter(content string) (Meta, string, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != "---" {
		return Meta{}, content, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return Meta{}, "", errors.New("unterminated YAML front matter")
	}

	var meta Meta
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &meta); err != nil {
		return Meta{}, "", err
	}
	body := strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
	return meta, body, nil
}
