package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	configpkg "github.com/kindapat/kindapat/pkg/config"
	"github.com/kindapat/kindapat/pkg/llm"
)

// Flags holds the command-line settings of both commands.
type Flags struct {
	Interactive  bool
	Stream       bool
	SystemPrompt string
	Provider     string
	Model        string
	MaxTokens    int64
	Verbose      bool
	LogFile      string

	// agent only
	MaxTurns    int
	Timeout     time.Duration
	AllowedDirs []string
}

// BindCommon registers the flags shared by both commands.
func (f *Flags) BindCommon(fs *pflag.FlagSet) {
	fs.BoolVarP(&f.Interactive, "interactive", "i", false, "Interactive mode")
	fs.BoolVarP(&f.Stream, "stream", "s", false, "Stream the response")
	fs.StringVar(&f.SystemPrompt, "system-prompt", "", "System prompt file (default: CLAUDE.md beside the executable, else in the working directory)")
	fs.StringVar(&f.Provider, "provider", "", "Model provider: anthropic or openai")
	fs.StringVar(&f.Model, "model", "", "Model name")
	// 0 lets the prompt front matter or the default decide.
	fs.Int64Var(&f.MaxTokens, "max-tokens", 0, fmt.Sprintf("Max tokens per response (default %d)", configpkg.DefaultMaxTokens))
	fs.BoolVar(&f.Verbose, "verbose", false, "Debug logging to stderr")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this file (rotated)")
}

// BindAgent registers the flags that only apply to tool use.
func (f *Flags) BindAgent(fs *pflag.FlagSet) {
	fs.IntVar(&f.MaxTurns, "max-turns", 0, "Stop after this many model calls per task (0 = no limit)")
	fs.DurationVar(&f.Timeout, "timeout", configpkg.DefaultCommandTimeout, "Timeout for each bash command")
	fs.StringArrayVar(&f.AllowedDirs, "allowed-dir", nil, "Restrict file tools to this directory (repeatable)")
}

// Config merges the flags with the environment. Flags win.
func (f Flags) Config(getenv func(string) string) configpkg.Config {
	cfg := configpkg.DefaultConfig()
	cfg.Provider = strings.TrimSpace(f.Provider)
	cfg.Model = strings.TrimSpace(f.Model)
	cfg.MaxTokens = f.MaxTokens
	cfg.MaxTurns = f.MaxTurns
	if f.Timeout > 0 {
		cfg.CommandTimeout = f.Timeout
	}
	cfg.AllowedDirs = append([]string(nil), f.AllowedDirs...)
	cfg.SystemPromptPath = strings.TrimSpace(f.SystemPrompt)
	cfg.Stream = f.Stream
	cfg.Verbose = f.Verbose
	cfg.LogFile = strings.TrimSpace(f.LogFile)
	return configpkg.FromEnv(cfg, getenv)
}

// ErrorText renders err for stderr. Credential problems name the variable
// the user has to set.
func ErrorText(err error, provider string) string {
	if errors.Is(err, llm.ErrAuthentication) || errors.Is(err, configpkg.ErrMissingAPIKey) {
		if provider == "" {
			provider = configpkg.ProviderAnthropic
		}
		return fmt.Sprintf("Error: %s not set or invalid", configpkg.APIKeyEnv(provider))
	}
	return "Error: " + err.Error()
}
