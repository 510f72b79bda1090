package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	DefaultAnthropicModel   = "claude-sonnet-4-20250514"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultMaxTokens        = 8192
	DefaultCommandTimeout   = 60 * time.Second
	DefaultSystemPromptFile = "CLAUDE.md"
)

// ErrMissingAPIKey is returned by Validate when no credential is configured.
var ErrMissingAPIKey = errors.New("API key is not set")

// Config holds all runtime configuration for both commands.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string

	MaxTokens int64
	// MaxTurns caps model calls per agent task; 0 means unbounded.
	MaxTurns       int
	CommandTimeout time.Duration
	AllowedDirs    []string

	SystemPromptPath string
	Stream           bool
	Verbose          bool
	LogFile          string
}

// DefaultConfig returns a baseline configuration without side effects.
// Provider and Model stay empty so FromEnv and Normalize can fill them.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      DefaultMaxTokens,
		CommandTimeout: DefaultCommandTimeout,
	}
}

// FromEnv fills blank fields of cfg from the environment. getenv is usually
// os.Getenv. Values already set on cfg win.
func FromEnv(cfg Config, getenv func(string) string) Config {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg.Provider = firstNonEmpty(strings.TrimSpace(cfg.Provider), get("KINDAPAT_PROVIDER"))
	cfg.SystemPromptPath = firstNonEmpty(cfg.SystemPromptPath, get("KINDAPAT_SYSTEM_PROMPT"))
	cfg.Model = firstNonEmpty(cfg.Model, get("KINDAPAT_MODEL"))

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		cfg.APIKey = firstNonEmpty(cfg.APIKey, get("OPENAI_API_KEY"))
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, get("OPENAI_BASE_URL"))
		cfg.Model = firstNonEmpty(cfg.Model, get("OPENAI_MODEL"))
	default:
		cfg.APIKey = firstNonEmpty(cfg.APIKey, get("ANTHROPIC_API_KEY"))
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, get("ANTHROPIC_BASE_URL"))
	}
	return cfg
}

// Normalize sanitizes configuration values and applies defaults.
func Normalize(cfg Config) Config {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderAnthropic
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		if cfg.Provider == ProviderOpenAI {
			cfg.Model = DefaultOpenAIModel
		} else {
			cfg.Model = DefaultAnthropicModel
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxTurns < 0 {
		cfg.MaxTurns = 0
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	dirs := make([]string, 0, len(cfg.AllowedDirs))
	for _, dir := range cfg.AllowedDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		dirs = append(dirs, dir)
	}
	cfg.AllowedDirs = dirs

	cfg.SystemPromptPath = strings.TrimSpace(cfg.SystemPromptPath)
	if cfg.SystemPromptPath == "" {
		cfg.SystemPromptPath = DefaultSystemPromptPath()
	}
	cfg.LogFile = strings.TrimSpace(cfg.LogFile)
	return cfg
}

// Validate reports configuration that cannot start a session.
func Validate(cfg Config) error {
	switch cfg.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", cfg.Provider, ProviderAnthropic, ProviderOpenAI)
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("%w: %s", ErrMissingAPIKey, APIKeyEnv(cfg.Provider))
	}
	return nil
}

// APIKeyEnv names the environment variable holding the provider credential.
func APIKeyEnv(provider string) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// DefaultSystemPromptPath prefers CLAUDE.md next to the executable and falls
// back to the working directory.
func DefaultSystemPromptPath() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), DefaultSystemPromptFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return DefaultSystemPromptFile
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
