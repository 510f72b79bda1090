// Package app wires configuration, logging, the system prompt and the model
// client together for the command entry points.
package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kindapat/kindapat/pkg/agent"
	"github.com/kindapat/kindapat/pkg/chat"
	configpkg "github.com/kindapat/kindapat/pkg/config"
	"github.com/kindapat/kindapat/pkg/llm"
	anthropicllm "github.com/kindapat/kindapat/pkg/llm/anthropic"
	openaillm "github.com/kindapat/kindapat/pkg/llm/openai"
	loggerpkg "github.com/kindapat/kindapat/pkg/logger"
	"github.com/kindapat/kindapat/pkg/prompt"
	"github.com/kindapat/kindapat/pkg/tools"
)

// App holds the application state and dependencies.
type App struct {
	Config configpkg.Config
	Prompt prompt.Prompt
	Model  llm.Model
	Logger loggerpkg.Logger

	closers []io.Closer
}

// LoadPrompt reads the system prompt named by cfg, or the default file.
func LoadPrompt(cfg configpkg.Config) (prompt.Prompt, error) {
	path := strings.TrimSpace(cfg.SystemPromptPath)
	if path == "" {
		path = configpkg.DefaultSystemPromptPath()
	}
	return prompt.Load(path)
}

// NewApp initializes and returns a new App instance. Debug logs go to stderr
// when cfg.Verbose is set.
func NewApp(cfg configpkg.Config, stderr io.Writer) (*App, error) {
	p, err := LoadPrompt(cfg)
	if err != nil {
		return nil, err
	}
	cfg = configpkg.Normalize(p.ApplyTo(cfg))
	cfg.SystemPromptPath = p.Path

	logger, closers := newLogger(cfg, stderr)
	loggerpkg.Debug(logger, "app init", loggerpkg.Fields{
		"provider":      cfg.Provider,
		"model":         cfg.Model,
		"base_url":      cfg.BaseURL,
		"max_tokens":    cfg.MaxTokens,
		"max_turns":     cfg.MaxTurns,
		"allowed_dirs":  cfg.AllowedDirs,
		"system_prompt": cfg.SystemPromptPath,
		"prompt_bytes":  len(p.Body),
	})

	if err := configpkg.Validate(cfg); err != nil {
		closeAll(closers)
		return nil, err
	}

	model, err := NewModel(cfg)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	return &App{
		Config:  cfg,
		Prompt:  p,
		Model:   model,
		Logger:  logger,
		closers: closers,
	}, nil
}

// NewModel builds the client for cfg.Provider.
func NewModel(cfg configpkg.Config) (llm.Model, error) {
	switch cfg.Provider {
	case configpkg.ProviderAnthropic, "":
		return anthropicllm.New(anthropicllm.Options{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	case configpkg.ProviderOpenAI:
		return openaillm.New(openaillm.Options{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Tools builds the tool registry for an agent run.
func (a *App) Tools() *tools.Registry {
	return tools.New(tools.Context{
		CommandTimeout: a.Config.CommandTimeout,
		AllowedDirs:    a.Config.AllowedDirs,
		Logger:         a.Logger,
	})
}

// NewAgent builds an agent loop using the prompt with the agentic section.
func (a *App) NewAgent(display agent.Display) (*agent.AgentLoop, error) {
	return agent.New(a.Model, a.Tools(), a.Prompt.WithAgentInstructions(),
		agent.WithLogger(a.Logger),
		agent.WithDisplay(display),
		agent.WithMaxTokens(a.Config.MaxTokens),
		agent.WithMaxTurns(a.Config.MaxTurns),
		agent.WithStreaming(a.Config.Stream),
	)
}

// NewChat starts an empty conversation. Streamed replies go to out.
func (a *App) NewChat(out io.Writer) *chat.Session {
	return chat.NewSession(a.Model, a.Prompt.Body, a.Config.MaxTokens, out, a.Logger)
}

// Close releases log files.
func (a *App) Close() error {
	err := closeAll(a.closers)
	a.closers = nil
	return err
}

func newLogger(cfg configpkg.Config, stderr io.Writer) (loggerpkg.Logger, []io.Closer) {
	var (
		writers []io.Writer
		closers []io.Closer
	)
	if cfg.Verbose && stderr != nil {
		writers = append(writers, stderr)
	}
	if cfg.LogFile != "" {
		file := loggerpkg.NewFileWriter(cfg.LogFile)
		writers = append(writers, file)
		closers = append(closers, file)
	}
	if len(writers) == 0 {
		return loggerpkg.NopLogger{}, nil
	}

	level := loggerpkg.LevelInfo
	if cfg.Verbose {
		level = loggerpkg.LevelDebug
	}
	return loggerpkg.NewWriterLogger(io.MultiWriter(writers...), level), closers
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
