package app

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/pflag"

	configpkg "github.com/kindapat/kindapat/pkg/config"
	"github.com/kindapat/kindapat/pkg/llm"
)

func parseFlags(t *testing.T, agent bool, args ...string) Flags {
	t.Helper()
	var f Flags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.BindCommon(fs)
	if agent {
		f.BindAgent(fs)
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return f
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFlagsDefaults(t *testing.T) {
	cfg := parseFlags(t, true).Config(envMap(nil))
	if cfg.MaxTokens != 0 {
		t.Fatalf("max tokens must stay unset until the prompt is loaded, got %d", cfg.MaxTokens)
	}
	if cfg.CommandTimeout != configpkg.DefaultCommandTimeout {
		t.Fatalf("unexpected timeout: %v", cfg.CommandTimeout)
	}
	if cfg.MaxTurns != 0 || len(cfg.AllowedDirs) != 0 {
		t.Fatalf("unexpected agent defaults: %+v", cfg)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	f := parseFlags(t, true,
		"-i", "-s",
		"--provider", "openai",
		"--model", "gpt-test",
		"--max-tokens", "100",
		"--max-turns", "5",
		"--timeout", "2s",
		"--allowed-dir", "/a",
		"--allowed-dir", "/b,c",
	)
	cfg := f.Config(envMap(map[string]string{
		"KINDAPAT_PROVIDER": "anthropic",
		"OPENAI_API_KEY":    "sk-test",
		"OPENAI_MODEL":      "gpt-env",
	}))

	if !f.Interactive || !cfg.Stream {
		t.Fatalf("short flags not parsed: %+v", f)
	}
	if cfg.Provider != "openai" || cfg.Model != "gpt-test" || cfg.APIKey != "sk-test" {
		t.Fatalf("unexpected provider settings: %+v", cfg)
	}
	if cfg.MaxTokens != 100 || cfg.MaxTurns != 5 || cfg.CommandTimeout != 2*time.Second {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if len(cfg.AllowedDirs) != 2 || cfg.AllowedDirs[1] != "/b,c" {
		t.Fatalf("allowed dirs must not be split on commas: %v", cfg.AllowedDirs)
	}
}

func TestChatHasNoAgentFlags(t *testing.T) {
	var f Flags
	fs := pflag.NewFlagSet("chat", pflag.ContinueOnError)
	f.BindCommon(fs)
	if fs.Lookup("max-turns") != nil || fs.Lookup("allowed-dir") != nil {
		t.Fatal("agent flags registered on chat command")
	}
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		err      error
		provider string
		want     string
	}{
		{err: fmt.Errorf("chat: %w", llm.ErrAuthentication), provider: "", want: "Error: ANTHROPIC_API_KEY not set or invalid"},
		{err: fmt.Errorf("%w: OPENAI_API_KEY", configpkg.ErrMissingAPIKey), provider: "openai", want: "Error: OPENAI_API_KEY not set or invalid"},
		{err: errors.New("boom"), provider: "anthropic", want: "Error: boom"},
	}
	for _, tt := range tests {
		if got := ErrorText(tt.err, tt.provider); got != tt.want {
			t.Errorf("ErrorText(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
