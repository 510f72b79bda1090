package agent

import loggerpkg "github.com/kindapat/kindapat/pkg/logger"

// AgentOption configures optional runtime dependencies for AgentLoop.
type AgentOption func(*agentDeps)

type agentDeps struct {
	logger    loggerpkg.Logger
	display   Display
	maxTokens int64
	maxTurns  int
	stream    bool
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger) AgentOption {
	return func(d *agentDeps) {
		d.logger = l
	}
}

// WithDisplay sets where progress is shown. The default shows nothing.
func WithDisplay(display Display) AgentOption {
	return func(d *agentDeps) {
		d.display = display
	}
}

// WithMaxTokens sets the per-response token limit.
func WithMaxTokens(n int64) AgentOption {
	return func(d *agentDeps) {
		d.maxTokens = n
	}
}

// WithMaxTurns bounds the number of model calls per task. Zero means no bound.
func WithMaxTurns(n int) AgentOption {
	return func(d *agentDeps) {
		d.maxTurns = n
	}
}

// WithStreaming displays assistant text as it is generated.
func WithStreaming(enabled bool) AgentOption {
	return func(d *agentDeps) {
		d.stream = enabled
	}
}
