// Package chat implements the plain conversation mode: no tools, just the
// system prompt and the running history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kindapat/kindapat/pkg/llm"
	loggerpkg "github.com/kindapat/kindapat/pkg/logger"
)

// Session keeps the history of one conversation.
type Session struct {
	model     llm.Model
	system    string
	maxTokens int64
	out       io.Writer
	logger    loggerpkg.Logger

	history llm.Transcript
}

// NewSession returns an empty conversation. Streamed replies are written to out.
func NewSession(model llm.Model, systemPrompt string, maxTokens int64, out io.Writer, logger loggerpkg.Logger) *Session {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = loggerpkg.NopLogger{}
	}
	return &Session{
		model:     model,
		system:    systemPrompt,
		maxTokens: maxTokens,
		out:       out,
		logger:    logger,
	}
}

// Send appends text as a user turn, asks the model for a reply and records
// it. When stream is set the reply is written to the session writer as it
// arrives, followed by a newline. If the call fails or the reply is empty the
// user turn is removed so the history stays consistent.
func (s *Session) Send(ctx context.Context, text string, stream bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("user input is required")
	}
	previousLen := len(s.history)
	s.history = append(s.history, llm.UserText(text))

	req := llm.Request{
		System:    s.system,
		Messages:  s.history,
		MaxTokens: s.maxTokens,
	}
	loggerpkg.Debug(s.logger, "chat request", loggerpkg.Fields{"turns": len(s.history), "stream": stream})

	var (
		resp llm.Response
		err  error
	)
	if stream {
		resp, err = s.model.Stream(ctx, req, func(delta string) {
			io.WriteString(s.out, delta)
		})
		fmt.Fprintln(s.out)
	} else {
		resp, err = s.model.Complete(ctx, req)
	}
	if err != nil {
		s.history = s.history[:previousLen]
		return "", fmt.Errorf("chat: %w", err)
	}

	reply := resp.Text()
	if reply == "" {
		// An assistant turn without content would be rejected on the next
		// call, so the exchange is dropped.
		s.history = s.history[:previousLen]
	} else {
		s.history = append(s.history, llm.AssistantText(reply))
	}
	loggerpkg.Debug(s.logger, "chat response", loggerpkg.Fields{
		"stop_reason":   resp.StopReason,
		"output_tokens": resp.Usage.OutputTokens,
	})
	return reply, nil
}

// Reset forgets the conversation.
func (s *Session) Reset() {
	s.history = nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() llm.Transcript {
	return append(llm.Transcript(nil), s.history...)
}
