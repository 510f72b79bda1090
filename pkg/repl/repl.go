// Package repl runs the interactive line loop shared by both commands.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kindapat/kindapat/pkg/console"
	loggerpkg "github.com/kindapat/kindapat/pkg/logger"
)

const maxLineBytes = 1024 * 1024

// Handler processes one line of user input.
type Handler func(ctx context.Context, input string) error

// Options configures REPL behavior.
type Options struct {
	Title string
	Hint  string

	// PromptLabel is shown before each input, e.g. "you:".
	PromptLabel string
	// Reset backs /clear. Nil means there is nothing to clear.
	Reset  func()
	Logger loggerpkg.Logger
}

// Run reads lines from in until EOF, a quit word or ctx cancellation and
// passes every other non-blank line to handle. Handler errors are printed and
// the session continues.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options, handle Handler) error {
	if in == nil {
		return errors.New("input reader is required")
	}
	if handle == nil {
		return errors.New("handler is required")
	}
	if out == nil {
		out = io.Discard
	}
	if opts.PromptLabel == "" {
		opts.PromptLabel = "you:"
	}

	printer := console.New(out)
	if opts.Title != "" {
		printer.Banner(opts.Title, opts.Hint)
	}
	loggerpkg.Debug(opts.Logger, "repl start", nil)

	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(in, done)

	for {
		_, _ = fmt.Fprint(out, printer.Prompt(opts.PromptLabel))

		var line string
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprint(out, "\n\n")
			return nil
		case l, ok := <-lines:
			if !ok {
				_, _ = fmt.Fprint(out, "\n\n")
				if err := <-readErr; err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				return nil
			}
			line = l
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if isQuit(input) {
			return nil
		}
		if strings.HasPrefix(input, "/") {
			handleCommand(input, opts, out)
			continue
		}

		if err := handle(ctx, input); err != nil {
			if ctx.Err() != nil {
				_, _ = fmt.Fprint(out, "\n\n")
				return nil
			}
			printer.Error(err)
			_, _ = fmt.Fprintln(out)
		}
	}
}

// readLines scans in on its own goroutine so the caller can also wait on a
// context. The error channel receives exactly one value after lines closes.
func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func isQuit(input string) bool {
	switch strings.ToLower(strings.TrimPrefix(input, "/")) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

func handleCommand(input string, opts Options, out io.Writer) {
	switch strings.ToLower(input) {
	case "/help", "/h":
		printHelp(out, opts.Reset != nil)
	case "/clear", "/c":
		if opts.Reset == nil {
			_, _ = fmt.Fprintln(out, "Nothing to clear.")
			_, _ = fmt.Fprintln(out)
			return
		}
		opts.Reset()
		_, _ = fmt.Fprintln(out, "Conversation history cleared.")
		_, _ = fmt.Fprintln(out)
	default:
		_, _ = fmt.Fprintf(out, "Unknown command: %s. Type /help for available commands.\n\n", input)
	}
}

func printHelp(out io.Writer, canClear bool) {
	_, _ = fmt.Fprintln(out, "Commands:")
	_, _ = fmt.Fprintln(out, "  /help  - Show this help message")
	if canClear {
		_, _ = fmt.Fprintln(out, "  /clear - Clear conversation history")
	}
	_, _ = fmt.Fprintln(out, "  /quit  - Exit the program")
	_, _ = fmt.Fprintln(out, "  /exit  - Exit the program")
	_, _ = fmt.Fprintln(out)
}
