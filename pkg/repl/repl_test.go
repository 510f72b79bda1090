package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func runLines(t *testing.T, input string, opts Options, handle Handler) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Run(context.Background(), strings.NewReader(input), &out, opts, handle)
	return out.String(), err
}

func TestRunDispatchesLinesUntilQuit(t *testing.T) {
	var got []string
	out, err := runLines(t, "hello\n\n   \n  second  \nquit\nnever\n", Options{Title: "KindaPat", Hint: "Type 'quit' to exit"},
		func(_ context.Context, input string) error {
			got = append(got, input)
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "|") != "hello|second" {
		t.Fatalf("unexpected inputs: %q", got)
	}
	if !strings.Contains(out, "  KindaPat\n  Type 'quit' to exit\n") {
		t.Fatalf("banner missing from output: %q", out)
	}
	if !strings.HasSuffix(out, "you: ") {
		t.Fatalf("expected to stop at the prompt, got %q", out)
	}
}

func TestRunQuitWords(t *testing.T) {
	for _, word := range []string{"quit", "EXIT", "q", "/quit", "/exit", "/q"} {
		called := false
		_, err := runLines(t, word+"\nhello\n", Options{}, func(context.Context, string) error {
			called = true
			return nil
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", word, err)
		}
		if called {
			t.Fatalf("%s: handler called after quit", word)
		}
	}
}

func TestRunEOF(t *testing.T) {
	out, err := runLines(t, "only line", Options{}, func(context.Context, string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("expected blank lines on EOF, got %q", out)
	}
}

func TestRunPrintsHandlerErrors(t *testing.T) {
	calls := 0
	out, err := runLines(t, "one\ntwo\n", Options{}, func(context.Context, string) error {
		calls++
		if calls == 1 {
			return errors.New("model unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the session to continue, got %d calls", calls)
	}
	if !strings.Contains(out, "Error: model unavailable\n") {
		t.Fatalf("error not printed: %q", out)
	}
}

func TestRunCommands(t *testing.T) {
	resets := 0
	out, err := runLines(t, "/help\n/clear\n/bogus\n", Options{Reset: func() { resets++ }},
		func(context.Context, string) error {
			t.Fatal("commands must not reach the handler")
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resets != 1 {
		t.Fatalf("expected one reset, got %d", resets)
	}
	for _, want := range []string{"/clear - Clear conversation history", "Conversation history cleared.", "Unknown command: /bogus"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
}

func TestRunWithoutReset(t *testing.T) {
	out, err := runLines(t, "/help\n/clear\n", Options{}, func(context.Context, string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "/clear - ") {
		t.Fatalf("help should not offer /clear: %q", out)
	}
	if !strings.Contains(out, "Nothing to clear.") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, pr, &out, Options{}, func(context.Context, string) error { return nil })
	}()

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunRequiresHandler(t *testing.T) {
	if err := Run(context.Background(), strings.NewReader(""), io.Discard, Options{}, nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}
