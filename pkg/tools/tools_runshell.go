package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/kindapat/kindapat/pkg/llm"
	loggerpkg "github.com/kindapat/kindapat/pkg/logger"
)

// waitDelay bounds how long Wait keeps draining pipes after the process
// group has been killed or the shell has exited.
const waitDelay = 5 * time.Second

type bashTool struct {
	ctx Context
}

// commandResult captures command execution output.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// timeoutError reports a command killed at its deadline.
type timeoutError struct {
	timeout time.Duration
}

func (e timeoutError) Error() string {
	if e.timeout%time.Second == 0 {
		return fmt.Sprintf("Command timed out after %d seconds", int64(e.timeout/time.Second))
	}
	return fmt.Sprintf("Command timed out after %s", e.timeout)
}

func (t *bashTool) spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        string(Bash),
		Description: "Execute a bash command. Use this to run commands, install packages, or interact with the system.",
		Parameters: []llm.Parameter{
			{Name: "command", Type: "string", Description: "The bash command to execute", Required: true},
		},
	}
}

func (t *bashTool) execute(ctx context.Context, input json.RawMessage) string {
	var args struct {
		Command string `json:"command"`
	}
	if err := decodeInput(input, &args, "command"); err != nil {
		return failure(err)
	}
	t.ctx.debug("bash: start", loggerpkg.Fields{"command_bytes": len(args.Command), "timeout": t.ctx.CommandTimeout.String()})

	result, err := t.ctx.runCommand(ctx, args.Command, t.ctx.CommandTimeout)
	if err != nil {
		t.ctx.debug("bash: failed", loggerpkg.Fields{"error": err.Error()})
		return failure(err)
	}
	t.ctx.debug("bash: completed", loggerpkg.Fields{
		"exit_code":    result.ExitCode,
		"duration_ms":  result.Duration.Milliseconds(),
		"stdout_bytes": len(result.Stdout),
		"stderr_bytes": len(result.Stderr),
	})
	return result.text()
}

// text renders the result the way the model sees it.
func (r commandResult) text() string {
	out := r.Stdout
	if r.Stderr != "" {
		out += "\nSTDERR:\n" + r.Stderr
	}
	if r.ExitCode != 0 {
		out += fmt.Sprintf("\n(exit code: %d)", r.ExitCode)
	}
	if out == "" {
		return "(no output)"
	}
	return out
}

// runCommand executes command through the shell in its own process group.
// The group is killed when timeout expires or ctx is cancelled; in that case
// no partial output is returned.
func (c Context) runCommand(ctx context.Context, command string, timeout time.Duration) (commandResult, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, shellPath(), "-c", command)
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return commandResult{}, ctx.Err()
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return commandResult{}, timeoutError{timeout: timeout}
	}

	exitCode := 0
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrWaitDelay):
		// The shell exited but a background child still holds the output
		// pipes. Keep what was captured and kill the rest of the group.
		c.debug("bash: killing background processes", nil)
		_ = cmd.Cancel()
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitCode()
	default:
		return commandResult{}, err
	}

	return commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// shellPath prefers bash, matching the declared tool name.
func shellPath() string {
	if path, err := exec.LookPath("bash"); err == nil {
		return path
	}
	return "/bin/sh"
}
