// Package main is the kindapat-agent command: tasks are carried out with
// local tools.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kindapat/kindapat/pkg/agent"
	"github.com/kindapat/kindapat/pkg/app"
	configpkg "github.com/kindapat/kindapat/pkg/config"
	"github.com/kindapat/kindapat/pkg/console"
	"github.com/kindapat/kindapat/pkg/repl"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit status.
func run(ctx context.Context, args []string, getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) int {
	var flags app.Flags
	cmd := newRootCmd(&flags, getenv, stdin, stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		provider := configpkg.Normalize(flags.Config(getenv)).Provider
		_, _ = fmt.Fprintln(stderr, app.ErrorText(err, provider))
		return 1
	}
	return 0
}

func newRootCmd(flags *app.Flags, getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kindapat-agent [task]",
		Short:         "KindaPat Agent: agentic AI with tool use",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.TrimSpace(strings.Join(args, " "))
			if task == "" && !flags.Interactive {
				return cmd.Help()
			}

			a, err := app.NewApp(flags.Config(getenv), stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			loop, err := a.NewAgent(console.New(stdout))
			if err != nil {
				return err
			}

			if flags.Interactive {
				return interactive(cmd.Context(), a, loop, stdin, stdout)
			}
			_, err = loop.Run(cmd.Context(), task)
			return err
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags.BindCommon(cmd.Flags())
	flags.BindAgent(cmd.Flags())
	return cmd
}

// interactive runs every input as a separate task with a fresh transcript.
func interactive(ctx context.Context, a *app.App, loop *agent.AgentLoop, stdin io.Reader, stdout io.Writer) error {
	return repl.Run(ctx, stdin, stdout, repl.Options{
		Title:       "KindaPat Agent: Agentic Mode",
		Hint:        "Type 'quit' to exit",
		PromptLabel: "you:",
		Logger:      a.Logger,
	}, func(ctx context.Context, input string) error {
		_, err := loop.Run(ctx, input)
		_, _ = fmt.Fprintln(stdout)
		return err
	})
}
