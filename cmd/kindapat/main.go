// Package main is the kindapat chat command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kindapat/kindapat/pkg/app"
	configpkg "github.com/kindapat/kindapat/pkg/config"
	"github.com/kindapat/kindapat/pkg/console"
	"github.com/kindapat/kindapat/pkg/repl"
)

// errNoPrompt ends the command with status 1 after the help text.
var errNoPrompt = errors.New("no prompt given")

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
		if !errors.Is(err, errNoPrompt) {
			provider := configpkg.Normalize(flags.Config(getenv)).Provider
			_, _ = fmt.Fprintln(stderr, app.ErrorText(err, provider))
		}
		return 1
	}
	return 0
}

func newRootCmd(flags *app.Flags, getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var showSystem bool
	cmd := &cobra.Command{
		Use:           "kindapat [prompt]",
		Short:         "KindaPat: chat with the Imagist design agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flags.Config(getenv)
			if showSystem {
				p, err := app.LoadPrompt(cfg)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, p.Body)
				return nil
			}

			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" && !flags.Interactive {
				_ = cmd.Help()
				return errNoPrompt
			}

			a, err := app.NewApp(cfg, stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if flags.Interactive {
				return interactive(cmd.Context(), a, stdin, stdout)
			}

			session := a.NewChat(stdout)
			reply, err := session.Send(cmd.Context(), text, a.Config.Stream)
			if err != nil {
				return err
			}
			if !a.Config.Stream {
				_, _ = fmt.Fprintln(stdout, reply)
			}
			return nil
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags.BindCommon(cmd.Flags())
	cmd.Flags().BoolVar(&showSystem, "system", false, "Print the system prompt and exit")
	return cmd
}

// interactive keeps one conversation across inputs and always streams.
func interactive(ctx context.Context, a *app.App, stdin io.Reader, stdout io.Writer) error {
	printer := console.New(stdout)
	session := a.NewChat(stdout)
	return repl.Run(ctx, stdin, stdout, repl.Options{
		Title:       "KindaPat: Imagist Design Agent",
		Hint:        "Type 'quit' or 'exit' to leave",
		PromptLabel: "you:",
		Reset:       session.Reset,
		Logger:      a.Logger,
	}, func(ctx context.Context, input string) error {
		printer.Label("kindapat:")
		_, err := session.Send(ctx, input, true)
		_, _ = fmt.Fprintln(stdout)
		return err
	})
}
