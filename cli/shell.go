package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const shellPrompt = "library> "

func newShellCommand(app *App) *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively under one login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.Session(ctx)
			if err != nil {
				return err
			}
			// Loans that fell due since the last run are flagged before anything else.
			if _, err := app.mgr.MarkOverdue(ctx); err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          shellPrompt,
				HistoryFile:     history,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("init readline: %w", err)
			}
			defer rl.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! Type 'help' for commands, 'exit' to leave.\n", s.Username)
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					fmt.Fprintln(cmd.OutOrStdout(), "Use 'exit' or 'quit' to exit the program.")
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if done := app.runLine(ctx, line, cmd.OutOrStdout(), cmd.ErrOrStderr()); done {
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&history, "history", "", "file to keep command history in")
	return cmd
}

// runLine executes one shell line and reports whether the shell should end.
// Each line gets a fresh command tree so flag values never leak between
// lines; the App, and with it the login, is shared.
func (a *App) runLine(ctx context.Context, line string, stdout, stderr io.Writer) bool {
	args := parseArgs(strings.TrimSpace(line))
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "exit", "quit":
		return true
	case "logout":
		a.Logout()
		fmt.Fprintln(stdout, "Logged out.")
		return true
	case "shell":
		fmt.Fprintln(stderr, "Error: already in a shell")
		return false
	}

	root := NewRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", Describe(err))
	}
	return false
}

// parseArgs splits a line on spaces, keeping double-quoted runs together.
func parseArgs(input string) []string {
	var args []string
	var currentArg strings.Builder
	inQuotes, quoted := false, false

	for _, char := range input {
		switch char {
		case '"':
			inQuotes = !inQuotes
			quoted = true
		case ' ', '\t':
			if !inQuotes {
				if currentArg.Len() > 0 || quoted {
					args = append(args, currentArg.String())
					currentArg.Reset()
				}
				quoted = false
			} else {
				currentArg.WriteRune(char)
			}
		default:
			currentArg.WriteRune(char)
		}
	}

	if currentArg.Len() > 0 || quoted {
		args = append(args, currentArg.String())
	}
	return args
}
