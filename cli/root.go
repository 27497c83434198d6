package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the full command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "librarydesk",
		Short:         "Manage a library's books, borrowers and loans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			return app.Open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&app.ConfigPath, "config", app.ConfigPath, "path to a YAML config file")
	root.PersistentFlags().StringVar(&app.Login, "login", app.Login, "username or email to log in as")

	root.AddCommand(
		newInitCommand(app),
		newRegisterCommand(app),
		newBookCommand(app),
		newBorrowerCommand(app),
		newLoanCommand(app),
		newReportCommand(app),
		newUserCommand(app),
		newPasswordCommand(),
		newConfigCommand(app),
		newShellCommand(app),
	)
	return root
}

// Execute runs the command line in os.Args and returns the process exit code.
func Execute() int {
	return Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes one command line against a fresh App.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := NewApp(stdout)
	defer app.Close()

	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", Describe(err))
		return 1
	}
	return 0
}
