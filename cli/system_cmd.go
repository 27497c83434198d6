package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"librarydesk/auth"
	"librarydesk/config"
	"librarydesk/credential"
	"librarydesk/library"
)

func newInitCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the schema and the default admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			admin := app.cfg.Admin

			password, generated := admin.Password, false
			if password == "" {
				p, err := strongPassword()
				if err != nil {
					return err
				}
				password, generated = p, true
			}

			id, err := app.auth.Register(cmd.Context(), admin.Username, admin.Email, password, library.RoleAdmin)
			if errors.Is(err, auth.ErrUserExists) {
				fmt.Fprintf(out, "Admin user %q already exists.\n", admin.Username)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "User '%s' registered successfully! User ID: %d\n", admin.Username, id)
			fmt.Fprintln(out, "Admin credentials:")
			fmt.Fprintf(out, "  Username: %s\n", admin.Username)
			fmt.Fprintf(out, "  Email: %s\n", admin.Email)
			if generated {
				fmt.Fprintf(out, "  Password: %s\n", password)
			}
			fmt.Fprintln(out, "IMPORTANT: Change this password after first login!")
			return nil
		},
	}
}

// strongPassword generates passwords until one passes the strength rules.
func strongPassword() (string, error) {
	for {
		p, err := credential.GenerateSecurePassword(credential.DefaultGeneratedLength)
		if err != nil {
			return "", err
		}
		if credential.ValidatePasswordStrength(p) == nil {
			return p, nil
		}
	}
}

func newRegisterCommand(app *App) *cobra.Command {
	var username, email, role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a login account and its borrower record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := library.RoleBorrower
			if role != "" && role != string(library.RoleBorrower) {
				parsed, err := library.ParseRole(role)
				if err != nil {
					return err
				}
				// Only staff may hand out staff roles.
				if _, err := app.Staff(cmd.Context()); err != nil {
					return err
				}
				r = parsed
			}

			password, err := app.ReadPassword("New password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			id, err := app.auth.Register(cmd.Context(), username, email, password, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User '%s' registered successfully! User ID: %d\n", strings.TrimSpace(username), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", string(library.RoleBorrower), "admin, librarian or borrower")
	return cmd
}

func newPasswordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password utilities",
	}
	var length int
	gen := &cobra.Command{
		Use:         "generate",
		Short:       "Print a random password",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := credential.GenerateSecurePassword(length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
	gen.Flags().IntVar(&length, "length", credential.DefaultGeneratedLength, "number of characters")
	cmd.AddCommand(gen)
	return cmd
}

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	show := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration without secrets",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(app.configPath())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}
	cmd.AddCommand(show)
	return cmd
}
