package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUserCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account management",
	}

	passwd := &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			old, err := app.ReadPassword("Current password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			next, err := app.ReadPassword("New password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if err := app.auth.ChangePassword(cmd.Context(), s.UserID, old, next); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed successfully")
			return nil
		},
	}

	var username, email string
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Change your username or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.auth.UpdateProfile(cmd.Context(), s.UserID, username, email); err != nil {
				return err
			}
			if username != "" {
				s.Username = username
			}
			if email != "" {
				s.Email = email
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile updated successfully")
			return nil
		},
	}
	profile.Flags().StringVar(&username, "username", "", "new username")
	profile.Flags().StringVar(&email, "email", "", "new email address")

	setActive := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <user-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := app.Session(cmd.Context())
				if err != nil {
					return err
				}
				id, err := parseID(args[0], "user")
				if err != nil {
					return err
				}
				if err := app.auth.SetActive(cmd.Context(), s, id, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d %sd\n", id, use)
				return nil
			},
		}
	}

	reset := &cobra.Command{
		Use:   "reset <email>",
		Short: "Request a password reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := app.auth.ResetPasswordRequest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s), user ID %d\n", s.Username, s.Email, s.Role, s.UserID)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List login accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			users, err := app.mgr.Database().GetAllUsers(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-5s %-20s %-30s %-10s %-7s %s\n", "ID", "Username", "Email", "Role", "Active", "Last login")
			for _, u := range users {
				last := "never"
				if u.LastLogin != nil {
					last = u.LastLogin.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%-5d %-20s %-30s %-10s %-7t %s\n", u.ID, u.Username, u.Email, u.Role, u.Active, last)
			}
			return nil
		},
	}

	cmd.AddCommand(
		passwd, profile,
		setActive("deactivate", "Disable a login account", false),
		setActive("activate", "Re-enable a login account", true),
		reset, whoami, list,
	)
	return cmd
}
