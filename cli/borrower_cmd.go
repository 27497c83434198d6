package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"librarydesk/library"
)

func newBorrowerCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "borrower",
		Short: "Manage borrowers",
	}

	var in library.BorrowerInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a borrower",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			id, err := app.mgr.AddBorrower(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Borrower added with ID %d\n", id)
			return nil
		},
	}
	borrowerFlags(add, &in)

	var upd library.BorrowerInput
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a borrower's details; omitted flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "borrower")
			if err != nil {
				return err
			}
			cur, err := app.mgr.GetBorrower(cmd.Context(), id)
			if err != nil {
				return err
			}
			merged := library.BorrowerInput{Name: cur.Name, Email: cur.Email, Phone: cur.Phone, Address: cur.Address}
			fs := cmd.Flags()
			if fs.Changed("name") {
				merged.Name = upd.Name
			}
			if fs.Changed("email") {
				merged.Email = upd.Email
			}
			if fs.Changed("phone") {
				merged.Phone = upd.Phone
			}
			if fs.Changed("address") {
				merged.Address = upd.Address
			}
			if err := app.mgr.UpdateBorrower(cmd.Context(), id, merged); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Borrower %d updated\n", id)
			return nil
		},
	}
	borrowerFlags(update, &upd)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a borrower and their loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "borrower")
			if err != nil {
				return err
			}
			if err := app.mgr.DeleteBorrower(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Borrower %d deleted\n", id)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List borrowers with their open loan counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			borrowers, err := app.mgr.GetAllBorrowers(cmd.Context())
			if err != nil {
				return err
			}
			printBorrowers(cmd.OutOrStdout(), borrowers)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a borrower and their loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "borrower")
			if err != nil {
				return err
			}
			b, err := app.mgr.GetBorrower(cmd.Context(), id)
			if err != nil {
				return err
			}
			loans, err := app.mgr.GetBorrowerLoans(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:         %d\n", b.ID)
			fmt.Fprintf(out, "Name:       %s\n", b.Name)
			fmt.Fprintf(out, "Email:      %s\n", b.Email)
			fmt.Fprintf(out, "Phone:      %s\n", b.Phone)
			fmt.Fprintf(out, "Address:    %s\n", b.Address)
			fmt.Fprintf(out, "Registered: %s\n", b.RegisteredAt.Format("2006-01-02"))
			fmt.Fprintln(out)
			printLoans(out, loans)
			return nil
		},
	}

	var field string
	search := &cobra.Command{
		Use:   "search <term>",
		Short: "Search borrowers by name, email or phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			borrowers, err := app.mgr.SearchBorrowers(cmd.Context(), args[0], field)
			if err != nil {
				return err
			}
			printBorrowers(cmd.OutOrStdout(), borrowers)
			return nil
		},
	}
	search.Flags().StringVar(&field, "field", library.SearchAny, "name, email, phone or any")

	cmd.AddCommand(add, update, del, list, show, search)
	return cmd
}

func borrowerFlags(cmd *cobra.Command, in *library.BorrowerInput) {
	cmd.Flags().StringVar(&in.Name, "name", "", "full name")
	cmd.Flags().StringVar(&in.Email, "email", "", "unique email address")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&in.Address, "address", "", "postal address")
}

func printBorrowers(out io.Writer, borrowers []*library.Borrower) {
	if len(borrowers) == 0 {
		fmt.Fprintln(out, "No borrowers found.")
		return
	}
	fmt.Fprintf(out, "%-5s %-25s %-30s %-18s %s\n", "ID", "Name", "Email", "Phone", "Loans")
	for _, b := range borrowers {
		fmt.Fprintf(out, "%-5d %-25s %-30s %-18s %d\n", b.ID, b.Name, b.Email, b.Phone, b.ActiveLoans)
	}
}
