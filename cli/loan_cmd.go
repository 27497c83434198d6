package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"librarydesk/library"
)

func newLoanCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loan",
		Short: "Borrow, return and list loans",
	}
	cmd.AddCommand(
		newBorrowCommand(app),
		newReturnCommand(app),
		newLoanListCommand(app),
		newActiveLoansCommand(app),
		newOverdueLoansCommand(app),
		newSweepCommand(app),
	)
	return cmd
}

func newBorrowCommand(app *App) *cobra.Command {
	var (
		req       library.BorrowRequest
		date, due string
	)
	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Lend a copy of a book to a borrower",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			var err error
			if req.BorrowDate, err = parseDate(date); err != nil {
				return err
			}
			if req.DueDate, err = parseDate(due); err != nil {
				return err
			}
			id, err := app.mgr.BorrowBook(cmd.Context(), req)
			if err != nil {
				return err
			}
			loan, err := app.mgr.GetLoan(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book borrowed. Transaction ID %d, due %s\n",
				id, loan.DueDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().Int64Var(&req.BookID, "book", 0, "book id")
	cmd.Flags().Int64Var(&req.BorrowerID, "borrower", 0, "borrower id")
	cmd.Flags().StringVar(&date, "date", "", "borrow date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD (default borrow date plus the loan period)")
	_ = cmd.MarkFlagRequired("book")
	_ = cmd.MarkFlagRequired("borrower")
	return cmd
}

func newReturnCommand(app *App) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "return <transaction-id>",
		Short: "Close a loan and charge any late fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "transaction")
			if err != nil {
				return err
			}
			returned, err := parseDate(date)
			if err != nil {
				return err
			}
			loan, err := app.mgr.ReturnBook(cmd.Context(), id, returned)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Book returned on %s\n", loan.ReturnDate.Format("2006-01-02"))
			if loan.Fine > 0 {
				fmt.Fprintf(out, "Late fine: $%s\n", loan.Fine)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "return date, YYYY-MM-DD (default today)")
	return cmd
}

func newLoanListCommand(app *App) *cobra.Command {
	var status, from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loans, newest first",
		Long:  "List loans. Staff see every loan; borrowers see only their own.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			var f library.LoanFilter
			if f.Statuses, err = parseStatuses(status); err != nil {
				return err
			}
			if f.From, err = parseDate(from); err != nil {
				return err
			}
			if f.To, err = parseDate(to); err != nil {
				return err
			}

			loans, err := app.mgr.ListLoans(cmd.Context(), f)
			if err != nil {
				return err
			}
			if !s.IsStaff() {
				b, err := app.mgr.Database().GetBorrowerByUser(cmd.Context(), s.UserID)
				if err != nil {
					return err
				}
				own := loans[:0]
				for _, l := range loans {
					if l.BorrowerID == b.ID {
						own = append(own, l)
					}
				}
				loans = own
			}
			printLoans(cmd.OutOrStdout(), loans)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "borrowed, overdue, returned or open; comma separated")
	cmd.Flags().StringVar(&from, "from", "", "earliest borrow date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "latest borrow date, YYYY-MM-DD")
	return cmd
}

// parseStatuses reads a comma separated status list. "open" expands to
// every status that still holds a copy.
func parseStatuses(s string) ([]library.LoanStatus, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []library.LoanStatus
	for _, part := range strings.Split(s, ",") {
		switch st := library.LoanStatus(strings.ToLower(strings.TrimSpace(part))); st {
		case library.StatusBorrowed, library.StatusOverdue, library.StatusReturned:
			out = append(out, st)
		case "open":
			out = append(out, library.StatusBorrowed, library.StatusOverdue)
		default:
			return nil, fmt.Errorf("Invalid status %q", part)
		}
	}
	return out, nil
}

func newActiveLoansCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List open loans by due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			loans, err := app.mgr.GetActiveLoans(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(loans) == 0 {
				fmt.Fprintln(out, "No active loans.")
				return nil
			}
			fmt.Fprintf(out, "%-5s %-30s %-20s %-10s %-8s %s\n", "ID", "Title", "Borrower", "Due", "Status", "Days")
			for _, l := range loans {
				fmt.Fprintf(out, "%-5d %-30s %-20s %s %-8s %d\n",
					l.ID, l.Title, l.BorrowerName, l.DueDate.Format("2006-01-02"), l.StatusLabel, l.DaysOverdue)
			}
			return nil
		},
	}
}

func newOverdueLoansCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open loans past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			loans, err := app.mgr.GetOverdueLoans(cmd.Context())
			if err != nil {
				return err
			}
			today := app.mgr.Today()
			out := cmd.OutOrStdout()
			if len(loans) == 0 {
				fmt.Fprintln(out, "No overdue loans.")
				return nil
			}
			fmt.Fprintf(out, "%-5s %-30s %-20s %-25s %-10s %s\n", "ID", "Title", "Borrower", "Email", "Due", "Days")
			for _, l := range loans {
				fmt.Fprintf(out, "%-5d %-30s %-20s %-25s %s %d\n",
					l.ID, l.Title, l.BorrowerName, l.BorrowerEmail, l.DueDate.Format("2006-01-02"), l.DaysOverdue(today))
			}
			return nil
		},
	}
}

func newSweepCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark open loans past their due date as overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			n, err := app.mgr.MarkOverdue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d loan(s) marked overdue\n", n)
			return nil
		},
	}
}

func printLoans(out io.Writer, loans []*library.LoanDetail) {
	if len(loans) == 0 {
		fmt.Fprintln(out, "No loans found.")
		return
	}
	fmt.Fprintf(out, "%-5s %-30s %-20s %-10s  %-10s  %-10s %-8s %s\n",
		"ID", "Title", "Borrower", "Borrowed", "Due", "Returned", "Status", "Fine")
	for _, l := range loans {
		fmt.Fprintln(out, library.PrettyLoan(l))
	}
}
