package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func newReportCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Circulation statistics and reports",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	// emit writes v as JSON when --json is set and reports whether it did.
	emit := func(out io.Writer, v any) (bool, error) {
		if !asJSON {
			return false, nil
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Dashboard of catalog, borrower and loan totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			s, err := app.mgr.SystemStatistics(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := emit(out, s); done || err != nil {
				return err
			}
			fmt.Fprintf(out, "Statistics as of %s\n", s.CurrentDate.Format("2006-01-02"))
			fmt.Fprintln(out, "Books")
			fmt.Fprintf(out, "  Titles:            %d\n", s.TotalBooks)
			fmt.Fprintf(out, "  Copies:            %d\n", s.TotalCopies)
			fmt.Fprintf(out, "  On the shelf:      %d\n", s.AvailableCopies)
			fmt.Fprintf(out, "  Fully lent out:    %d\n", s.UnavailableBooks)
			fmt.Fprintf(out, "  Top category:      %s\n", orDash(s.PopularCategory))
			fmt.Fprintln(out, "Borrowers")
			fmt.Fprintf(out, "  Registered:        %d\n", s.TotalBorrowers)
			fmt.Fprintf(out, "  With open loans:   %d\n", s.ActiveBorrowers)
			fmt.Fprintf(out, "  Newest:            %s\n", orDash(s.NewestBorrower))
			fmt.Fprintln(out, "Loans")
			fmt.Fprintf(out, "  Total:             %d\n", s.TotalLoans)
			fmt.Fprintf(out, "  Open:              %d\n", s.OpenLoans)
			fmt.Fprintf(out, "  Returned:          %d\n", s.ReturnedLoans)
			fmt.Fprintf(out, "  Past due:          %d\n", s.OverdueCount)
			fmt.Fprintf(out, "  Fines collected:   $%s\n", s.TotalFines)
			fmt.Fprintf(out, "  Avg loan (days):   %.1f\n", s.AvgLoanDuration)
			return nil
		},
	}

	var year, month int
	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Day by day activity for one month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			today := app.mgr.Today()
			y, m := today.Year(), today.Month()
			if cmd.Flags().Changed("year") {
				y = year
			}
			if cmd.Flags().Changed("month") {
				if month < 1 || month > 12 {
					return fmt.Errorf("Invalid month %d", month)
				}
				m = time.Month(month)
			}
			days, err := app.mgr.Database().MonthlyReport(cmd.Context(), y, m)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := emit(out, days); done || err != nil {
				return err
			}
			fmt.Fprintf(out, "Activity for %s %d\n", m, y)
			if len(days) == 0 {
				fmt.Fprintln(out, "No loans this month.")
				return nil
			}
			fmt.Fprintf(out, "%-4s %-6s %-6s %-9s %s\n", "Day", "Loans", "Open", "Returned", "Fines")
			for _, d := range days {
				fmt.Fprintf(out, "%-4d %-6d %-6d %-9d $%s\n", d.Day, d.Loans, d.Borrowed, d.Returned, d.Fines)
			}
			return nil
		},
	}
	monthly.Flags().IntVar(&year, "year", 0, "year (default current)")
	monthly.Flags().IntVar(&month, "month", 0, "month 1-12 (default current)")

	categories := &cobra.Command{
		Use:   "categories",
		Short: "Holdings and circulation per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			rows, err := app.mgr.Database().CategoryReport(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := emit(out, rows); done || err != nil {
				return err
			}
			fmt.Fprintf(out, "%-20s %-6s %-7s %-10s %s\n", "Category", "Books", "Copies", "Available", "Borrowed")
			for _, r := range rows {
				fmt.Fprintf(out, "%-20s %-6d %-7d %-10d %d\n", r.Category, r.TotalBooks, r.TotalCopies, r.AvailableCopies, r.TimesBorrowed)
			}
			return nil
		},
	}

	var borrowerLimit int
	borrowers := &cobra.Command{
		Use:   "borrowers",
		Short: "Most active borrowers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			rows, err := app.mgr.Database().BorrowerActivityReport(cmd.Context(), borrowerLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := emit(out, rows); done || err != nil {
				return err
			}
			fmt.Fprintf(out, "%-25s %-30s %-6s %-5s %-9s %s\n", "Name", "Email", "Total", "Open", "Fines", "Last")
			for _, r := range rows {
				last := "-"
				if r.LastBorrowed != nil {
					last = r.LastBorrowed.Format("2006-01-02")
				}
				fmt.Fprintf(out, "%-25s %-30s %-6d %-5d $%-8s %s\n",
					r.Name, r.Email, r.TotalBorrowed, r.CurrentlyBorrowed, r.TotalFines, last)
			}
			return nil
		},
	}
	borrowers.Flags().IntVar(&borrowerLimit, "limit", 10, "number of borrowers")

	var bookLimit int
	popular := &cobra.Command{
		Use:   "popular",
		Short: "Most borrowed books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			rows, err := app.mgr.Database().PopularBooksReport(cmd.Context(), bookLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := emit(out, rows); done || err != nil {
				return err
			}
			fmt.Fprintf(out, "%-5s %-30s %-25s %-15s %-6s %s\n", "ID", "Title", "Author", "Category", "Avail", "Borrowed")
			for _, r := range rows {
				fmt.Fprintf(out, "%-5d %-30s %-25s %-15s %-6d %d\n",
					r.BookID, r.Title, r.Author, r.Category, r.AvailableCopies, r.TimesBorrowed)
			}
			return nil
		},
	}
	popular.Flags().IntVar(&bookLimit, "limit", 10, "number of books")

	cmd.AddCommand(stats, monthly, categories, borrowers, popular)
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
