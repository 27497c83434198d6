package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"librarydesk/library"
)

func newBookCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}
	cmd.AddCommand(
		newBookAddCommand(app),
		newBookUpdateCommand(app),
		newBookDeleteCommand(app),
		newBookListCommand(app),
		newBookShowCommand(app),
		newBookSearchCommand(app),
		newBookCategoriesCommand(app),
	)
	return cmd
}

func bookFlags(fs *pflag.FlagSet, in *library.BookInput) {
	fs.StringVar(&in.Title, "title", "", "book title")
	fs.StringVar(&in.Author, "author", "", "book author")
	fs.StringVar(&in.ISBN, "isbn", "", "unique ISBN")
	fs.StringVar(&in.Category, "category", "", "category")
	fs.IntVar(&in.Year, "year", 0, "publication year")
	fs.IntVar(&in.Copies, "copies", 1, "total copies")
}

func newBookAddCommand(app *App) *cobra.Command {
	var in library.BookInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			id, err := app.mgr.AddBook(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book added with ID %d\n", id)
			return nil
		},
	}
	bookFlags(cmd.Flags(), &in)
	return cmd
}

func newBookUpdateCommand(app *App) *cobra.Command {
	var in library.BookInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a book's details; omitted flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			cur, err := app.mgr.GetBook(cmd.Context(), id)
			if err != nil {
				return err
			}

			fs := cmd.Flags()
			merged := library.BookInput{
				Title: cur.Title, Author: cur.Author, ISBN: cur.ISBN,
				Category: cur.Category, Year: cur.Year, Copies: cur.Copies,
			}
			if fs.Changed("title") {
				merged.Title = in.Title
			}
			if fs.Changed("author") {
				merged.Author = in.Author
			}
			if fs.Changed("isbn") {
				merged.ISBN = in.ISBN
			}
			if fs.Changed("category") {
				merged.Category = in.Category
			}
			if fs.Changed("year") {
				merged.Year = in.Year
			}
			if fs.Changed("copies") {
				merged.Copies = in.Copies
			}

			if err := app.mgr.UpdateBook(cmd.Context(), id, merged); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book %d updated\n", id)
			return nil
		},
	}
	bookFlags(cmd.Flags(), &in)
	return cmd
}

func newBookDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a book and its loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Staff(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			if err := app.mgr.DeleteBook(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book %d deleted\n", id)
			return nil
		},
	}
}

func newBookListCommand(app *App) *cobra.Command {
	var available bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books by title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Session(cmd.Context()); err != nil {
				return err
			}
			var (
				books []*library.Book
				err   error
			)
			if available {
				books, err = app.mgr.GetAvailableBooks(cmd.Context())
			} else {
				books, err = app.mgr.GetAllBooks(cmd.Context())
			}
			if err != nil {
				return err
			}
			printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}
	cmd.Flags().BoolVar(&available, "available", false, "only books with a copy on the shelf")
	return cmd
}

func newBookShowCommand(app *App) *cobra.Command {
	var byISBN bool
	cmd := &cobra.Command{
		Use:   "show <id|isbn>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Session(cmd.Context()); err != nil {
				return err
			}
			var (
				b   *library.Book
				err error
			)
			if byISBN {
				b, err = app.mgr.Database().GetBookByISBN(cmd.Context(), args[0])
			} else {
				var id int64
				if id, err = parseID(args[0], "book"); err != nil {
					return err
				}
				b, err = app.mgr.GetBook(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %d\n", b.ID)
			fmt.Fprintf(out, "Title:     %s\n", b.Title)
			fmt.Fprintf(out, "Author:    %s\n", b.Author)
			fmt.Fprintf(out, "ISBN:      %s\n", b.ISBN)
			fmt.Fprintf(out, "Category:  %s\n", b.Category)
			fmt.Fprintf(out, "Year:      %d\n", b.Year)
			fmt.Fprintf(out, "Available: %d of %d\n", b.AvailableCopies, b.Copies)
			return nil
		},
	}
	cmd.Flags().BoolVar(&byISBN, "isbn", false, "look the argument up as an ISBN")
	return cmd
}

func newBookSearchCommand(app *App) *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search books by title, author, category or ISBN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Session(cmd.Context()); err != nil {
				return err
			}
			books, err := app.mgr.SearchBooks(cmd.Context(), args[0], field)
			if err != nil {
				return err
			}
			printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", library.SearchAny, "title, author, category, isbn or any")
	return cmd
}

func newBookCategoriesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Session(cmd.Context()); err != nil {
				return err
			}
			cats, err := app.mgr.Database().GetCategories(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range cats {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func printBooks(out io.Writer, books []*library.Book) {
	if len(books) == 0 {
		fmt.Fprintln(out, "No books found.")
		return
	}
	fmt.Fprintf(out, "%-5s %-30s %-25s %-15s %s\n", "ID", "Title", "Author", "Category", "Avail")
	for _, b := range books {
		fmt.Fprintln(out, library.PrettyBook(b))
	}
}
