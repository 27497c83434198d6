// Command import_books loads books from a CSV file with the columns
// title,author,isbn,category,year,copies. Rows whose ISBN is already in the
// catalog are skipped.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"librarydesk/config"
	"librarydesk/library"
	"librarydesk/logger"
)

func main() {
	configPath := pflag.String("config", os.Getenv("LIBRARY_CONFIG"), "path to a YAML config file")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: import_books [--config file] books.csv\n")
	}
	pflag.Parse()
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.Log.Level, cfg.Log.Path); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := library.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	manager := library.NewManager(db)
	defer manager.Close()

	f, err := os.Open(pflag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", pflag.Arg(0), err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("Importing books from %s...\n", pflag.Arg(0))
	res, err := importBooks(ctx, manager, f, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading CSV: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", res.Imported)
	fmt.Printf("Skipped (ISBN exists): %d\n", res.Skipped)
	fmt.Printf("Errors: %d\n", res.Failed)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

type importResult struct {
	Imported, Skipped, Failed int
}

// importBooks adds every row of r to the catalog. A leading header row is
// recognised by its first cell reading "title". Bad rows are reported on out
// and counted; only an unreadable file stops the import.
func importBooks(ctx context.Context, manager *library.LibraryManager, r io.Reader, out io.Writer) (importResult, error) {
	var res importResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "title") {
			continue
		}

		in, err := parseRow(rec)
		if err != nil {
			fmt.Fprintf(out, "line %d: ERROR - %v\n", line, err)
			res.Failed++
			continue
		}

		if in.ISBN != "" {
			_, err := manager.Database().GetBookByISBN(ctx, in.ISBN)
			switch {
			case err == nil:
				fmt.Fprintf(out, "line %d: %s already in catalog, skipping\n", line, in.ISBN)
				res.Skipped++
				continue
			case !errors.Is(err, library.ErrBookNotFound):
				return res, err
			}
		}

		fmt.Fprintf(out, "Importing: %s by %s... ", in.Title, in.Author)
		id, err := manager.AddBook(ctx, in)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			res.Failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", id)
		res.Imported++
	}
}

func parseRow(rec []string) (library.BookInput, error) {
	if len(rec) < 2 {
		return library.BookInput{}, fmt.Errorf("expected at least title and author, got %d column(s)", len(rec))
	}
	col := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	in := library.BookInput{
		Title:    col(0),
		Author:   col(1),
		ISBN:     col(2),
		Category: col(3),
		Copies:   1,
	}
	if s := col(4); s != "" {
		year, err := strconv.Atoi(s)
		if err != nil {
			return in, fmt.Errorf("invalid year %q", s)
		}
		in.Year = year
	}
	if s := col(5); s != "" {
		copies, err := strconv.Atoi(s)
		if err != nil {
			return in, fmt.Errorf("invalid copies %q", s)
		}
		in.Copies = copies
	}
	return in, nil
}
