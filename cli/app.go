// Package cli is the terminal front end: a cobra command tree that can run
// one command per process or, through `shell`, many commands under a single
// login.
package cli

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/term"

	"librarydesk/auth"
	"librarydesk/config"
	"librarydesk/credential"
	"librarydesk/library"
	"librarydesk/logger"
)

// App holds everything a command needs. It is opened lazily by the root
// command and reused by every command run from the shell.
type App struct {
	ConfigPath string
	Login      string

	// ReadPassword prompts for a secret. Defaults to a masked terminal read.
	ReadPassword func(prompt string) (string, error)
	// Now replaces time.Now for the circulation clock when set.
	Now func() time.Time

	cfg     *config.Config
	mgr     *library.LibraryManager
	auth    *auth.AuthSystem
	session *auth.Session
	out     io.Writer
}

// NewApp returns an unopened App writing to out.
func NewApp(out io.Writer) *App {
	return &App{ReadPassword: readPassword, out: out}
}

// readPassword securely reads a password with masking
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(os.Stderr) // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// Open loads configuration, starts logging and connects to the database.
// Opening an already open App is a no-op.
func (a *App) Open(ctx context.Context) error {
	if a.mgr != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath())
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.Log.Level, cfg.Log.Path); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	credential.SetParams(credential.Params{
		Time:      cfg.Credential.ArgonTime,
		MemoryKiB: cfg.Credential.ArgonMemoryKiB,
		Threads:   cfg.Credential.ArgonThreads,
	})

	db, err := library.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	opts := []library.Option{
		library.WithLoanPeriod(cfg.Loans.PeriodDays),
		library.WithFinePerDay(library.Money(cfg.Loans.FinePerDay)),
	}
	a.auth = auth.New(db)
	if a.Now != nil {
		opts = append(opts, library.WithClock(a.Now))
		a.auth.SetClock(a.Now)
	}
	a.cfg = cfg
	a.mgr = library.NewManager(db, opts...)
	logger.Log.Debugw("application opened", "driver", cfg.Database.Driver, "env", cfg.Env)
	return nil
}

// configPath is --config, falling back to LIBRARY_CONFIG.
func (a *App) configPath() string {
	if a.ConfigPath != "" {
		return a.ConfigPath
	}
	return os.Getenv("LIBRARY_CONFIG")
}

// Close releases the database and flushes logs.
func (a *App) Close() error {
	if a.mgr == nil {
		return nil
	}
	if a.session.Valid() {
		a.auth.Logout(a.session)
	}
	err := a.mgr.Close()
	a.mgr = nil
	logger.Sync()
	return err
}

// Manager exposes the circulation façade.
func (a *App) Manager() *library.LibraryManager { return a.mgr }

// Session logs in on first use. The login comes from --login or
// LIBRARY_LOGIN, the password from LIBRARY_PASSWORD or a prompt.
func (a *App) Session(ctx context.Context) (*auth.Session, error) {
	if a.session.Valid() {
		return a.session, nil
	}

	login := a.Login
	if login == "" {
		login = os.Getenv("LIBRARY_LOGIN")
	}
	if login == "" {
		return nil, errors.New("Login required: pass --login or set LIBRARY_LOGIN")
	}
	password := os.Getenv("LIBRARY_PASSWORD")
	if password == "" {
		var err error
		if password, err = a.ReadPassword("Password: "); err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
	}

	s, err := a.auth.Login(ctx, login, password)
	if err != nil {
		return nil, err
	}
	a.session = s
	return s, nil
}

// Staff returns the session when it belongs to an admin or librarian.
func (a *App) Staff(ctx context.Context) (*auth.Session, error) {
	s, err := a.Session(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.RequireStaff(); err != nil {
		return nil, err
	}
	return s, nil
}

// Logout ends the current session, if any.
func (a *App) Logout() {
	if a.session.Valid() {
		a.auth.Logout(a.session)
	}
	a.session = nil
}

// Describe turns err into the message shown to the user. Database failures
// are logged in full and reported generically; everything else already
// carries a readable message.
func Describe(err error) string {
	var (
		liteErr sqlite3.Error
		pgErr   *pgconn.PgError
	)
	switch {
	case errors.As(err, &liteErr), errors.As(err, &pgErr),
		errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		logger.Log.Errorw("persistence failure", "error", err)
		return "Operation failed: database error"
	}
	return err.Error()
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("Invalid %s id %q", what, s)
	}
	return id, nil
}

// parseDate accepts YYYY-MM-DD. An empty string yields the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("Invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}
