package library

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"librarydesk/logger"
)

// Supported driver names, as registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

//go:embed migrations
var migrationFS embed.FS

// Database provides high-level helpers around a SQL connection.
type Database struct {
	db     *sqlx.DB
	driver string
}

// NewDatabase opens (or creates) the SQLite database at dbPath and applies
// schema migrations.
func NewDatabase(dbPath string) (*Database, error) {
	return Open(context.Background(), DriverSQLite, dbPath)
}

// Open connects with driver to dsn and migrates the schema. For SQLite, dsn
// is a file path.
func Open(ctx context.Context, driver, dsn string) (*Database, error) {
	switch driver {
	case DriverSQLite:
		// Ensure directory exists so first-run succeeds.
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		// Immediate transactions take the write lock up front so that the
		// check-then-update in borrow and return cannot interleave.
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// WAL improves write concurrency.
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}

	d := &Database{db: db, driver: driver}
	if err := d.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// NewDatabaseFromDB wraps an already configured connection without running
// migrations.
func NewDatabaseFromDB(db *sqlx.DB) *Database {
	return &Database{db: db, driver: db.DriverName()}
}

// Close closes the DB.
func (d *Database) Close() error { return d.db.Close() }

// SetMaxOpenConns bounds the connection pool.
func (d *Database) SetMaxOpenConns(n int) {
	if n > 0 {
		d.db.SetMaxOpenConns(n)
	}
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

// Migrate applies every pending embedded migration for the current driver.
func (d *Database) Migrate() error {
	src, err := iofs.New(migrationFS, "migrations/"+d.driver)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	var drv database.Driver
	switch d.driver {
	case DriverSQLite:
		drv, err = sqlitemigrate.WithInstance(d.db.DB, &sqlitemigrate.Config{})
	case DriverPostgres:
		drv, err = pgxmigrate.WithInstance(d.db.DB, &pgxmigrate.Config{})
	default:
		err = fmt.Errorf("no migrations for driver %q", d.driver)
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.driver, drv)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migration: %w", err)
	}

	version, _, _ := m.Version()
	logger.Log.Infow("schema ready", "driver", d.driver, "version", version)
	return nil
}

// ---------------------------------------------------------------------------
// Statement helpers
// ---------------------------------------------------------------------------

// withTx runs fn in one transaction, committing only when fn succeeds.
func (d *Database) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// get scans a single row into dest. Queries use ? placeholders and IN (?)
// slice expansion; both are rebound for the executor's driver.
func get(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	query, args, err := expand(q, query, args)
	if err != nil {
		return err
	}
	err = sqlx.GetContext(ctx, q, dest, query, args...)
	logger.Query(query, args, nil, err)
	return err
}

// selectAll scans every row into the slice dest.
func selectAll(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	query, args, err := expand(q, query, args)
	if err != nil {
		return err
	}
	err = sqlx.SelectContext(ctx, q, dest, query, args...)
	logger.Query(query, args, nil, err)
	return err
}

// exec runs a write and returns the affected row count.
func exec(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	query, args, err := expand(q, query, args)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	var rows int64
	if res != nil && err == nil {
		rows, err = res.RowsAffected()
	}
	logger.Query(query, args, rows, err)
	return rows, err
}

func expand(q sqlx.ExtContext, query string, args []any) (string, []any, error) {
	if strings.Contains(query, "(?)") {
		var err error
		if query, args, err = sqlx.In(query, args...); err != nil {
			return "", nil, fmt.Errorf("expand query: %w", err)
		}
	}
	return q.Rebind(query), args, nil
}

func exists(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (bool, error) {
	var ok bool
	err := get(ctx, q, &ok, "SELECT EXISTS("+query+")", args...)
	return ok, err
}
