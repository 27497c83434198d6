// Package config loads application settings from an optional YAML file,
// a .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the application.
type Config struct {
	Env        string `yaml:"env" env:"LIBRARY_ENV" env-default:"local"`
	Database   `yaml:"database"`
	Log        `yaml:"log"`
	Loans      `yaml:"loans"`
	Admin      `yaml:"admin"`
	Credential `yaml:"credential"`
}

// Database selects the SQL driver and connection string.
type Database struct {
	Driver       string `yaml:"driver" env:"LIBRARY_DB_DRIVER" env-default:"sqlite3"`
	DSN          string `yaml:"dsn" env:"LIBRARY_DB_DSN" env-default:"library.db"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"LIBRARY_DB_MAX_OPEN_CONNS" env-default:"4"`
}

// Log configures the zap logger.
type Log struct {
	Level string `yaml:"level" env:"LIBRARY_LOG_LEVEL" env-default:"info"`
	Path  string `yaml:"path" env:"LIBRARY_LOG_PATH" env-default:"stderr"`
}

// Loans holds circulation policy.
type Loans struct {
	PeriodDays int   `yaml:"period_days" env:"LIBRARY_LOAN_PERIOD_DAYS" env-default:"14"`
	FinePerDay int64 `yaml:"fine_per_day" env:"LIBRARY_FINE_PER_DAY" env-default:"500"` // cents
}

// Admin is the account created by `init`.
type Admin struct {
	Username string `yaml:"username" env:"LIBRARY_ADMIN_USERNAME" env-default:"admin"`
	Email    string `yaml:"email" env:"LIBRARY_ADMIN_EMAIL" env-default:"admin@library.com"`
	Password string `yaml:"password" env:"LIBRARY_ADMIN_PASSWORD"`
}

// Credential tunes Argon2id. Zero keeps the library default.
type Credential struct {
	ArgonTime      uint32 `yaml:"argon_time" env:"LIBRARY_ARGON_TIME"`
	ArgonMemoryKiB uint32 `yaml:"argon_memory_kib" env:"LIBRARY_ARGON_MEMORY_KIB"`
	ArgonThreads   uint8  `yaml:"argon_threads" env:"LIBRARY_ARGON_THREADS"`
}

// Load reads path when it is non-empty and applies environment overrides.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is empty")
	}
	if c.Loans.PeriodDays <= 0 {
		return errors.New("loans.period_days must be positive")
	}
	if c.Loans.FinePerDay < 0 {
		return errors.New("loans.fine_per_day must not be negative")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Database:\n"+
			"  Driver: %s\n"+
			"  DSN: %s\n"+
			"  MaxOpenConns: %d\n"+
			"Log:\n"+
			"  Level: %s\n"+
			"  Path: %s\n"+
			"Loans:\n"+
			"  PeriodDays: %d\n"+
			"  FinePerDay: %d\n"+
			"Admin:\n"+
			"  Username: %s\n"+
			"  Email: %s\n",
		c.Env,
		c.Database.Driver,
		c.Database.DSN,
		c.Database.MaxOpenConns,
		c.Log.Level,
		c.Log.Path,
		c.Loans.PeriodDays,
		c.Loans.FinePerDay,
		c.Admin.Username,
		c.Admin.Email,
	)
}
