package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/edgecv/fleet-console/internal/platform/env"
)

// Config describes the optional deployment audit database. An empty URL
// disables auditing.
type Config struct {
	URL             string        `validate:"omitempty,startswith=postgres://|startswith=postgresql://"`
	PingTimeout     time.Duration `validate:"gt=0"`
	MaxOpenConns    int           `validate:"gte=1"`
	MaxIdleConns    int           `validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
	ConnMaxIdleTime time.Duration `validate:"gte=0"`
}

func ConfigFromEnv() (Config, error) {
	pingTimeout, err := env.Duration("CONSOLE_AUDIT_DB_PING_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	// The audit trail sees one insert per submission, so the pool stays small.
	maxOpenConns, err := env.Int("CONSOLE_AUDIT_DB_MAX_OPEN_CONNS", 4)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := env.Int("CONSOLE_AUDIT_DB_MAX_IDLE_CONNS", 2)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := env.Duration("CONSOLE_AUDIT_DB_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	connMaxIdleTime, err := env.Duration("CONSOLE_AUDIT_DB_CONN_MAX_IDLE_TIME", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		URL:             strings.TrimSpace(env.String("CONSOLE_AUDIT_DATABASE_URL", "")),
		PingTimeout:     pingTimeout,
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		ConnMaxIdleTime: connMaxIdleTime,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return c.URL != ""
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("audit database config: %w", err)
	}
	return nil
}

// Open connects with the pgx driver and pings once within PingTimeout.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, errors.New("CONSOLE_AUDIT_DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := Ping(ctx, db, cfg.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Ping bounds a connectivity check by timeout; readiness probes share it.
func Ping(ctx context.Context, db Pinger, timeout time.Duration) error {
	if db == nil {
		return errors.New("database is not configured")
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
