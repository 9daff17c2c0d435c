package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfeidau/certsign/internal/store"
)

// ApplicationName is reported to the server for every connection unless the
// connection string sets one.
const ApplicationName = "certsign"

// Pool defaults sized for API requests plus one reconciliation sweep at a time.
const (
	DefaultMaxConns        = 8
	DefaultMinConns        = 1
	DefaultMaxConnLifetime = time.Hour
	DefaultMaxConnIdleTime = 30 * time.Minute
	defaultConnectTimeout  = 10 * time.Second
)

// Config configures the PostgreSQL backed stores. Zero values use the defaults above.
type Config struct {
	// ConnString is a postgres:// URL or keyword/value DSN.
	ConnString string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies pending migrations when the stores are opened.
	AutoMigrate bool
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	if c.ConnString == "" {
		return nil, errors.New("connection string is required")
	}

	pc, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConns, DefaultMaxConns)
	pc.MinConns = min(orDefault(c.MinConns, DefaultMinConns), pc.MaxConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, DefaultMaxConnLifetime)
	pc.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, DefaultMaxConnIdleTime)

	if pc.ConnConfig.ConnectTimeout == 0 {
		pc.ConnConfig.ConnectTimeout = defaultConnectTimeout
	}
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}

	return pc, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Connect creates the shared pool and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Open connects to PostgreSQL, optionally migrates, and returns every store sharing
// one pool. The caller owns the pool and must close it.
func Open(ctx context.Context, cfg Config) (*store.Stores, *pgxpool.Pool, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	return NewStores(pool), pool, nil
}

// NewStores wraps an existing pool.
func NewStores(pool *pgxpool.Pool) *store.Stores {
	return &store.Stores{
		Users:         NewUserStore(pool),
		Registrations: NewRegistrationStore(pool),
		Credentials:   NewCredentialStore(pool),
		Packages:      NewPackageStore(pool),
		Keys:          NewKeyStore(pool),
	}
}
