package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags certificate service sessions in pg_stat_activity.
const ApplicationName = "coursecert"

// Pool defaults sized for single-row certificate lookups and upserts.
const (
	DefaultMaxConns         int32 = 10
	DefaultMinConns         int32 = 1
	DefaultConnLifetime           = time.Hour
	DefaultConnIdleTime           = 15 * time.Minute
	DefaultHealthCheck            = 30 * time.Second
	DefaultConnectTimeout         = 5 * time.Second
	DefaultStatementTimeout       = 5 * time.Second
)

// PoolConfig sizes the connection pool shared by the certificate, principal
// and session stores. Zero values take the Default* constants.
type PoolConfig struct {
	// ConnString is a postgres:// URL or key=value DSN.
	ConnString string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthCheck     time.Duration
	ConnectTimeout  time.Duration

	// StatementTimeout bounds every query so a stuck verification lookup
	// releases its connection.
	StatementTimeout time.Duration
}

func (c *PoolConfig) Validate() error {
	if c.ConnString == "" {
		return errors.New("connection string is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns (%d) cannot exceed max conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

func (c *PoolConfig) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = min(DefaultMinConns, c.MaxConns)
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultConnLifetime
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultConnIdleTime
	}
	if c.HealthCheck == 0 {
		c.HealthCheck = DefaultHealthCheck
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.StatementTimeout == 0 {
		c.StatementTimeout = DefaultStatementTimeout
	}
}

// parse builds the pgxpool configuration. Values in the connection string for
// application_name and statement_timeout win over ours.
func (c *PoolConfig) parse() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = c.MaxConns
	poolConfig.MinConns = c.MinConns
	poolConfig.MaxConnLifetime = c.MaxConnLifetime
	poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = c.HealthCheck
	poolConfig.ConnConfig.ConnectTimeout = c.ConnectTimeout

	params := poolConfig.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = ApplicationName
	}
	if params["statement_timeout"] == "" {
		params["statement_timeout"] = strconv.FormatInt(c.StatementTimeout.Milliseconds(), 10)
	}

	return poolConfig, nil
}

// NewPool opens the certificate database pool and pings it.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.New("pool config is required")
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	poolConfig, err := cfg.parse()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping certificate database: %w", err)
	}

	return pool, nil
}
