// Package postgres implements the repository ports (internal/repository)
// and the unit-of-work transaction controller against PostgreSQL, using
// sqlx for struct-scanning queries and lib/pq as the driver. SQL here is
// kept portable (no PostgreSQL-specific DDL); index intent is documented
// in comments rather than issued as migrations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const dbConnectionTimeout = 5 * time.Second

// Config holds connection pool settings for the scheduling engine's
// PostgreSQL-backed repositories.
type Config struct {
	Host            string        `yaml:"host"              env:"DB_HOST"`
	Port            int           `yaml:"port"              env:"DB_PORT"`
	User            string        `yaml:"user"              env:"DB_USER"`
	Password        string        `yaml:"password"          env:"DB_PASSWORD"` //nolint:gosec // G117: DB connection config
	Database        string        `yaml:"database"          env:"DB_NAME"`
	SSLMode         string        `yaml:"ssl_mode"          env:"DB_SSL_MODE"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SetDefaults fills zero-valued pool settings.
func (c *Config) SetDefaults() {
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 20
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
}

// Connection wraps the pooled sqlx handle shared by every repository.
type Connection struct {
	DB *sqlx.DB
}

// NewConnection opens and pings a PostgreSQL connection pool.
func NewConnection(cfg Config) (*Connection, error) {
	cfg.SetDefaults()

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbConnectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Connection{DB: db}, nil
}

// Close closes the underlying connection pool.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Ping checks database connectivity; used by internal/health checks.
func (c *Connection) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}
