package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/tourops/dispatch-core/internal/config"
)

// DB is the context-aware subset of *sqlx.DB the repositories depend on,
// so tests can substitute a mock and every query honors cancellation
// (spec §5 suspension points).
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	Rebind(query string) string
	Ping() error
	Close() error
}

// PostgresDB implements DB using sqlx over the pgx/v5 stdlib driver.
type PostgresDB struct {
	*sqlx.DB
}

// maskPassword redacts the password segment of a Postgres URL for safe
// logging.
func maskPassword(url string) string {
	re := regexp.MustCompile(`(postgres(?:ql)?://[^:]+:)([^@]+)(@.+)`)
	return re.ReplaceAllString(url, "${1}****${3}")
}

// NewConnection opens the pool used by every repository in this module.
func NewConnection(cfg config.DatabaseConfig) (DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	connectionURL := cfg.URL
	if !strings.Contains(connectionURL, "sslmode") {
		sep := "?"
		if strings.Contains(connectionURL, "?") {
			sep = "&"
		}
		connectionURL += sep + "sslmode=require"
	}

	pgxConfig, err := pgx.ParseConfig(connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL %s: %w", maskPassword(connectionURL), err)
	}
	// Simple protocol avoids prepared-statement bind errors behind
	// connection poolers (PgBouncer/Supavisor in transaction mode).
	pgxConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	connStr := stdlib.RegisterConnConfig(pgxConfig)

	db, err := sqlx.Connect("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}
