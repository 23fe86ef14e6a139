// Package postgres implements the persistence store against PostgreSQL
// using pgx/v5 and sqlx, with goose-managed migrations.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewConnConfig parses dsn into a pgx.ConnConfig with
// QueryExecModeDescribeExec so schema migrations applied while connections
// are open never invalidate a cached prepared-statement plan (the failure
// mode is "cached plan must not change result type" after a rolling
// migration).
func NewConnConfig(dsn string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	return cfg, nil
}

// Connect opens a connection pool against dsn through the pgx stdlib
// driver, exposed as an *sqlx.DB so the store can use sqlx's struct-scanning
// query helpers on top of pgx's type handling.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	cfg, err := NewConnConfig(dsn)
	if err != nil {
		return nil, err
	}

	sqlDB := stdlib.OpenDB(*cfg)
	db := sqlx.NewDb(sqlDB, "pgx")
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies every pending embedded migration to db.
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
