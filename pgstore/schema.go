package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Schema creates the organizations, users and departments tables.
const Schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	owner_id   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	id                    TEXT PRIMARY KEY,
	email                 TEXT NOT NULL UNIQUE,
	name                  TEXT NOT NULL,
	role                  TEXT NOT NULL,
	organization_id       TEXT NOT NULL REFERENCES organizations (id) ON DELETE CASCADE,
	assigned_branches     JSONB NOT NULL DEFAULT '[]',
	assigned_departments  JSONB NOT NULL DEFAULT '[]',
	password_hash         TEXT NOT NULL,
	password_history      JSONB NOT NULL DEFAULT '[]',
	status                TEXT NOT NULL,
	failed_login_attempts INTEGER NOT NULL DEFAULT 0,
	locked_until          TIMESTAMPTZ,
	last_login_at         TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS departments (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations (id) ON DELETE CASCADE,
	branch_id       TEXT NOT NULL
);
`

// Open connects to dsn with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
