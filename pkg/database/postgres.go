package database

import (
	"context"
	"fmt"
	"time"

	"support-chat/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool against the configured database.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		email         text NOT NULL UNIQUE,
		username      text UNIQUE,
		name          text NOT NULL DEFAULT '',
		password_hash text NOT NULL,
		is_admin      boolean NOT NULL DEFAULT false,
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id             uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		content        text NOT NULL,
		sender_id      uuid,
		session_id     uuid,
		recipient_id   uuid,
		is_admin       boolean NOT NULL DEFAULT false,
		message_status text NOT NULL DEFAULT 'sent',
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT visitor_addressing CHECK (is_admin OR ((sender_id IS NULL) <> (session_id IS NULL))),
		CONSTRAINT admin_addressing CHECK (NOT is_admin OR recipient_id IS NOT NULL),
		CONSTRAINT valid_status CHECK (message_status IN ('sent', 'delivered', 'read'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages (recipient_id, created_at)`,
}

// Migrate applies the schema statements in order. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
