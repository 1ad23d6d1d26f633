package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables and indexes the service needs.
// Statements are idempotent so the service can run them on every boot.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			balance BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'NGN',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			wallet_id UUID NOT NULL REFERENCES wallets(id),
			type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			balance_before BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			reference TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entries_reference
			ON ledger_entries (reference)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_wallet
			ON ledger_entries (wallet_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS products (
			ref TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			price BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			buyer_id TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			product_ref TEXT NOT NULL,
			product_name TEXT NOT NULL,
			total_amount BIGINT NOT NULL,
			delivery_address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			cancelled_by TEXT,
			cancellation_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			accepted_at TIMESTAMPTZ,
			delivered_at TIMESTAMPTZ,
			confirmed_at TIMESTAMPTZ,
			cancelled_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders (buyer_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders (seller_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_delivered
			ON orders (status, delivered_at)`,
		`CREATE TABLE IF NOT EXISTS escrows (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL UNIQUE,
			buyer_wallet_id UUID NOT NULL REFERENCES wallets(id),
			seller_wallet_id UUID NOT NULL REFERENCES wallets(id),
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			hold_reference TEXT NOT NULL,
			resolve_reference TEXT,
			refund_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS withdrawals (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			wallet_id UUID NOT NULL REFERENCES wallets(id),
			bank_account_id UUID NOT NULL,
			amount BIGINT NOT NULL,
			fee BIGINT NOT NULL,
			net_amount BIGINT NOT NULL,
			reference TEXT NOT NULL UNIQUE,
			gateway_reference TEXT,
			status TEXT NOT NULL,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals (user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS bank_accounts (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			bank_name TEXT NOT NULL,
			bank_code TEXT NOT NULL,
			account_number TEXT NOT NULL,
			account_name TEXT NOT NULL,
			recipient_code TEXT,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bank_accounts_user ON bank_accounts (user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db schema: %w", err)
		}
	}
	return nil
}
