package store

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are idempotent and run in order at boot.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		year TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		total_paid BIGINT NOT NULL DEFAULT 0 CHECK (total_paid >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS monthly_templates (
		id UUID PRIMARY KEY,
		month SMALLINT NOT NULL CHECK (month BETWEEN 1 AND 12),
		year INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		amounts JSONB NOT NULL,
		included_years TEXT[] NOT NULL,
		deadline TIMESTAMPTZ NOT NULL,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS monthly_templates_active_period_idx
		ON monthly_templates (month, year) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS payment_records (
		id UUID PRIMARY KEY,
		member_id UUID NOT NULL REFERENCES members(id),
		month SMALLINT NOT NULL CHECK (month BETWEEN 1 AND 12),
		year INTEGER NOT NULL,
		academic_year TEXT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount >= 0),
		status TEXT NOT NULL,
		deadline TIMESTAMPTZ NOT NULL,
		member_confirmed_payment BOOLEAN NOT NULL DEFAULT FALSE,
		member_confirmed_at TIMESTAMPTZ,
		payment_proof TEXT,
		payment_date TIMESTAMPTZ,
		payment_method TEXT NOT NULL DEFAULT '',
		transaction_ref TEXT,
		verified_by UUID,
		verified_at TIMESTAMPTZ,
		failed_submission JSONB,
		rejection_reason TEXT,
		failure_source TEXT NOT NULL DEFAULT '',
		status_history JSONB NOT NULL DEFAULT '[]'::jsonb,
		notes TEXT NOT NULL DEFAULT '',
		template_id UUID REFERENCES monthly_templates(id) ON DELETE SET NULL,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT payment_records_member_period_key UNIQUE (member_id, month, year)
	)`,
	`CREATE INDEX IF NOT EXISTS payment_records_status_deadline_idx
		ON payment_records (status, deadline)`,
	`CREATE TABLE IF NOT EXISTS treasurer_notes (
		record_id UUID PRIMARY KEY REFERENCES payment_records(id) ON DELETE CASCADE,
		acknowledged_cash BOOLEAN NOT NULL DEFAULT TRUE,
		acknowledged_by UUID NOT NULL,
		acknowledged_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		id UUID PRIMARY KEY,
		singleton BOOLEAN NOT NULL DEFAULT TRUE UNIQUE CHECK (singleton),
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS wallet_transactions (
		id UUID PRIMARY KEY,
		seq BIGSERIAL,
		wallet_id UUID NOT NULL REFERENCES wallets(id),
		type TEXT NOT NULL CHECK (type IN ('credit', 'debit')),
		amount BIGINT NOT NULL CHECK (amount >= 0),
		description TEXT NOT NULL,
		actor_id UUID NOT NULL,
		payment_record_id UUID,
		previous_balance BIGINT NOT NULL,
		new_balance BIGINT NOT NULL CHECK (new_balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS wallet_transactions_record_credit_idx
		ON wallet_transactions (payment_record_id) WHERE type = 'credit' AND payment_record_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS wallet_transactions_seq_idx ON wallet_transactions (seq)`,
}

// EnsureSchema creates the tables and indexes the repository relies on.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	log.Printf("level=info component=store msg=\"schema ensured\" statements=%d", len(schemaStatements))
	return nil
}
