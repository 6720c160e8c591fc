package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate applies the registry schema. Statements are idempotent so startup
// can run them unconditionally.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS certificate_bundles (
		id                  UUID PRIMARY KEY,
		issuance_id         TEXT NOT NULL,
		device_id           UUID NOT NULL,
		owner_account_id    UUID NOT NULL,
		range_start         BIGINT NOT NULL,
		range_end           BIGINT NOT NULL,
		status              TEXT NOT NULL,
		energy_source       TEXT NOT NULL,
		production_start    TIMESTAMPTZ NOT NULL,
		production_end      TIMESTAMPTZ NOT NULL,
		post_conversion     BOOLEAN NOT NULL DEFAULT FALSE,
		issuing_body        TEXT NOT NULL DEFAULT '',
		country_of_issuance TEXT NOT NULL DEFAULT '',
		scheme_reference    TEXT NOT NULL DEFAULT '',
		is_storage_unit     BOOLEAN NOT NULL DEFAULT FALSE,
		discharge_record_id UUID,
		discharge_start     TIMESTAMPTZ,
		discharge_end       TIMESTAMPTZ,
		efficiency_factor   DOUBLE PRECISION,
		beneficiary         TEXT,
		parent_id           UUID,
		lineage_hash        TEXT NOT NULL,
		version             BIGINT NOT NULL DEFAULT 1,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (range_end >= range_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bundles_owner ON certificate_bundles (owner_account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bundles_device ON certificate_bundles (device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bundles_issuance_range ON certificate_bundles (issuance_id, range_start)`,
	`CREATE INDEX IF NOT EXISTS idx_bundles_expirable ON certificate_bundles (status, production_end)`,

	`CREATE TABLE IF NOT EXISTS account_whitelist (
		recipient_account_id UUID NOT NULL,
		sender_account_id    UUID NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (recipient_account_id, sender_account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS ledger_events (
		sequence   BIGSERIAL PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS storage_charge_records (
		id                UUID PRIMARY KEY,
		device_id         UUID NOT NULL,
		energy_charged_wh BIGINT NOT NULL,
		efficiency_factor DOUBLE PRECISION NOT NULL,
		remaining_wh      BIGINT NOT NULL,
		charge_start      TIMESTAMPTZ NOT NULL,
		charge_end        TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (remaining_wh >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_charges_device_fifo ON storage_charge_records (device_id, charge_start)`,

	`CREATE TABLE IF NOT EXISTS storage_discharge_records (
		id                UUID PRIMARY KEY,
		device_id         UUID NOT NULL,
		discharged_wh     BIGINT NOT NULL,
		discharge_start   TIMESTAMPTZ NOT NULL,
		discharge_end     TIMESTAMPTZ NOT NULL,
		charge_record_ids UUID[] NOT NULL,
		allocated_wh      BIGINT[] NOT NULL,
		bundle_id         UUID NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_discharges_device ON storage_discharge_records (device_id)`,
}
