// Package tests holds integration tests that run against a real PostgreSQL database.
// They are skipped unless DATABASE_URL is set.
package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/santajump/server/internal/db"
)

// dataTables lists every table written by the application, children first
var dataTables = "ad_placements, vouchers, reward_redemptions, rewards, referrals, game_sessions, otp_sessions, users"

// RunMigrations applies the embedded schema migrations.
func RunMigrations(database *sql.DB) error {
	return db.Migrate(database)
}

// TruncateTables empties all data tables and restores the default game config row.
func TruncateTables(ctx context.Context, database *sql.DB) error {
	if _, err := database.ExecContext(ctx, "TRUNCATE TABLE "+dataTables+" RESTART IDENTITY CASCADE"); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	_, err := database.ExecContext(ctx, `
		UPDATE game_config SET
			max_plays_per_day = 3,
			phone_verify_bonus = 2,
			referral_bonus = 1,
			voucher_tiers = '[{"points":500,"value":"20000"},{"points":1000,"value":"50000"},{"points":2000,"value":"100000"}]',
			test_accounts = '{}',
			max_score_per_second = 50,
			suspicion_threshold = 70,
			updated_at = now()
		WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("reset game config: %w", err)
	}
	return nil
}
