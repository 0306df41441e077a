package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/santajump/server/internal/model"
)

// ConfigRepo loads and saves the single game configuration row
type ConfigRepo interface {
	Get(ctx context.Context) (model.GameConfig, error)
	Save(ctx context.Context, cfg model.GameConfig) (model.GameConfig, error)
}

type configRepo struct {
	db *sql.DB
}

// NewConfigRepo creates a new ConfigRepo instance
func NewConfigRepo(db *sql.DB) ConfigRepo {
	return &configRepo{db: db}
}

const configColumns = `max_plays_per_day, phone_verify_bonus, referral_bonus, voucher_tiers,
	test_accounts, max_score_per_second, suspicion_threshold, updated_at`

func scanConfig(row rowScanner) (model.GameConfig, error) {
	var cfg model.GameConfig
	var tiers []byte
	err := row.Scan(
		&cfg.MaxPlaysPerDay,
		&cfg.PhoneVerifyBonus,
		&cfg.ReferralBonus,
		&tiers,
		pq.Array(&cfg.TestAccounts),
		&cfg.MaxScorePerSecond,
		&cfg.SuspicionThreshold,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return model.GameConfig{}, err
	}
	if err := json.Unmarshal(tiers, &cfg.VoucherTiers); err != nil {
		return model.GameConfig{}, fmt.Errorf("decode voucher_tiers: %w", err)
	}
	return cfg, nil
}

// Get returns the stored configuration, or the defaults when the row is missing
func (r *configRepo) Get(ctx context.Context) (model.GameConfig, error) {
	cfg, err := scanConfig(r.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM game_config WHERE id = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultGameConfig(), nil
	}
	if err != nil {
		return model.GameConfig{}, fmt.Errorf("get game config: %w", err)
	}
	return cfg, nil
}

// Save upserts the configuration row
func (r *configRepo) Save(ctx context.Context, cfg model.GameConfig) (model.GameConfig, error) {
	tiers, err := json.Marshal(cfg.VoucherTiers)
	if err != nil {
		return model.GameConfig{}, fmt.Errorf("encode voucher_tiers: %w", err)
	}
	testAccounts := cfg.TestAccounts
	if testAccounts == nil {
		testAccounts = []string{}
	}
	saved, err := scanConfig(r.db.QueryRowContext(ctx, `
		INSERT INTO game_config (id, max_plays_per_day, phone_verify_bonus, referral_bonus, voucher_tiers,
		                         test_accounts, max_score_per_second, suspicion_threshold, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			max_plays_per_day = EXCLUDED.max_plays_per_day,
			phone_verify_bonus = EXCLUDED.phone_verify_bonus,
			referral_bonus = EXCLUDED.referral_bonus,
			voucher_tiers = EXCLUDED.voucher_tiers,
			test_accounts = EXCLUDED.test_accounts,
			max_score_per_second = EXCLUDED.max_score_per_second,
			suspicion_threshold = EXCLUDED.suspicion_threshold,
			updated_at = now()
		RETURNING `+configColumns,
		cfg.MaxPlaysPerDay, cfg.PhoneVerifyBonus, cfg.ReferralBonus, string(tiers),
		pq.Array(testAccounts), cfg.MaxScorePerSecond, cfg.SuspicionThreshold))
	if err != nil {
		return model.GameConfig{}, fmt.Errorf("save game config: %w", err)
	}
	return saved, nil
}
