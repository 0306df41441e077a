package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
)

// ReferralRepo defines the interface for referral repository operations
type ReferralRepo interface {
	Create(ctx context.Context, referrerID, referredID uuid.UUID) (model.Referral, error)
	Complete(ctx context.Context, referredID uuid.UUID, bonus int) (model.Referral, bool, error)
	CountByReferrer(ctx context.Context, referrerID uuid.UUID) (total, rewarded int, err error)
}

type referralRepo struct {
	db *sql.DB
}

// NewReferralRepo creates a new ReferralRepo instance
func NewReferralRepo(db *sql.DB) ReferralRepo {
	return &referralRepo{db: db}
}

const referralColumns = `id, referrer_id, referred_id, reward_given, rewarded_at, created_at`

func scanReferral(row rowScanner) (model.Referral, error) {
	var ref model.Referral
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.RewardGiven, &ref.RewardedAt, &ref.CreatedAt)
	return ref, err
}

// Create records the referral and sets the referred user's referred_by. A user can be
// referred only once; a second referral yields ErrDuplicate.
func (r *referralRepo) Create(ctx context.Context, referrerID, referredID uuid.UUID) (model.Referral, error) {
	var ref model.Referral
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		ref, err = scanReferral(tx.QueryRowContext(ctx, `
			INSERT INTO referrals (referrer_id, referred_id)
			VALUES ($1, $2)
			RETURNING `+referralColumns, referrerID, referredID))
		if err != nil {
			return mapErr(err, "insert referral")
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET referred_by = $2 WHERE id = $1`, referredID, referrerID)
		return mapErr(err, "set referred_by")
	})
	if err != nil {
		return model.Referral{}, err
	}
	return ref, nil
}

// Complete flips reward_given on the referral of referredID and credits the referrer in
// one transaction. The conditional update makes the grant happen at most once.
func (r *referralRepo) Complete(ctx context.Context, referredID uuid.UUID, bonus int) (model.Referral, bool, error) {
	var ref model.Referral
	var done bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		ref, err = scanReferral(tx.QueryRowContext(ctx, `
			UPDATE referrals
			SET reward_given = true, rewarded_at = now()
			WHERE referred_id = $1 AND reward_given = false
			RETURNING `+referralColumns, referredID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark referral rewarded: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET bonus_plays = bonus_plays + $2 WHERE id = $1`, ref.ReferrerID, bonus)
		if err != nil {
			return fmt.Errorf("credit referrer: %w", err)
		}
		done = true
		return nil
	})
	if err != nil {
		return model.Referral{}, false, err
	}
	return ref, done, nil
}

// CountByReferrer returns how many users the referrer brought in and how many of those
// have been rewarded
func (r *referralRepo) CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int, int, error) {
	var total, rewarded int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE reward_given)
		FROM referrals
		WHERE referrer_id = $1
	`, referrerID).Scan(&total, &rewarded)
	if err != nil {
		return 0, 0, fmt.Errorf("count referrals: %w", err)
	}
	return total, rewarded, nil
}
