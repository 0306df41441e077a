// Package ledger tracks referrals and exchanges points for rewards and vouchers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/notify"
	"github.com/santajump/server/internal/repo"
)

var (
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrOutOfStock          = errors.New("reward out of stock")
	ErrRewardUnavailable   = errors.New("reward is not available")
	ErrUnknownTier         = errors.New("unknown voucher tier")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrSelfReferral        = errors.New("cannot refer yourself")
	ErrInvalidReward       = errors.New("invalid reward")
	ErrInvalidBonus        = errors.New("bonus must be positive")
)

// redemptionEmailTimeout bounds one background redemption email
const redemptionEmailTimeout = 30 * time.Second

// ConfigSource provides the current game configuration
type ConfigSource interface {
	Get(ctx context.Context) (model.GameConfig, error)
}

// UserStore is the user persistence needed by the ledger
type UserStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByReferralCode(ctx context.Context, code string) (model.User, error)
	AddBonusPlays(ctx context.Context, userID uuid.UUID, n int) (model.User, error)
}

// ReferralStore persists referral edges
type ReferralStore interface {
	// Create records the edge and sets the referred user's referred_by
	Create(ctx context.Context, referrerID, referredID uuid.UUID) (model.Referral, error)
	// Complete marks the pending referral of referredID rewarded and grants bonus plays to
	// the referrer. It reports false when no unrewarded referral exists.
	Complete(ctx context.Context, referredID uuid.UUID, bonus int) (model.Referral, bool, error)
	CountByReferrer(ctx context.Context, referrerID uuid.UUID) (total int, rewarded int, err error)
}

// RewardStore persists rewards and their redemptions
type RewardStore interface {
	Get(ctx context.Context, id uuid.UUID) (model.Reward, error)
	List(ctx context.Context, activeOnly bool) ([]model.Reward, error)
	Create(ctx context.Context, r model.Reward) (model.Reward, error)
	Update(ctx context.Context, r model.Reward) (model.Reward, error)
	// Redeem locks the user and reward rows, lets fn check and mutate them, then persists
	// both and inserts the returned redemption in one transaction.
	Redeem(ctx context.Context, userID, rewardID uuid.UUID, fn func(u *model.User, r *model.Reward) (model.RewardRedemption, error)) (model.RewardRedemption, model.User, error)
	ListRedemptions(ctx context.Context, limit int) ([]model.RewardRedemption, error)
}

// VoucherStore persists issued vouchers
type VoucherStore interface {
	// Issue locks the user row, lets fn deduct points and build the voucher, then persists
	// the user and inserts the voucher in one transaction.
	Issue(ctx context.Context, userID uuid.UUID, fn func(u *model.User) (model.Voucher, error)) (model.Voucher, model.User, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Voucher, error)
}

// Notifier delivers redemption emails
type Notifier interface {
	SendRedemption(ctx context.Context, to string, n notify.RedemptionNotice) error
}

// Service implements referrals and redemptions
type Service struct {
	users     UserStore
	referrals ReferralStore
	rewards   RewardStore
	vouchers  VoucherStore
	config    ConfigSource
	notifier  Notifier

	pending       sync.WaitGroup
	notifyTimeout time.Duration
}

// NewService creates a ledger service. notifier may be nil.
func NewService(users UserStore, referrals ReferralStore, rewards RewardStore, vouchers VoucherStore, config ConfigSource, notifier Notifier) *Service {
	return &Service{
		users:     users,
		referrals: referrals,
		rewards:   rewards,
		vouchers:  vouchers,
		config:    config,
		notifier:  notifier,

		notifyTimeout: redemptionEmailTimeout,
	}
}

// LinkReferral records that newUser signed up with code. An empty code is a no-op.
func (s *Service) LinkReferral(ctx context.Context, newUser model.User, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	referrer, err := s.users.GetByReferralCode(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrInvalidReferralCode, code)
	}
	if err != nil {
		return fmt.Errorf("look up referrer: %w", err)
	}
	if referrer.ID == newUser.ID {
		return ErrSelfReferral
	}
	if _, err := s.referrals.Create(ctx, referrer.ID, newUser.ID); err != nil {
		return fmt.Errorf("create referral: %w", err)
	}
	log.Printf("[ledger] referral recorded: %s -> %s", referrer.ID, newUser.ID)
	return nil
}

// CompleteReferral grants the referrer's bonus once the referred user verified a phone
func (s *Service) CompleteReferral(ctx context.Context, referredID uuid.UUID) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return err
	}
	ref, ok, err := s.referrals.Complete(ctx, referredID, cfg.ReferralBonus)
	if err != nil {
		return fmt.Errorf("complete referral: %w", err)
	}
	if ok {
		log.Printf("[ledger] referral bonus %d granted to %s for %s", cfg.ReferralBonus, ref.ReferrerID, referredID)
	}
	return nil
}

// ReferralStats returns how many users referrerID brought in and how many of them were rewarded
func (s *Service) ReferralStats(ctx context.Context, referrerID uuid.UUID) (int, int, error) {
	total, rewarded, err := s.referrals.CountByReferrer(ctx, referrerID)
	if err != nil {
		return 0, 0, fmt.Errorf("count referrals: %w", err)
	}
	return total, rewarded, nil
}

// GrantBonus adds n bonus plays to a user (admin action)
func (s *Service) GrantBonus(ctx context.Context, userID uuid.UUID, n int) (model.User, error) {
	if n <= 0 {
		return model.User{}, ErrInvalidBonus
	}
	return s.users.AddBonusPlays(ctx, userID, n)
}

// RedeemReward exchanges points for a stocked reward
func (s *Service) RedeemReward(ctx context.Context, userID, rewardID uuid.UUID) (model.RewardRedemption, model.User, error) {
	code, err := newRedemptionCode()
	if err != nil {
		return model.RewardRedemption{}, model.User{}, err
	}

	var rewardName string
	red, user, err := s.rewards.Redeem(ctx, userID, rewardID, func(u *model.User, r *model.Reward) (model.RewardRedemption, error) {
		if !r.Active {
			return model.RewardRedemption{}, ErrRewardUnavailable
		}
		if r.Stock != nil && *r.Stock <= 0 {
			return model.RewardRedemption{}, ErrOutOfStock
		}
		if u.TotalScore < r.Cost {
			return model.RewardRedemption{}, ErrInsufficientPoints
		}
		u.TotalScore -= r.Cost
		if r.Stock != nil {
			left := *r.Stock - 1
			r.Stock = &left
		}
		rewardName = r.Name
		return model.RewardRedemption{
			ID:       uuid.New(),
			UserID:   u.ID,
			RewardID: r.ID,
			Cost:     r.Cost,
			Code:     code,
		}, nil
	})
	if err != nil {
		return model.RewardRedemption{}, model.User{}, err
	}

	s.notify(ctx, user, notify.RedemptionNotice{Item: rewardName, Code: red.Code, Points: red.Cost})
	return red, user, nil
}

// RedeemVoucher exchanges points for a voucher of the tier costing points
func (s *Service) RedeemVoucher(ctx context.Context, userID uuid.UUID, points int) (model.Voucher, model.User, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return model.Voucher{}, model.User{}, err
	}
	tier, ok := cfg.Tier(points)
	if !ok {
		return model.Voucher{}, model.User{}, ErrUnknownTier
	}
	code, err := newVoucherCode()
	if err != nil {
		return model.Voucher{}, model.User{}, err
	}

	v, user, err := s.vouchers.Issue(ctx, userID, func(u *model.User) (model.Voucher, error) {
		if u.TotalScore < tier.Points {
			return model.Voucher{}, ErrInsufficientPoints
		}
		u.TotalScore -= tier.Points
		return model.Voucher{
			ID:     uuid.New(),
			UserID: u.ID,
			Code:   code,
			Points: tier.Points,
			Value:  tier.Value,
			Status: model.VoucherIssued,
		}, nil
	})
	if err != nil {
		return model.Voucher{}, model.User{}, err
	}

	s.notify(ctx, user, notify.RedemptionNotice{
		Item:   "Voucher " + tier.Value.StringFixed(0) + " VND",
		Code:   v.Code,
		Points: v.Points,
	})
	return v, user, nil
}

// Vouchers lists a user's vouchers
func (s *Service) Vouchers(ctx context.Context, userID uuid.UUID) ([]model.Voucher, error) {
	return s.vouchers.ListByUser(ctx, userID)
}

// Rewards lists rewards; activeOnly hides inactive ones
func (s *Service) Rewards(ctx context.Context, activeOnly bool) ([]model.Reward, error) {
	return s.rewards.List(ctx, activeOnly)
}

// Redemptions lists the most recent reward redemptions
func (s *Service) Redemptions(ctx context.Context, limit int) ([]model.RewardRedemption, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.rewards.ListRedemptions(ctx, limit)
}

// RewardInput is the admin-editable part of a reward
type RewardInput struct {
	Name        string
	Description string
	Cost        int
	Stock       *int
	Active      bool
}

func (in RewardInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidReward)
	}
	if in.Cost <= 0 {
		return fmt.Errorf("%w: cost must be positive", ErrInvalidReward)
	}
	if in.Stock != nil && *in.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidReward)
	}
	return nil
}

// CreateReward adds a reward; its slug is derived from the name
func (s *Service) CreateReward(ctx context.Context, in RewardInput) (model.Reward, error) {
	if err := in.validate(); err != nil {
		return model.Reward{}, err
	}
	return s.rewards.Create(ctx, model.Reward{
		ID:          uuid.New(),
		Slug:        slug.Make(in.Name),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Cost:        in.Cost,
		Stock:       in.Stock,
		Active:      in.Active,
	})
}

// UpdateReward replaces the editable fields of a reward; the slug is kept
func (s *Service) UpdateReward(ctx context.Context, id uuid.UUID, in RewardInput) (model.Reward, error) {
	if err := in.validate(); err != nil {
		return model.Reward{}, err
	}
	r, err := s.rewards.Get(ctx, id)
	if err != nil {
		return model.Reward{}, err
	}
	r.Name = strings.TrimSpace(in.Name)
	r.Description = in.Description
	r.Cost = in.Cost
	r.Stock = in.Stock
	r.Active = in.Active
	return s.rewards.Update(ctx, r)
}

// notify emails the user in the background after a committed redemption; failures are
// only logged
func (s *Service) notify(ctx context.Context, u model.User, n notify.RedemptionNotice) {
	if s.notifier == nil || u.Email == nil || *u.Email == "" {
		return
	}
	to, userID := *u.Email, u.ID
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.SendRedemption(ctx, to, n); err != nil {
			log.Printf("[ledger] redemption email to user %s failed: %v", userID, err)
		}
	}()
}

// Wait blocks until every queued redemption email has been attempted
func (s *Service) Wait() {
	s.pending.Wait()
}
