package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GameStatus is the lifecycle state of a game session
type GameStatus string

const (
	GameStarted   GameStatus = "started"
	GameCompleted GameStatus = "completed"
	GameInvalid   GameStatus = "invalid"
)

// User represents a player. At least one of Phone and Email is set.
type User struct {
	ID              uuid.UUID
	Phone           *string
	Email           *string
	DisplayName     string
	ReferralCode    string
	ReferredBy      *uuid.UUID
	PhoneVerifiedAt *time.Time
	PlaysToday      int
	BonusPlays      int
	TotalScore      int
	LastPlayDate    *time.Time
	CreatedAt       time.Time
}

// Contact returns the phone number if present, otherwise the email address
func (u User) Contact() string {
	if u.Phone != nil && *u.Phone != "" {
		return *u.Phone
	}
	if u.Email != nil {
		return *u.Email
	}
	return ""
}

// GameSession is a single play of the game
type GameSession struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Status          GameStatus
	ClientScore     int
	ValidatedScore  int
	SuspicionScore  int
	SuspicionReason *string
	UsedBonusPlay   bool
	StartedAt       time.Time
	EndedAt         *time.Time
}

// AddSuspicion appends reason to the session's suspicion reason
func (s *GameSession) AddSuspicion(reason string) {
	if reason == "" {
		return
	}
	if s.SuspicionReason == nil || *s.SuspicionReason == "" {
		s.SuspicionReason = &reason
		return
	}
	joined := *s.SuspicionReason + "; " + reason
	s.SuspicionReason = &joined
}

// Referral links a referrer to the user who signed up with their code
type Referral struct {
	ID          uuid.UUID
	ReferrerID  uuid.UUID
	ReferredID  uuid.UUID
	RewardGiven bool
	RewardedAt  *time.Time
	CreatedAt   time.Time
}

// Reward is a stocked item that can be exchanged for points
type Reward struct {
	ID          uuid.UUID
	Slug        string
	Name        string
	Description string
	Cost        int
	Stock       *int // nil means unlimited
	Active      bool
	CreatedAt   time.Time
}

// RewardRedemption records a reward exchanged by a user
type RewardRedemption struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	RewardID  uuid.UUID
	Cost      int
	Code      string
	CreatedAt time.Time
}

// VoucherStatus is the state of an issued voucher
type VoucherStatus string

const (
	VoucherIssued VoucherStatus = "issued"
	VoucherUsed   VoucherStatus = "used"
)

// Voucher is a cash voucher issued for a point tier
type Voucher struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Code      string
	Points    int
	Value     decimal.Decimal
	Status    VoucherStatus
	CreatedAt time.Time
}

// VoucherTier is a fixed (point cost, cash value) pair
type VoucherTier struct {
	Points int             `json:"points"`
	Value  decimal.Decimal `json:"value"`
}

// GameConfig is the admin-editable game configuration
type GameConfig struct {
	MaxPlaysPerDay     int           `json:"max_plays_per_day"`
	PhoneVerifyBonus   int           `json:"phone_verify_bonus"`
	ReferralBonus      int           `json:"referral_bonus"`
	VoucherTiers       []VoucherTier `json:"voucher_tiers"`
	TestAccounts       []string      `json:"test_accounts"`
	MaxScorePerSecond  int           `json:"max_score_per_second"`
	SuspicionThreshold int           `json:"suspicion_threshold"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// DefaultGameConfig is used when the config row has never been written
func DefaultGameConfig() GameConfig {
	return GameConfig{
		MaxPlaysPerDay:   3,
		PhoneVerifyBonus: 2,
		ReferralBonus:    1,
		VoucherTiers: []VoucherTier{
			{Points: 500, Value: decimal.NewFromInt(20000)},
			{Points: 1000, Value: decimal.NewFromInt(50000)},
			{Points: 2000, Value: decimal.NewFromInt(100000)},
		},
		MaxScorePerSecond:  50,
		SuspicionThreshold: 70,
	}
}

// IsTestAccount reports whether u is on the test-account allowlist
func (c GameConfig) IsTestAccount(u User) bool {
	for _, acc := range c.TestAccounts {
		acc = strings.ToLower(strings.TrimSpace(acc))
		if acc == "" {
			continue
		}
		if u.Phone != nil && acc == strings.ToLower(*u.Phone) {
			return true
		}
		if u.Email != nil && acc == strings.ToLower(*u.Email) {
			return true
		}
	}
	return false
}

// Tier returns the voucher tier costing exactly points
func (c GameConfig) Tier(points int) (VoucherTier, bool) {
	for _, t := range c.VoucherTiers {
		if t.Points == points {
			return t, true
		}
	}
	return VoucherTier{}, false
}

// OtpSession represents an OTP issued to a phone number or email address
type OtpSession struct {
	ID            uuid.UUID
	Destination   string
	OTPHash       []byte
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
	CreatedAt     time.Time
	AttemptCount  int
	LastAttemptAt *time.Time
	RequestIP     *string
	UserAgent     *string
}

// AdPlacement is an ad creative shown in a named slot
type AdPlacement struct {
	ID          uuid.UUID
	Placement   string
	Title       string
	ImageURL    string
	TargetURL   string
	Active      bool
	Impressions int64
	Clicks      int64
	CreatedAt   time.Time
}
