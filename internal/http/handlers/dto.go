package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/notify"
)

// userResponse is the user object in API responses
type userResponse struct {
	ID            string     `json:"id"`
	Phone         *string    `json:"phone,omitempty"`
	Email         *string    `json:"email,omitempty"`
	DisplayName   string     `json:"display_name"`
	ReferralCode  string     `json:"referral_code"`
	PhoneVerified bool       `json:"phone_verified"`
	PlaysToday    int        `json:"plays_today"`
	BonusPlays    int        `json:"bonus_plays"`
	TotalScore    int        `json:"total_score"`
	CreatedAt     time.Time  `json:"created_at"`
	LastPlayDate  *time.Time `json:"last_play_date,omitempty"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:            u.ID.String(),
		Phone:         u.Phone,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		ReferralCode:  u.ReferralCode,
		PhoneVerified: u.PhoneVerifiedAt != nil,
		PlaysToday:    u.PlaysToday,
		BonusPlays:    u.BonusPlays,
		TotalScore:    u.TotalScore,
		CreatedAt:     u.CreatedAt,
		LastPlayDate:  u.LastPlayDate,
	}
}

type sessionResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Status          string     `json:"status"`
	ClientScore     int        `json:"client_score"`
	ValidatedScore  int        `json:"validated_score"`
	SuspicionScore  int        `json:"suspicion_score"`
	SuspicionReason *string    `json:"suspicion_reason,omitempty"`
	UsedBonusPlay   bool       `json:"used_bonus_play"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

func toSessionResponse(s model.GameSession) sessionResponse {
	return sessionResponse{
		ID:              s.ID.String(),
		UserID:          s.UserID.String(),
		Status:          string(s.Status),
		ClientScore:     s.ClientScore,
		ValidatedScore:  s.ValidatedScore,
		SuspicionScore:  s.SuspicionScore,
		SuspicionReason: s.SuspicionReason,
		UsedBonusPlay:   s.UsedBonusPlay,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
	}
}

func toSessionResponses(in []model.GameSession) []sessionResponse {
	out := make([]sessionResponse, 0, len(in))
	for _, s := range in {
		out = append(out, toSessionResponse(s))
	}
	return out
}

type rewardResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Cost        int       `json:"cost"`
	Stock       *int      `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toRewardResponse(r model.Reward) rewardResponse {
	return rewardResponse{
		ID:          r.ID.String(),
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		Cost:        r.Cost,
		Stock:       r.Stock,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

func toRewardResponses(in []model.Reward) []rewardResponse {
	out := make([]rewardResponse, 0, len(in))
	for _, r := range in {
		out = append(out, toRewardResponse(r))
	}
	return out
}

type redemptionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RewardID  string    `json:"reward_id"`
	Cost      int       `json:"cost"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

func toRedemptionResponse(r model.RewardRedemption) redemptionResponse {
	return redemptionResponse{
		ID:        r.ID.String(),
		UserID:    r.UserID.String(),
		RewardID:  r.RewardID.String(),
		Cost:      r.Cost,
		Code:      r.Code,
		CreatedAt: r.CreatedAt,
	}
}

type voucherResponse struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Points    int             `json:"points"`
	Value     decimal.Decimal `json:"value"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func toVoucherResponse(v model.Voucher) voucherResponse {
	return voucherResponse{
		ID:        v.ID.String(),
		Code:      v.Code,
		Points:    v.Points,
		Value:     v.Value,
		Status:    string(v.Status),
		CreatedAt: v.CreatedAt,
	}
}

type adResponse struct {
	ID          string    `json:"id"`
	Placement   string    `json:"placement"`
	Title       string    `json:"title"`
	ImageURL    string    `json:"image_url"`
	TargetURL   string    `json:"target_url"`
	Active      bool      `json:"active"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

func toAdResponse(a model.AdPlacement) adResponse {
	return adResponse{
		ID:          a.ID.String(),
		Placement:   a.Placement,
		Title:       a.Title,
		ImageURL:    a.ImageURL,
		TargetURL:   a.TargetURL,
		Active:      a.Active,
		Impressions: a.Impressions,
		Clicks:      a.Clicks,
		CreatedAt:   a.CreatedAt,
	}
}

func toAdResponses(in []model.AdPlacement) []adResponse {
	out := make([]adResponse, 0, len(in))
	for _, a := range in {
		out = append(out, toAdResponse(a))
	}
	return out
}

// leaderboardEntry hides contact details behind a mask when no display name is set
type leaderboardEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func toLeaderboard(users []model.User) []leaderboardEntry {
	out := make([]leaderboardEntry, 0, len(users))
	for i, u := range users {
		name := u.DisplayName
		if name == "" {
			name = notify.MaskContact(u.Contact())
		}
		out = append(out, leaderboardEntry{Rank: i + 1, Name: name, Score: u.TotalScore})
	}
	return out
}
