// Package memstore is an in-memory implementation of the repo interfaces used by tests.
// All tables share one mutex, so the locked-update methods are atomic like their
// Postgres counterparts.
package memstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/repo"
)

var (
	_ repo.UserRepo     = (*Users)(nil)
	_ repo.GameRepo     = (*Sessions)(nil)
	_ repo.ReferralRepo = (*Referrals)(nil)
	_ repo.RewardRepo   = (*Rewards)(nil)
	_ repo.VoucherRepo  = (*Vouchers)(nil)
	_ repo.ConfigRepo   = (*Config)(nil)
	_ repo.OtpRepo      = (*Otps)(nil)
	_ repo.AdRepo       = (*Ads)(nil)
)

// Store holds every table
type Store struct {
	mu          sync.Mutex
	users       map[uuid.UUID]model.User
	sessions    map[uuid.UUID]model.GameSession
	referrals   []model.Referral
	rewards     map[uuid.UUID]model.Reward
	redemptions []model.RewardRedemption
	vouchers    []model.Voucher
	config      *model.GameConfig
	otps        []model.OtpSession
	ads         map[uuid.UUID]model.AdPlacement

	// Now is the clock used for timestamps
	Now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]model.User),
		sessions: make(map[uuid.UUID]model.GameSession),
		rewards:  make(map[uuid.UUID]model.Reward),
		ads:      make(map[uuid.UUID]model.AdPlacement),
		Now:      time.Now,
	}
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repo.ErrNotFound)
}

func duplicate(what string) error {
	return fmt.Errorf("%s: %w", what, repo.ErrDuplicate)
}

// PutUser inserts or replaces a user, filling in an ID and referral code when missing
func (s *Store) PutUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.ReferralCode == "" {
		u.ReferralCode = strings.ToUpper(u.ID.String()[:8])
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.Now()
	}
	s.users[u.ID] = u
	return u
}

// User returns a stored user or the zero value
func (s *Store) User(id uuid.UUID) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// PutSession inserts or replaces a game session
func (s *Store) PutSession(gs model.GameSession) model.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gs.ID == uuid.Nil {
		gs.ID = uuid.New()
	}
	s.sessions[gs.ID] = gs
	return gs
}

// Session returns a stored session or the zero value
func (s *Store) Session(id uuid.UUID) model.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// VoucherCount returns the number of issued vouchers
func (s *Store) VoucherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vouchers)
}

// Users returns the user table view
func (s *Store) Users() *Users { return &Users{s} }

// Sessions returns the game session table view
func (s *Store) Sessions() *Sessions { return &Sessions{s} }

// Referrals returns the referral table view
func (s *Store) Referrals() *Referrals { return &Referrals{s} }

// Rewards returns the reward table view
func (s *Store) Rewards() *Rewards { return &Rewards{s} }

// Vouchers returns the voucher table view
func (s *Store) Vouchers() *Vouchers { return &Vouchers{s} }

// Config returns the game config view
func (s *Store) Config() *Config { return &Config{s} }

// Otps returns the OTP session table view
func (s *Store) Otps() *Otps { return &Otps{s} }

// Ads returns the ad placement table view
func (s *Store) Ads() *Ads { return &Ads{s} }

// Users implements repo.UserRepo
type Users struct{ s *Store }

func (v *Users) find(match func(model.User) bool) (model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, u := range v.s.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, notFound("get user")
}

func (v *Users) GetByID(ctx context.Context, id string) (model.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return model.User{}, notFound("get user")
	}
	return v.find(func(u model.User) bool { return u.ID == uid })
}

func (v *Users) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return v.find(func(u model.User) bool { return u.Phone != nil && *u.Phone == phone })
}

func (v *Users) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return v.find(func(u model.User) bool { return u.Email != nil && *u.Email == email })
}

func (v *Users) GetByReferralCode(ctx context.Context, code string) (model.User, error) {
	return v.find(func(u model.User) bool { return u.ReferralCode == code })
}

func (v *Users) Create(ctx context.Context, nu model.User) (model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, u := range v.s.users {
		if u.ReferralCode == nu.ReferralCode ||
			(nu.Phone != nil && u.Phone != nil && *u.Phone == *nu.Phone) ||
			(nu.Email != nil && u.Email != nil && *u.Email == *nu.Email) {
			return model.User{}, duplicate("create user")
		}
	}
	nu.ID = uuid.New()
	nu.CreatedAt = v.s.Now()
	v.s.users[nu.ID] = nu
	return nu, nil
}

func (v *Users) VerifyPhone(ctx context.Context, userID uuid.UUID, phone string, bonus int) (model.User, bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[userID]
	if !ok {
		return model.User{}, false, notFound("lock user")
	}
	for _, other := range v.s.users {
		if other.ID != userID && other.Phone != nil && *other.Phone == phone {
			return model.User{}, false, duplicate("save user")
		}
	}
	if u.PhoneVerifiedAt != nil && u.Phone != nil && *u.Phone == phone {
		return u, false, nil
	}
	first := u.PhoneVerifiedAt == nil
	if first {
		u.BonusPlays += bonus
	}
	now := v.s.Now()
	u.Phone = &phone
	u.PhoneVerifiedAt = &now
	v.s.users[userID] = u
	return u, first, nil
}

func (v *Users) AddBonusPlays(ctx context.Context, userID uuid.UUID, n int) (model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[userID]
	if !ok {
		return model.User{}, notFound("add bonus plays")
	}
	u.BonusPlays += n
	v.s.users[userID] = u
	return u, nil
}

func (v *Users) Leaderboard(ctx context.Context, limit int) ([]model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.User
	for _, u := range v.s.users {
		if u.TotalScore > 0 {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Sessions implements repo.GameRepo
type Sessions struct{ s *Store }

func (v *Sessions) Start(ctx context.Context, userID uuid.UUID, fn func(u *model.User) (model.GameSession, error)) (model.GameSession, model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[userID]
	if !ok {
		return model.GameSession{}, model.User{}, notFound("lock user")
	}
	gs, err := fn(&u)
	if err != nil {
		return model.GameSession{}, model.User{}, err
	}
	v.s.users[userID] = u
	v.s.sessions[gs.ID] = gs
	return gs, u, nil
}

func (v *Sessions) UpdateLocked(ctx context.Context, sessionID uuid.UUID, fn func(gs *model.GameSession, u *model.User) error) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	gs, ok := v.s.sessions[sessionID]
	if !ok {
		return notFound("lock session")
	}
	u, ok := v.s.users[gs.UserID]
	if !ok {
		return notFound("lock user")
	}
	if err := fn(&gs, &u); err != nil {
		return err
	}
	v.s.sessions[gs.ID] = gs
	v.s.users[u.ID] = u
	return nil
}

func (v *Sessions) GetByID(ctx context.Context, id uuid.UUID) (model.GameSession, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	gs, ok := v.s.sessions[id]
	if !ok {
		return model.GameSession{}, notFound("get session")
	}
	return gs, nil
}

func (v *Sessions) list(match func(model.GameSession) bool, limit int) []model.GameSession {
	var out []model.GameSession
	for _, gs := range v.s.sessions {
		if match(gs) {
			out = append(out, gs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (v *Sessions) History(ctx context.Context, userID uuid.UUID, limit int) ([]model.GameSession, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.list(func(gs model.GameSession) bool { return gs.UserID == userID }, limit), nil
}

func (v *Sessions) ListFlagged(ctx context.Context, limit int) ([]model.GameSession, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.list(func(gs model.GameSession) bool {
		return gs.SuspicionReason != nil || gs.Status == model.GameInvalid
	}, limit), nil
}

func (v *Sessions) ExpireStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	now := v.s.Now()
	for id, gs := range v.s.sessions {
		if gs.Status == model.GameStarted && gs.StartedAt.Before(startedBefore) {
			gs.Status = model.GameInvalid
			gs.AddSuspicion("expired")
			gs.EndedAt = &now
			v.s.sessions[id] = gs
			n++
		}
	}
	return n, nil
}

// Referrals implements repo.ReferralRepo
type Referrals struct{ s *Store }

func (v *Referrals) Create(ctx context.Context, referrerID, referredID uuid.UUID) (model.Referral, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, r := range v.s.referrals {
		if r.ReferredID == referredID {
			return model.Referral{}, duplicate("insert referral")
		}
	}
	u, ok := v.s.users[referredID]
	if !ok {
		return model.Referral{}, notFound("set referred_by")
	}
	ref := model.Referral{ID: uuid.New(), ReferrerID: referrerID, ReferredID: referredID, CreatedAt: v.s.Now()}
	v.s.referrals = append(v.s.referrals, ref)
	u.ReferredBy = &referrerID
	v.s.users[referredID] = u
	return ref, nil
}

func (v *Referrals) Complete(ctx context.Context, referredID uuid.UUID, bonus int) (model.Referral, bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for i, r := range v.s.referrals {
		if r.ReferredID != referredID || r.RewardGiven {
			continue
		}
		now := v.s.Now()
		r.RewardGiven = true
		r.RewardedAt = &now
		v.s.referrals[i] = r
		if u, ok := v.s.users[r.ReferrerID]; ok {
			u.BonusPlays += bonus
			v.s.users[u.ID] = u
		}
		return r, true, nil
	}
	return model.Referral{}, false, nil
}

func (v *Referrals) CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int, int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var total, rewarded int
	for _, r := range v.s.referrals {
		if r.ReferrerID == referrerID {
			total++
			if r.RewardGiven {
				rewarded++
			}
		}
	}
	return total, rewarded, nil
}

// Rewards implements repo.RewardRepo
type Rewards struct{ s *Store }

func (v *Rewards) Get(ctx context.Context, id uuid.UUID) (model.Reward, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	rw, ok := v.s.rewards[id]
	if !ok {
		return model.Reward{}, notFound("get reward")
	}
	return rw, nil
}

func (v *Rewards) List(ctx context.Context, activeOnly bool) ([]model.Reward, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.Reward
	for _, rw := range v.s.rewards {
		if rw.Active || !activeOnly {
			out = append(out, rw)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (v *Rewards) Create(ctx context.Context, rw model.Reward) (model.Reward, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, existing := range v.s.rewards {
		if existing.Slug == rw.Slug {
			return model.Reward{}, duplicate("create reward")
		}
	}
	if rw.ID == uuid.Nil {
		rw.ID = uuid.New()
	}
	rw.CreatedAt = v.s.Now()
	v.s.rewards[rw.ID] = rw
	return rw, nil
}

func (v *Rewards) Update(ctx context.Context, rw model.Reward) (model.Reward, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	existing, ok := v.s.rewards[rw.ID]
	if !ok {
		return model.Reward{}, notFound("update reward")
	}
	rw.Slug = existing.Slug
	rw.CreatedAt = existing.CreatedAt
	v.s.rewards[rw.ID] = rw
	return rw, nil
}

func (v *Rewards) Redeem(ctx context.Context, userID, rewardID uuid.UUID, fn func(u *model.User, rw *model.Reward) (model.RewardRedemption, error)) (model.RewardRedemption, model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[userID]
	if !ok {
		return model.RewardRedemption{}, model.User{}, notFound("lock user")
	}
	rw, ok := v.s.rewards[rewardID]
	if !ok {
		return model.RewardRedemption{}, model.User{}, notFound("lock reward")
	}
	red, err := fn(&u, &rw)
	if err != nil {
		return model.RewardRedemption{}, model.User{}, err
	}
	red.CreatedAt = v.s.Now()
	v.s.users[userID] = u
	v.s.rewards[rewardID] = rw
	v.s.redemptions = append(v.s.redemptions, red)
	return red, u, nil
}

func (v *Rewards) ListRedemptions(ctx context.Context, limit int) ([]model.RewardRedemption, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.RewardRedemption
	for i := len(v.s.redemptions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, v.s.redemptions[i])
	}
	return out, nil
}

// Vouchers implements repo.VoucherRepo
type Vouchers struct{ s *Store }

func (v *Vouchers) Issue(ctx context.Context, userID uuid.UUID, fn func(u *model.User) (model.Voucher, error)) (model.Voucher, model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[userID]
	if !ok {
		return model.Voucher{}, model.User{}, notFound("lock user")
	}
	vc, err := fn(&u)
	if err != nil {
		return model.Voucher{}, model.User{}, err
	}
	vc.CreatedAt = v.s.Now()
	v.s.users[userID] = u
	v.s.vouchers = append(v.s.vouchers, vc)
	return vc, u, nil
}

func (v *Vouchers) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Voucher, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.Voucher
	for i := len(v.s.vouchers) - 1; i >= 0; i-- {
		if v.s.vouchers[i].UserID == userID {
			out = append(out, v.s.vouchers[i])
		}
	}
	return out, nil
}

// Config implements repo.ConfigRepo
type Config struct{ s *Store }

func (v *Config) Get(ctx context.Context) (model.GameConfig, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.config == nil {
		return model.DefaultGameConfig(), nil
	}
	return *v.s.config, nil
}

func (v *Config) Save(ctx context.Context, cfg model.GameConfig) (model.GameConfig, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	cfg.UpdatedAt = v.s.Now()
	v.s.config = &cfg
	return cfg, nil
}

// Otps implements repo.OtpRepo
type Otps struct{ s *Store }

func (v *Otps) CreateOrReplaceSession(ctx context.Context, destination, otpHashHex string, expiresAt time.Time, requestIP, userAgent *string) (uuid.UUID, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := v.s.Now()
	for i, o := range v.s.otps {
		if o.Destination == destination && o.ConsumedAt == nil {
			v.s.otps[i].ConsumedAt = &now
		}
	}
	hash, err := hex.DecodeString(otpHashHex)
	if err != nil {
		return uuid.Nil, err
	}
	o := model.OtpSession{
		ID:          uuid.New(),
		Destination: destination,
		OTPHash:     hash,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		RequestIP:   requestIP,
		UserAgent:   userAgent,
	}
	v.s.otps = append(v.s.otps, o)
	return o.ID, nil
}

func (v *Otps) GetActiveSession(ctx context.Context, destination string) (model.OtpSession, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := v.s.Now()
	for i := len(v.s.otps) - 1; i >= 0; i-- {
		o := v.s.otps[i]
		if o.Destination == destination && o.ConsumedAt == nil && o.ExpiresAt.After(now) && o.AttemptCount < 5 {
			return o, nil
		}
	}
	return model.OtpSession{}, notFound("get otp session")
}

func (v *Otps) MarkConsumed(ctx context.Context, sessionID uuid.UUID) error {
	return v.update(sessionID, func(o *model.OtpSession, now time.Time) { o.ConsumedAt = &now })
}

func (v *Otps) IncrementAttempt(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := v.update(sessionID, func(o *model.OtpSession, now time.Time) {
		o.AttemptCount++
		o.LastAttemptAt = &now
		count = o.AttemptCount
	})
	return count, err
}

func (v *Otps) update(id uuid.UUID, fn func(o *model.OtpSession, now time.Time)) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for i := range v.s.otps {
		if v.s.otps[i].ID == id {
			fn(&v.s.otps[i], v.s.Now())
			return nil
		}
	}
	return notFound("otp session")
}

func (v *Otps) CountRecentRequests(ctx context.Context, destination string, since time.Time) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	n := 0
	for _, o := range v.s.otps {
		if o.Destination == destination && !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (v *Otps) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	kept := v.s.otps[:0]
	var n int64
	for _, o := range v.s.otps {
		if o.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, o)
	}
	v.s.otps = kept
	return n, nil
}

// Ads implements repo.AdRepo
type Ads struct{ s *Store }

func (v *Ads) sorted(match func(model.AdPlacement) bool) []model.AdPlacement {
	var out []model.AdPlacement
	for _, ad := range v.s.ads {
		if match(ad) {
			out = append(out, ad)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (v *Ads) ListActive(ctx context.Context, placement string) ([]model.AdPlacement, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.sorted(func(ad model.AdPlacement) bool {
		return ad.Active && (placement == "" || ad.Placement == placement)
	}), nil
}

func (v *Ads) ListAll(ctx context.Context) ([]model.AdPlacement, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.sorted(func(model.AdPlacement) bool { return true }), nil
}

func (v *Ads) Create(ctx context.Context, ad model.AdPlacement) (model.AdPlacement, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if ad.ID == uuid.Nil {
		ad.ID = uuid.New()
	}
	ad.CreatedAt = v.s.Now()
	v.s.ads[ad.ID] = ad
	return ad, nil
}

func (v *Ads) Update(ctx context.Context, ad model.AdPlacement) (model.AdPlacement, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	existing, ok := v.s.ads[ad.ID]
	if !ok {
		return model.AdPlacement{}, notFound("update ad")
	}
	ad.Impressions, ad.Clicks, ad.CreatedAt = existing.Impressions, existing.Clicks, existing.CreatedAt
	v.s.ads[ad.ID] = ad
	return ad, nil
}

func (v *Ads) Record(ctx context.Context, id uuid.UUID, event repo.AdEvent) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	ad, ok := v.s.ads[id]
	if !ok || !ad.Active {
		return notFound("record ad " + string(event))
	}
	switch event {
	case repo.AdImpression:
		ad.Impressions++
	case repo.AdClick:
		ad.Clicks++
	default:
		return fmt.Errorf("unknown ad event %q", event)
	}
	v.s.ads[id] = ad
	return nil
}
