package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/notify"
	"github.com/santajump/server/internal/repo/memstore"
)

type recordingNotifier struct {
	mu      sync.Mutex
	to      []string
	notices []notify.RedemptionNotice
	err     error
	block   chan struct{}
}

func (r *recordingNotifier) SendRedemption(ctx context.Context, to string, n notify.RedemptionNotice) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, to)
	r.notices = append(r.notices, n)
	return r.err
}

func newTestService(t *testing.T) (*Service, *memstore.Store, *recordingNotifier) {
	t.Helper()
	store := memstore.New()
	n := &recordingNotifier{}
	svc := NewService(store.Users(), store.Referrals(), store.Rewards(), store.Vouchers(), store.Config(), n)
	return svc, store, n
}

func intPtr(n int) *int { return &n }

func TestRedeemVoucher_DeductsOnceThenFails(t *testing.T) {
	svc, store, notifier := newTestService(t)
	cfg := model.DefaultGameConfig()
	cfg.VoucherTiers = []model.VoucherTier{{Points: 10, Value: decimal.NewFromInt(5000)}}
	_, err := store.Config().Save(context.Background(), cfg)
	require.NoError(t, err)
	email := "player@example.com"
	u := store.PutUser(model.User{Email: &email, TotalScore: 10})

	v, user, err := svc.RedeemVoucher(context.Background(), u.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, user.TotalScore)
	assert.True(t, strings.HasPrefix(v.Code, "SJV-"))
	assert.True(t, v.Value.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, model.VoucherIssued, v.Status)
	assert.Equal(t, 1, store.VoucherCount())
	svc.Wait()
	assert.Equal(t, []string{email}, notifier.to)

	_, _, err = svc.RedeemVoucher(context.Background(), u.ID, 10)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, 1, store.VoucherCount())
	assert.Equal(t, 0, store.User(u.ID).TotalScore)
}

func TestRedeemVoucher_DoesNotWaitForEmail(t *testing.T) {
	svc, store, notifier := newTestService(t)
	notifier.block = make(chan struct{})
	email := "slow@example.com"
	u := store.PutUser(model.User{Email: &email, TotalScore: 500})

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.RedeemVoucher(context.Background(), u.ID, 500)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("redemption blocked on the email provider")
	}
	assert.Equal(t, 0, store.User(u.ID).TotalScore)

	close(notifier.block)
	svc.Wait()
	assert.Equal(t, []string{email}, notifier.to)
}

func TestRedeemVoucher_EmailOutlivesRequestContext(t *testing.T) {
	svc, store, _ := newTestService(t)
	email := "late@example.com"
	u := store.PutUser(model.User{Email: &email, TotalScore: 500})

	release := make(chan struct{})
	var sendCtxErr error
	svc.notifier = notifierFunc(func(ctx context.Context, to string, n notify.RedemptionNotice) error {
		<-release
		sendCtxErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := svc.RedeemVoucher(ctx, u.ID, 500)
	require.NoError(t, err)
	cancel()

	close(release)
	svc.Wait()
	assert.NoError(t, sendCtxErr)
}

type notifierFunc func(ctx context.Context, to string, n notify.RedemptionNotice) error

func (f notifierFunc) SendRedemption(ctx context.Context, to string, n notify.RedemptionNotice) error {
	return f(ctx, to, n)
}

func TestRedeemVoucher_UnknownTier(t *testing.T) {
	svc, store, _ := newTestService(t)
	u := store.PutUser(model.User{TotalScore: 5000})

	_, _, err := svc.RedeemVoucher(context.Background(), u.ID, 123)
	assert.ErrorIs(t, err, ErrUnknownTier)
	assert.Equal(t, 5000, store.User(u.ID).TotalScore)
}

func TestRedeemReward(t *testing.T) {
	svc, store, notifier := newTestService(t)
	notifier.err = errors.New("smtp down")
	u := store.PutUser(model.User{TotalScore: 250})
	rw, err := svc.CreateReward(context.Background(), RewardInput{Name: "Santa Mug", Cost: 100, Stock: intPtr(1), Active: true})
	require.NoError(t, err)
	assert.Equal(t, "santa-mug", rw.Slug)

	red, user, err := svc.RedeemReward(context.Background(), u.ID, rw.ID)
	require.NoError(t, err, "a failed email must not fail the redemption")
	assert.Equal(t, 150, user.TotalScore)
	assert.Equal(t, 100, red.Cost)
	assert.True(t, strings.HasPrefix(red.Code, "SJR-"))

	got, err := store.Rewards().Get(context.Background(), rw.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, *got.Stock)

	_, _, err = svc.RedeemReward(context.Background(), u.ID, rw.ID)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 150, store.User(u.ID).TotalScore)

	reds, err := svc.Redemptions(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, reds, 1)
}

func TestRedeemReward_Rejections(t *testing.T) {
	svc, store, _ := newTestService(t)
	poor := store.PutUser(model.User{TotalScore: 5})
	rich := store.PutUser(model.User{TotalScore: 500})
	unlimited, err := svc.CreateReward(context.Background(), RewardInput{Name: "Sticker", Cost: 10, Active: true})
	require.NoError(t, err)
	inactive, err := svc.CreateReward(context.Background(), RewardInput{Name: "Old Hat", Cost: 10, Active: false})
	require.NoError(t, err)

	_, _, err = svc.RedeemReward(context.Background(), poor.ID, unlimited.ID)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	_, _, err = svc.RedeemReward(context.Background(), rich.ID, inactive.ID)
	assert.ErrorIs(t, err, ErrRewardUnavailable)

	for i := 0; i < 3; i++ {
		_, _, err = svc.RedeemReward(context.Background(), rich.ID, unlimited.ID)
		require.NoError(t, err)
	}
	got, err := store.Rewards().Get(context.Background(), unlimited.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Stock)
	assert.Equal(t, 470, store.User(rich.ID).TotalScore)

	active, err := svc.Rewards(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRewardInputValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateReward(context.Background(), RewardInput{Name: " ", Cost: 10})
	assert.ErrorIs(t, err, ErrInvalidReward)
	_, err = svc.CreateReward(context.Background(), RewardInput{Name: "x", Cost: 0})
	assert.ErrorIs(t, err, ErrInvalidReward)
	_, err = svc.CreateReward(context.Background(), RewardInput{Name: "x", Cost: 1, Stock: intPtr(-1)})
	assert.ErrorIs(t, err, ErrInvalidReward)
}

func TestUpdateReward_KeepsSlug(t *testing.T) {
	svc, _, _ := newTestService(t)
	rw, err := svc.CreateReward(context.Background(), RewardInput{Name: "Gift Box", Cost: 50, Active: true})
	require.NoError(t, err)

	updated, err := svc.UpdateReward(context.Background(), rw.ID, RewardInput{Name: "Big Gift Box", Cost: 80, Stock: intPtr(3), Active: true})
	require.NoError(t, err)
	assert.Equal(t, "gift-box", updated.Slug)
	assert.Equal(t, 80, updated.Cost)
	assert.Equal(t, 3, *updated.Stock)
}

func TestReferralLifecycle(t *testing.T) {
	svc, store, _ := newTestService(t)
	referrer := store.PutUser(model.User{ReferralCode: "SANTA234"})
	newUser := store.PutUser(model.User{})

	require.NoError(t, svc.LinkReferral(context.Background(), newUser, " santa234 "))
	assert.Equal(t, referrer.ID, *store.User(newUser.ID).ReferredBy)

	require.NoError(t, svc.CompleteReferral(context.Background(), newUser.ID))
	assert.Equal(t, 1, store.User(referrer.ID).BonusPlays)

	// the grant happens once
	require.NoError(t, svc.CompleteReferral(context.Background(), newUser.ID))
	assert.Equal(t, 1, store.User(referrer.ID).BonusPlays)

	total, rewarded, err := store.Referrals().CountByReferrer(context.Background(), referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, rewarded)
}

func TestLinkReferral_Rejections(t *testing.T) {
	svc, store, _ := newTestService(t)
	u := store.PutUser(model.User{ReferralCode: "SELF2345"})

	assert.NoError(t, svc.LinkReferral(context.Background(), u, ""))
	assert.ErrorIs(t, svc.LinkReferral(context.Background(), u, "NOPE9999"), ErrInvalidReferralCode)
	assert.ErrorIs(t, svc.LinkReferral(context.Background(), u, "self2345"), ErrSelfReferral)
}

type brokenReferralLookup struct {
	UserStore
}

func (brokenReferralLookup) GetByReferralCode(ctx context.Context, code string) (model.User, error) {
	return model.User{}, errors.New("connection refused")
}

func TestLinkReferral_LookupFailureIsNotInvalidCode(t *testing.T) {
	svc, store, _ := newTestService(t)
	svc.users = brokenReferralLookup{UserStore: store.Users()}
	u := store.PutUser(model.User{})

	err := svc.LinkReferral(context.Background(), u, "SANTA234")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidReferralCode)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGrantBonus(t *testing.T) {
	svc, store, _ := newTestService(t)
	u := store.PutUser(model.User{BonusPlays: 1})

	got, err := svc.GrantBonus(context.Background(), u.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, got.BonusPlays)

	_, err = svc.GrantBonus(context.Background(), u.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidBonus)

	_, err = svc.GrantBonus(context.Background(), uuid.New(), 1)
	assert.Error(t, err)
}

func TestNewCode(t *testing.T) {
	code, err := NewCode("SJV-", 10)
	require.NoError(t, err)
	assert.Len(t, code, 14)
	for _, r := range strings.TrimPrefix(code, "SJV-") {
		assert.Contains(t, codeAlphabet, string(r))
	}

	_, err = NewCode("", 0)
	assert.Error(t, err)
}
