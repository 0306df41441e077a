package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santajump/server/internal/anticheat"
	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/quota"
	"github.com/santajump/server/internal/repo/memstore"
)

var vn = mustLoad("Asia/Ho_Chi_Minh")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func newTestService(t *testing.T, now time.Time) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.Now = func() time.Time { return now }
	svc := NewService(store.Users(), store.Sessions(), store.Config(), quota.NewManager(vn))
	svc.now = func() time.Time { return now }
	return svc, store
}

func TestStart_ConsumesFreePlayFirst(t *testing.T) {
	now := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, now)
	today := quota.NewManager(vn).Day(now)
	u := store.PutUser(model.User{PlaysToday: 2, BonusPlays: 5, LastPlayDate: &today})

	res, err := svc.Start(context.Background(), u.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, model.GameStarted, res.Session.Status)
	assert.False(t, res.Session.UsedBonusPlay)
	got := store.User(u.ID)
	assert.Equal(t, 3, got.PlaysToday)
	assert.Equal(t, 5, got.BonusPlays)
	assert.Equal(t, quota.Counts{Free: 0, Bonus: 5, Total: 5}, res.Remaining)
}

func TestStart_NoPlaysLeft(t *testing.T) {
	now := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, now)
	today := quota.NewManager(vn).Day(now)
	u := store.PutUser(model.User{PlaysToday: 3, LastPlayDate: &today})

	_, err := svc.Start(context.Background(), u.ID, nil)
	assert.ErrorIs(t, err, quota.ErrNoPlaysLeft)
	assert.Equal(t, 3, store.User(u.ID).PlaysToday)
}

func TestStart_ConcurrentCallsCannotOverspend(t *testing.T) {
	now := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, now)
	today := quota.NewManager(vn).Day(now)
	u := store.PutUser(model.User{PlaysToday: 2, LastPlayDate: &today})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Start(context.Background(), u.ID, nil); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, store.User(u.ID).PlaysToday)
}

func TestStart_FlagsSuspiciousFingerprint(t *testing.T) {
	now := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, now)
	u := store.PutUser(model.User{})

	fp := &anticheat.Fingerprint{
		UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) HeadlessChrome/120",
		Platform:       "MacIntel",
		MaxTouchPoints: 0,
		ScreenWidth:    390,
	}
	res, err := svc.Start(context.Background(), u.ID, fp)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Session.SuspicionScore, 70)
	require.NotNil(t, res.Session.SuspicionReason)
	assert.Contains(t, *res.Session.SuspicionReason, "fingerprint suspicion")
}

func TestStart_TestAccountIsNotCharged(t *testing.T) {
	now := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, now)
	phone := "+84900000001"
	cfg := model.DefaultGameConfig()
	cfg.TestAccounts = []string{phone}
	_, err := store.Config().Save(context.Background(), cfg)
	require.NoError(t, err)
	today := quota.NewManager(vn).Day(now)
	u := store.PutUser(model.User{Phone: &phone, PlaysToday: 3, LastPlayDate: &today})

	res, err := svc.Start(context.Background(), u.ID, nil)
	require.NoError(t, err)
	assert.True(t, res.Remaining.Unlimited)
	assert.Equal(t, quota.TestAccountRemaining, res.Remaining.Total)
	assert.Equal(t, 3, store.User(u.ID).PlaysToday)
}

func TestComplete_CreditsValidatedScore(t *testing.T) {
	start := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, start.Add(30*time.Second))
	u := store.PutUser(model.User{TotalScore: 100})
	gs := store.PutSession(model.GameSession{UserID: u.ID, Status: model.GameStarted, StartedAt: start})

	session, user, err := svc.Complete(context.Background(), u.ID, gs.ID, 420)
	require.NoError(t, err)

	assert.Equal(t, model.GameCompleted, session.Status)
	assert.Equal(t, 420, session.ValidatedScore)
	assert.Nil(t, session.SuspicionReason)
	assert.Equal(t, 520, user.TotalScore)
}

func TestComplete_ClampsImpossibleScore(t *testing.T) {
	start := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, start.Add(10*time.Second))
	u := store.PutUser(model.User{})
	gs := store.PutSession(model.GameSession{UserID: u.ID, Status: model.GameStarted, StartedAt: start})

	session, user, err := svc.Complete(context.Background(), u.ID, gs.ID, 99999)
	require.NoError(t, err)

	assert.Equal(t, 99999, session.ClientScore)
	assert.Equal(t, 500, session.ValidatedScore)
	require.NotNil(t, session.SuspicionReason)
	assert.Contains(t, *session.SuspicionReason, "exceeds time ceiling")
	assert.Equal(t, 500, user.TotalScore)
}

func TestComplete_Rejections(t *testing.T) {
	start := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, start.Add(time.Minute))
	owner := store.PutUser(model.User{})
	other := store.PutUser(model.User{})
	started := store.PutSession(model.GameSession{UserID: owner.ID, Status: model.GameStarted, StartedAt: start})
	done := store.PutSession(model.GameSession{UserID: owner.ID, Status: model.GameCompleted, StartedAt: start})

	_, _, err := svc.Complete(context.Background(), other.ID, started.ID, 10)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, _, err = svc.Complete(context.Background(), owner.ID, done.ID, 10)
	assert.ErrorIs(t, err, ErrNotStarted)

	_, _, err = svc.Complete(context.Background(), owner.ID, started.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestAbandon(t *testing.T) {
	start := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, start.Add(time.Minute))
	u := store.PutUser(model.User{TotalScore: 40})
	gs := store.PutSession(model.GameSession{UserID: u.ID, Status: model.GameStarted, StartedAt: start})

	session, err := svc.Abandon(context.Background(), u.ID, gs.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GameInvalid, session.Status)
	require.NotNil(t, session.SuspicionReason)
	assert.Equal(t, "abandoned", *session.SuspicionReason)
	assert.Equal(t, 40, store.User(u.ID).TotalScore)

	_, err = svc.Abandon(context.Background(), u.ID, gs.ID)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestScoreCeiling(t *testing.T) {
	c, ok := ScoreCeiling(0, 50)
	assert.True(t, ok)
	assert.Equal(t, 50, c)

	c, ok = ScoreCeiling(2500*time.Millisecond, 50)
	assert.True(t, ok)
	assert.Equal(t, 100, c)

	_, ok = ScoreCeiling(time.Hour, 0)
	assert.False(t, ok)
}

func TestLeaderboardAndHistory(t *testing.T) {
	now := time.Date(2026, 12, 20, 3, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, now)
	a := store.PutUser(model.User{TotalScore: 10})
	b := store.PutUser(model.User{TotalScore: 30})
	store.PutUser(model.User{TotalScore: 0})

	board, err := svc.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, b.ID, board[0].ID)
	assert.Equal(t, a.ID, board[1].ID)

	store.PutSession(model.GameSession{UserID: a.ID, Status: model.GameCompleted, StartedAt: now.Add(-time.Hour)})
	latest := store.PutSession(model.GameSession{UserID: a.ID, Status: model.GameStarted, StartedAt: now})
	history, err := svc.History(context.Background(), a.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, latest.ID, history[0].ID)
}
