package tests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santajump/server/internal/anticheat"
	"github.com/santajump/server/internal/game"
	"github.com/santajump/server/internal/ledger"
	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/quota"
	"github.com/santajump/server/internal/repo"
	"github.com/santajump/server/internal/settings"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		database, err := sql.Open("postgres", url)
		if err != nil {
			log.Fatalf("open test database: %v", err)
		}
		if err := RunMigrations(database); err != nil {
			log.Fatalf("migrate test database: %v", err)
		}
		testDB = database
	}

	code := m.Run()
	if testDB != nil {
		testDB.Close()
	}
	os.Exit(code)
}

// requireDB skips the test without DATABASE_URL and otherwise returns a clean database
func requireDB(t *testing.T) *sql.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	require.NoError(t, TruncateTables(context.Background(), testDB))
	return testDB
}

func createUser(t *testing.T, users repo.UserRepo, phone string, score int) model.User {
	t.Helper()
	ctx := context.Background()
	code, err := ledger.NewReferralCode()
	require.NoError(t, err)
	u, err := users.Create(ctx, model.User{Phone: &phone, ReferralCode: code})
	require.NoError(t, err)
	if score > 0 {
		_, err = testDB.ExecContext(ctx, `UPDATE users SET total_score = $2 WHERE id = $1`, u.ID, score)
		require.NoError(t, err)
		u.TotalScore = score
	}
	return u
}

type services struct {
	users   repo.UserRepo
	games   *game.Service
	ledger  *ledger.Service
	cheat   *anticheat.Service
	rewards repo.RewardRepo
	config  *settings.Cache
}

func newServices(t *testing.T, database *sql.DB) services {
	t.Helper()
	users := repo.NewUserRepo(database)
	gameRepo := repo.NewGameRepo(database)
	rewards := repo.NewRewardRepo(database)
	cache := settings.NewCache(repo.NewConfigRepo(database), time.Second)
	qm, err := quota.LoadManager("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	return services{
		users:   users,
		games:   game.NewService(users, gameRepo, cache, qm),
		ledger:  ledger.NewService(users, repo.NewReferralRepo(database), rewards, repo.NewVoucherRepo(database), cache, nil),
		cheat:   anticheat.NewService(gameRepo),
		rewards: rewards,
		config:  cache,
	}
}

func TestIntegration_ConcurrentStartsNeverExceedQuota(t *testing.T) {
	database := requireDB(t)
	svc := newServices(t, database)
	ctx := context.Background()
	u := createUser(t, svc.users, "+84901000001", 0)

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	started, denied := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.games.Start(ctx, u.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, quota.ErrNoPlaysLeft):
				denied++
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, started)
	assert.Equal(t, attempts-3, denied)

	got, err := svc.users.GetByID(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 3, got.PlaysToday)
	require.NotNil(t, got.LastPlayDate)
}

func TestIntegration_CompleteAndInvalidate(t *testing.T) {
	database := requireDB(t)
	svc := newServices(t, database)
	ctx := context.Background()
	u := createUser(t, svc.users, "+84901000002", 10)

	res, err := svc.games.Start(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining.Free)

	s, user, err := svc.games.Complete(ctx, u.ID, res.Session.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, model.GameCompleted, s.Status)
	assert.Equal(t, 40, user.TotalScore)

	_, _, err = svc.games.Complete(ctx, u.ID, res.Session.ID, 30)
	assert.ErrorIs(t, err, game.ErrNotStarted)

	s, user, err = svc.cheat.InvalidateSession(ctx, res.Session.ID, "manual review")
	require.NoError(t, err)
	assert.Equal(t, model.GameInvalid, s.Status)
	assert.Equal(t, 10, user.TotalScore)

	flagged, err := svc.cheat.ListFlagged(ctx, 10)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, res.Session.ID, flagged[0].ID)
}

func TestIntegration_ConcurrentVoucherRedemption(t *testing.T) {
	database := requireDB(t)
	svc := newServices(t, database)
	ctx := context.Background()
	u := createUser(t, svc.users, "+84901000003", 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	issued := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.ledger.RedeemVoucher(ctx, u.ID, 500)
			if err == nil {
				mu.Lock()
				issued++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ledger.ErrInsufficientPoints) {
				t.Errorf("unexpected redeem error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, issued)
	got, err := svc.users.GetByID(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalScore)

	vouchers, err := svc.ledger.Vouchers(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, vouchers, 2)
	assert.Equal(t, "20000", vouchers[0].Value.String())
	assert.NotEqual(t, vouchers[0].Code, vouchers[1].Code)
}

func TestIntegration_RewardStockIsNeverOversold(t *testing.T) {
	database := requireDB(t)
	svc := newServices(t, database)
	ctx := context.Background()

	stock := 2
	rw, err := svc.ledger.CreateReward(ctx, ledger.RewardInput{Name: "Santa Hat", Cost: 100, Stock: &stock, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "santa-hat", rw.Slug)

	var wg sync.WaitGroup
	var mu sync.Mutex
	redeemed, soldOut := 0, 0
	for i := 0; i < 5; i++ {
		u := createUser(t, svc.users, fmt.Sprintf("+8490200000%d", i), 100)
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, _, err := svc.ledger.RedeemReward(ctx, id, rw.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				redeemed++
			case errors.Is(err, ledger.ErrOutOfStock):
				soldOut++
			default:
				t.Errorf("unexpected redeem error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, 2, redeemed)
	assert.Equal(t, 3, soldOut)

	after, err := svc.rewards.Get(ctx, rw.ID)
	require.NoError(t, err)
	require.NotNil(t, after.Stock)
	assert.Equal(t, 0, *after.Stock)

	redemptions, err := svc.ledger.Redemptions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, redemptions, 2)
}

func TestIntegration_ReferralCompletesOnce(t *testing.T) {
	database := requireDB(t)
	svc := newServices(t, database)
	ctx := context.Background()
	referrer := createUser(t, svc.users, "+84901000010", 0)

	email := "elf@example.com"
	code, err := ledger.NewReferralCode()
	require.NoError(t, err)
	friend, err := svc.users.Create(ctx, model.User{Email: &email, ReferralCode: code})
	require.NoError(t, err)

	require.NoError(t, svc.ledger.LinkReferral(ctx, friend, referrer.ReferralCode))
	require.NoError(t, svc.ledger.CompleteReferral(ctx, friend.ID))
	require.NoError(t, svc.ledger.CompleteReferral(ctx, friend.ID))

	got, err := svc.users.GetByID(ctx, referrer.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, got.BonusPlays)

	total, rewarded, err := svc.ledger.ReferralStats(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, rewarded)
}

func TestIntegration_VerifyPhoneUniqueness(t *testing.T) {
	database := requireDB(t)
	svc := newServices(t, database)
	ctx := context.Background()
	createUser(t, svc.users, "+84901000020", 0)

	email := "rudolph@example.com"
	code, err := ledger.NewReferralCode()
	require.NoError(t, err)
	u, err := svc.users.Create(ctx, model.User{Email: &email, ReferralCode: code})
	require.NoError(t, err)

	_, _, err = svc.users.VerifyPhone(ctx, u.ID, "+84901000020", 2)
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	got, first, err := svc.users.VerifyPhone(ctx, u.ID, "+84901000021", 2)
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, 2, got.BonusPlays)

	got, first, err = svc.users.VerifyPhone(ctx, u.ID, "+84901000021", 2)
	require.NoError(t, err)
	assert.False(t, first)
	assert.Equal(t, 2, got.BonusPlays)
}

func TestIntegration_ConfigRoundTrip(t *testing.T) {
	database := requireDB(t)
	svc := newServices(t, database)
	ctx := context.Background()

	cfg, err := svc.config.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxPlaysPerDay)
	require.Len(t, cfg.VoucherTiers, 3)

	cfg.MaxPlaysPerDay = 7
	cfg.TestAccounts = []string{"+84909999999", "tester@example.com"}
	_, err = svc.config.Save(ctx, cfg)
	require.NoError(t, err)

	fresh, err := repo.NewConfigRepo(database).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, fresh.MaxPlaysPerDay)
	assert.Equal(t, []string{"+84909999999", "tester@example.com"}, fresh.TestAccounts)
	assert.True(t, fresh.VoucherTiers[0].Value.Equal(cfg.VoucherTiers[0].Value))
}

func TestIntegration_HousekeepingQueries(t *testing.T) {
	database := requireDB(t)
	svc := newServices(t, database)
	ctx := context.Background()
	u := createUser(t, svc.users, "+84901000030", 0)

	res, err := svc.games.Start(ctx, u.ID, nil)
	require.NoError(t, err)
	_, err = database.ExecContext(ctx, `UPDATE game_sessions SET started_at = now() - interval '3 hours' WHERE id = $1`, res.Session.ID)
	require.NoError(t, err)

	n, err := repo.NewGameRepo(database).ExpireStale(ctx, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	otps := repo.NewOtpRepo(database)
	_, err = otps.CreateOrReplaceSession(ctx, "+84901000030", "aa", time.Now().Add(time.Minute), nil, nil)
	require.NoError(t, err)
	_, err = database.ExecContext(ctx, `UPDATE otp_sessions SET created_at = now() - interval '2 days'`)
	require.NoError(t, err)

	purged, err := otps.PurgeBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestIntegration_AdCounters(t *testing.T) {
	database := requireDB(t)
	ads := repo.NewAdRepo(database)
	ctx := context.Background()

	ad, err := ads.Create(ctx, model.AdPlacement{
		Placement: "game_over",
		Title:     "Hot cocoa",
		ImageURL:  "https://cdn.example.com/cocoa.png",
		TargetURL: "https://example.com/cocoa",
		Active:    true,
	})
	require.NoError(t, err)

	require.NoError(t, ads.Record(ctx, ad.ID, repo.AdImpression))
	require.NoError(t, ads.Record(ctx, ad.ID, repo.AdImpression))
	require.NoError(t, ads.Record(ctx, ad.ID, repo.AdClick))
	assert.ErrorIs(t, ads.Record(ctx, uuid.New(), repo.AdClick), repo.ErrNotFound)

	active, err := ads.ListActive(ctx, "game_over")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].Impressions)
	assert.Equal(t, int64(1), active[0].Clicks)
}
