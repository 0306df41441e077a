package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santajump/server/internal/auth"
	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/repo/memstore"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := auth.NewJWTService("secret", time.Hour)
	store := memstore.New()
	u := store.PutUser(model.User{})
	token, err := jwtService.SignUserToken(u.ID)
	require.NoError(t, err)
	adminToken, err := jwtService.SignAdminToken("admin")
	require.NoError(t, err)

	var seen *model.User
	h := AuthMiddleware(jwtService, store.Users())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUser(r.Context())
		id, ok := GetUserID(r.Context())
		assert.True(t, ok)
		assert.Equal(t, u.ID, id)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: UserCookie, Value: token}) }, http.StatusNoContent},
		{"bad scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"admin token has no user", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+adminToken) }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, u.ID, seen.ID)
			}
		})
	}
}

func TestAuthMiddleware_UnknownUser(t *testing.T) {
	jwtService := auth.NewJWTService("secret", time.Hour)
	store := memstore.New()
	token, err := jwtService.SignUserToken(model.User{}.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	AuthMiddleware(jwtService, store.Users())(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminMiddleware(t *testing.T) {
	jwtService := auth.NewJWTService("secret", time.Hour)
	store := memstore.New()
	u := store.PutUser(model.User{})
	userToken, err := jwtService.SignUserToken(u.ID)
	require.NoError(t, err)
	adminToken, err := jwtService.SignAdminToken("root")
	require.NoError(t, err)

	h := AdminMiddleware(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := GetAdmin(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "root", name)
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(setup func(r *http.Request)) int {
		req := httptest.NewRequest(http.MethodGet, "/admin/config", nil)
		setup(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(func(r *http.Request) {}))
	assert.Equal(t, http.StatusUnauthorized, serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }))
	assert.Equal(t, http.StatusForbidden, serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+userToken) }))
	assert.Equal(t, http.StatusForbidden, serve(func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AdminCookie, Value: userToken}) }))
	assert.Equal(t, http.StatusNoContent, serve(func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AdminCookie, Value: adminToken}) }))
	// a player cookie does not open admin routes
	assert.Equal(t, http.StatusUnauthorized, serve(func(r *http.Request) { r.AddCookie(&http.Cookie{Name: UserCookie, Value: adminToken}) }))
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	defer rl.Stop()
	now := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("ip:1"))
	assert.True(t, rl.Allow("ip:1"))
	assert.False(t, rl.Allow("ip:1"))
	assert.True(t, rl.Allow("ip:2"), "keys are independent")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("ip:1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 5)
	defer rl.Stop()
	now := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("ip:old")
	now = now.Add(3 * time.Minute)
	rl.Allow("ip:new")
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.requests, "ip:old")
	assert.Contains(t, rl.requests, "ip:new")
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	defer rl.Stop()
	h := RateLimitMiddleware(rl, GetIPKey)(http.HandlerFunc(okHandler))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/auth/request-otp", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/auth/request-otp", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, second.Body.String())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	assert.Equal(t, "203.0.113.7", ClientIP(req))
	assert.Equal(t, "ip:203.0.113.7", GetIPKey(req))

	req.RemoteAddr = "198.51.100.2"
	assert.Equal(t, "198.51.100.2", ClientIP(req))
}
