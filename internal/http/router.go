package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/santajump/server/internal/auth"
	"github.com/santajump/server/internal/http/handlers"
	"github.com/santajump/server/internal/middleware"
)

// Handlers groups every handler mounted by NewRouter
type Handlers struct {
	Auth   *handlers.AuthHandler
	Me     *handlers.MeHandler
	Game   *handlers.GameHandler
	Ledger *handlers.LedgerHandler
	Admin  *handlers.AdminHandler
	Public *handlers.PublicHandler

	// AdLimiter throttles the public ad counters per client IP
	AdLimiter *middleware.RateLimiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(h Handlers, jwtService *auth.JWTService, users middleware.UserLoader) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Public.HandleHealth)
	r.Get("/config/public", h.Public.HandlePublicConfig)
	r.Get("/leaderboard", h.Public.HandleLeaderboard)
	r.Get("/rewards", h.Ledger.HandleListRewards)
	r.Route("/ads", func(r chi.Router) {
		r.Get("/", h.Public.HandleListAds)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(h.AdLimiter, middleware.GetIPKey))
			r.Post("/{id}/impression", h.Public.HandleAdImpression)
			r.Post("/{id}/click", h.Public.HandleAdClick)
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/request-otp", h.Auth.HandleRequestOTP)
		r.Post("/verify-otp", h.Auth.HandleVerifyOTP)
		r.Post("/logout", h.Auth.HandleLogout)
	})

	// Player routes (require a valid player token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService, users))

		r.Get("/me", h.Me.HandleMe)
		r.Post("/me/phone/request-otp", h.Me.HandleRequestPhoneOTP)
		r.Post("/me/phone/verify", h.Me.HandleVerifyPhone)

		r.Route("/game", func(r chi.Router) {
			r.Post("/start", h.Game.HandleStart)
			r.Post("/complete", h.Game.HandleComplete)
			r.Post("/abandon", h.Game.HandleAbandon)
			r.Post("/heartbeat", h.Game.HandleHeartbeat)
			r.Post("/violation", h.Game.HandleViolation)
			r.Get("/history", h.Game.HandleHistory)
		})

		r.Get("/voucher", h.Ledger.HandleListVouchers)
		r.Post("/voucher/redeem", h.Ledger.HandleRedeemVoucher)
		r.Post("/rewards/redeem", h.Ledger.HandleRedeemReward)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", h.Auth.HandleAdminLogin)
		r.Post("/logout", h.Auth.HandleAdminLogout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware(jwtService))

			r.Get("/config", h.Admin.HandleGetConfig)
			r.Put("/config", h.Admin.HandlePutConfig)
			r.Get("/sessions/flagged", h.Admin.HandleFlaggedSessions)
			r.Post("/sessions/{id}/invalidate", h.Admin.HandleInvalidateSession)
			r.Get("/rewards", h.Admin.HandleListRewards)
			r.Post("/rewards", h.Admin.HandleCreateReward)
			r.Put("/rewards/{id}", h.Admin.HandleUpdateReward)
			r.Get("/redemptions", h.Admin.HandleListRedemptions)
			r.Get("/ads", h.Admin.HandleListAds)
			r.Post("/ads", h.Admin.HandleCreateAd)
			r.Put("/ads/{id}", h.Admin.HandleUpdateAd)
			r.Post("/users/{id}/bonus", h.Admin.HandleGrantBonus)
		})
	})

	return r
}
