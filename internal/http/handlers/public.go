package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/game"
	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/repo"
)

// Pinger reports whether the database is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConfigReader provides the cached game configuration
type ConfigReader interface {
	Get(ctx context.Context) (model.GameConfig, error)
}

// AdStore is the ad persistence used by public and admin handlers
type AdStore interface {
	ListActive(ctx context.Context, placement string) ([]model.AdPlacement, error)
	ListAll(ctx context.Context) ([]model.AdPlacement, error)
	Create(ctx context.Context, ad model.AdPlacement) (model.AdPlacement, error)
	Update(ctx context.Context, ad model.AdPlacement) (model.AdPlacement, error)
	Record(ctx context.Context, id uuid.UUID, event repo.AdEvent) error
}

// PublicHandler serves unauthenticated endpoints
type PublicHandler struct {
	db     Pinger
	config ConfigReader
	games  *game.Service
	ads    AdStore
}

// NewPublicHandler creates a public handler. db may be nil, in which case health does
// not check the database.
func NewPublicHandler(db Pinger, config ConfigReader, games *game.Service, ads AdStore) *PublicHandler {
	return &PublicHandler{db: db, config: config, games: games, ads: ads}
}

// HandleHealth handles GET /health
func (h *PublicHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			log.Printf("[http] health check: database unreachable: %v", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publicConfigResponse exposes the non-sensitive part of the game configuration
type publicConfigResponse struct {
	MaxPlaysPerDay   int                 `json:"max_plays_per_day"`
	PhoneVerifyBonus int                 `json:"phone_verify_bonus"`
	ReferralBonus    int                 `json:"referral_bonus"`
	VoucherTiers     []model.VoucherTier `json:"voucher_tiers"`
}

// HandlePublicConfig handles GET /config/public
func (h *PublicHandler) HandlePublicConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	tiers := cfg.VoucherTiers
	if tiers == nil {
		tiers = []model.VoucherTier{}
	}
	respondJSON(w, http.StatusOK, publicConfigResponse{
		MaxPlaysPerDay:   cfg.MaxPlaysPerDay,
		PhoneVerifyBonus: cfg.PhoneVerifyBonus,
		ReferralBonus:    cfg.ReferralBonus,
		VoucherTiers:     tiers,
	})
}

// HandleLeaderboard handles GET /leaderboard
func (h *PublicHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	users, err := h.games.Leaderboard(r.Context(), queryLimit(r, 10, 100))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toLeaderboard(users))
}

// HandleListAds handles GET /ads?placement=
func (h *PublicHandler) HandleListAds(w http.ResponseWriter, r *http.Request) {
	ads, err := h.ads.ListActive(r.Context(), r.URL.Query().Get("placement"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAdResponses(ads))
}

// HandleAdImpression handles POST /ads/{id}/impression
func (h *PublicHandler) HandleAdImpression(w http.ResponseWriter, r *http.Request) {
	h.recordAd(w, r, repo.AdImpression)
}

// HandleAdClick handles POST /ads/{id}/click
func (h *PublicHandler) HandleAdClick(w http.ResponseWriter, r *http.Request) {
	h.recordAd(w, r, repo.AdClick)
}

func (h *PublicHandler) recordAd(w http.ResponseWriter, r *http.Request, event repo.AdEvent) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.ads.Record(r.Context(), id, event); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
