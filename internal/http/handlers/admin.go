package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/anticheat"
	"github.com/santajump/server/internal/auth"
	"github.com/santajump/server/internal/ledger"
	"github.com/santajump/server/internal/middleware"
	"github.com/santajump/server/internal/model"
)

// ConfigEditor reads and writes the game configuration, invalidating any cache
type ConfigEditor interface {
	Get(ctx context.Context) (model.GameConfig, error)
	Save(ctx context.Context, cfg model.GameConfig) (model.GameConfig, error)
}

// AdminHandler serves admin-only endpoints. Login and logout live on AuthHandler.
type AdminHandler struct {
	config    ConfigEditor
	anticheat *anticheat.Service
	ledger    *ledger.Service
	ads       AdStore
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(config ConfigEditor, ac *anticheat.Service, ledgerService *ledger.Service, ads AdStore) *AdminHandler {
	return &AdminHandler{config: config, anticheat: ac, ledger: ledgerService, ads: ads}
}

func adminName(r *http.Request) string {
	name, _ := middleware.GetAdmin(r.Context())
	return name
}

// HandleGetConfig handles GET /admin/config
func (h *AdminHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func validateConfig(cfg model.GameConfig) error {
	switch {
	case cfg.MaxPlaysPerDay < 0:
		return errors.New("max_plays_per_day must not be negative")
	case cfg.PhoneVerifyBonus < 0, cfg.ReferralBonus < 0:
		return errors.New("bonuses must not be negative")
	case cfg.MaxScorePerSecond < 0:
		return errors.New("max_score_per_second must not be negative")
	case cfg.SuspicionThreshold < 0 || cfg.SuspicionThreshold > 100:
		return errors.New("suspicion_threshold must be between 0 and 100")
	}
	seen := make(map[int]bool, len(cfg.VoucherTiers))
	for _, t := range cfg.VoucherTiers {
		if t.Points <= 0 || !t.Value.IsPositive() {
			return errors.New("voucher tiers need positive points and value")
		}
		if seen[t.Points] {
			return fmt.Errorf("duplicate voucher tier for %d points", t.Points)
		}
		seen[t.Points] = true
	}
	return nil
}

// normalizeTestAccounts puts allowlist entries in the form stored on users (E.164 phones,
// lower-case emails) so they match however the admin typed them. Blank entries and
// duplicates are dropped.
func normalizeTestAccounts(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		acc, _, err := auth.NormalizeDestination(raw)
		if err != nil {
			return nil, fmt.Errorf("test account %q is not a valid phone number or email", strings.TrimSpace(raw))
		}
		if !seen[acc] {
			seen[acc] = true
			out = append(out, acc)
		}
	}
	return out, nil
}

// HandlePutConfig handles PUT /admin/config
func (h *AdminHandler) HandlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.GameConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	if err := validateConfig(cfg); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	accounts, err := normalizeTestAccounts(cfg.TestAccounts)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg.TestAccounts = accounts

	saved, err := h.config.Save(r.Context(), cfg)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	log.Printf("[admin] %s updated game config", adminName(r))
	respondJSON(w, http.StatusOK, saved)
}

// HandleFlaggedSessions handles GET /admin/sessions/flagged
func (h *AdminHandler) HandleFlaggedSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.anticheat.ListFlagged(r.Context(), queryLimit(r, 100, 500))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponses(sessions))
}

type invalidateRequest struct {
	Reason string `json:"reason"`
}

type invalidateResponse struct {
	Session    sessionResponse `json:"session"`
	TotalScore int             `json:"total_score"`
}

// HandleInvalidateSession handles POST /admin/sessions/{id}/invalidate
func (h *AdminHandler) HandleInvalidateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req invalidateRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	session, user, err := h.anticheat.InvalidateSession(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	log.Printf("[admin] %s invalidated session %s", adminName(r), id)
	respondJSON(w, http.StatusOK, invalidateResponse{Session: toSessionResponse(session), TotalScore: user.TotalScore})
}

type rewardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
	Stock       *int   `json:"stock"`
	Active      *bool  `json:"active"`
}

func (req rewardRequest) input() ledger.RewardInput {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return ledger.RewardInput{
		Name:        req.Name,
		Description: req.Description,
		Cost:        req.Cost,
		Stock:       req.Stock,
		Active:      active,
	}
}

// HandleListRewards handles GET /admin/rewards (including inactive)
func (h *AdminHandler) HandleListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.ledger.Rewards(r.Context(), false)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRewardResponses(rewards))
}

// HandleCreateReward handles POST /admin/rewards
func (h *AdminHandler) HandleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rw, err := h.ledger.CreateReward(r.Context(), req.input())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toRewardResponse(rw))
}

// HandleUpdateReward handles PUT /admin/rewards/{id}
func (h *AdminHandler) HandleUpdateReward(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req rewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rw, err := h.ledger.UpdateReward(r.Context(), id, req.input())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRewardResponse(rw))
}

// HandleListRedemptions handles GET /admin/redemptions
func (h *AdminHandler) HandleListRedemptions(w http.ResponseWriter, r *http.Request) {
	reds, err := h.ledger.Redemptions(r.Context(), queryLimit(r, 100, 500))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	out := make([]redemptionResponse, 0, len(reds))
	for _, red := range reds {
		out = append(out, toRedemptionResponse(red))
	}
	respondJSON(w, http.StatusOK, out)
}

type adRequest struct {
	Placement string `json:"placement"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url"`
	TargetURL string `json:"target_url"`
	Active    *bool  `json:"active"`
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (req adRequest) validate() error {
	if strings.TrimSpace(req.Placement) == "" {
		return errors.New("placement is required")
	}
	if !isHTTPURL(req.TargetURL) {
		return errors.New("target_url must be an http(s) URL")
	}
	if req.ImageURL != "" && !isHTTPURL(req.ImageURL) {
		return errors.New("image_url must be an http(s) URL")
	}
	return nil
}

func (req adRequest) apply(ad *model.AdPlacement) {
	ad.Placement = strings.TrimSpace(req.Placement)
	ad.Title = strings.TrimSpace(req.Title)
	ad.ImageURL = req.ImageURL
	ad.TargetURL = req.TargetURL
	ad.Active = req.Active == nil || *req.Active
}

// HandleListAds handles GET /admin/ads
func (h *AdminHandler) HandleListAds(w http.ResponseWriter, r *http.Request) {
	ads, err := h.ads.ListAll(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAdResponses(ads))
}

// HandleCreateAd handles POST /admin/ads
func (h *AdminHandler) HandleCreateAd(w http.ResponseWriter, r *http.Request) {
	var req adRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ad := model.AdPlacement{ID: uuid.New()}
	req.apply(&ad)
	created, err := h.ads.Create(r.Context(), ad)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAdResponse(created))
}

// HandleUpdateAd handles PUT /admin/ads/{id}
func (h *AdminHandler) HandleUpdateAd(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req adRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ad := model.AdPlacement{ID: id}
	req.apply(&ad)
	updated, err := h.ads.Update(r.Context(), ad)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAdResponse(updated))
}

type bonusRequest struct {
	Plays int `json:"plays"`
}

// HandleGrantBonus handles POST /admin/users/{id}/bonus
func (h *AdminHandler) HandleGrantBonus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req bonusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.ledger.GrantBonus(r.Context(), id, req.Plays)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	log.Printf("[admin] %s granted %d bonus plays to %s", adminName(r), req.Plays, id)
	respondJSON(w, http.StatusOK, toUserResponse(user))
}
