package handlers

import (
	"net/http"
	"strings"

	"github.com/santajump/server/internal/auth"
	"github.com/santajump/server/internal/game"
	"github.com/santajump/server/internal/ledger"
	"github.com/santajump/server/internal/middleware"
	"github.com/santajump/server/internal/quota"
)

// MeHandler serves the signed-in player's profile and phone verification
type MeHandler struct {
	authService *auth.AuthService
	games       *game.Service
	ledger      *ledger.Service
}

// NewMeHandler creates a profile handler
func NewMeHandler(authService *auth.AuthService, games *game.Service, ledgerService *ledger.Service) *MeHandler {
	return &MeHandler{authService: authService, games: games, ledger: ledgerService}
}

type referralStats struct {
	Total    int `json:"total"`
	Rewarded int `json:"rewarded"`
}

type meResponse struct {
	User      userResponse  `json:"user"`
	Remaining quota.Counts  `json:"remaining"`
	Referrals referralStats `json:"referrals"`
}

// HandleMe handles GET /me
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	remaining, err := h.games.Status(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	total, rewarded, err := h.ledger.ReferralStats(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, meResponse{
		User:      toUserResponse(*user),
		Remaining: remaining,
		Referrals: referralStats{Total: total, Rewarded: rewarded},
	})
}

type phoneRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp,omitempty"`
}

// HandleRequestPhoneOTP handles POST /me/phone/request-otp
func (h *MeHandler) HandleRequestPhoneOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req phoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		respondWithError(w, http.StatusBadRequest, "phone is required")
		return
	}

	devCode, err := h.authService.RequestPhoneVerification(r.Context(), userID, req.Phone, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, otpSentResponse{Message: "otp_sent", DevOTP: devCode})
}

// HandleVerifyPhone handles POST /me/phone/verify
func (h *MeHandler) HandleVerifyPhone(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req phoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OTP = strings.TrimSpace(req.OTP)
	if strings.TrimSpace(req.Phone) == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "phone and otp are required")
		return
	}

	user, err := h.authService.VerifyPhone(r.Context(), userID, req.Phone, req.OTP, middleware.ClientIP(r))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(user))
}
