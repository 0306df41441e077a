package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/ledger"
	"github.com/santajump/server/internal/middleware"
)

// LedgerHandler serves voucher and reward redemption for players
type LedgerHandler struct {
	ledger *ledger.Service
}

// NewLedgerHandler creates a ledger handler
func NewLedgerHandler(ledgerService *ledger.Service) *LedgerHandler {
	return &LedgerHandler{ledger: ledgerService}
}

type redeemVoucherRequest struct {
	Points int `json:"points"`
}

type redeemVoucherResponse struct {
	Voucher    voucherResponse `json:"voucher"`
	TotalScore int             `json:"total_score"`
}

type redeemRewardRequest struct {
	RewardID uuid.UUID `json:"reward_id"`
}

type redeemRewardResponse struct {
	Redemption redemptionResponse `json:"redemption"`
	TotalScore int                `json:"total_score"`
}

// HandleRedeemVoucher handles POST /voucher/redeem
func (h *LedgerHandler) HandleRedeemVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req redeemVoucherRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Points <= 0 {
		respondWithError(w, http.StatusBadRequest, "points is required")
		return
	}

	v, user, err := h.ledger.RedeemVoucher(r.Context(), userID, req.Points)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, redeemVoucherResponse{Voucher: toVoucherResponse(v), TotalScore: user.TotalScore})
}

// HandleListVouchers handles GET /voucher
func (h *LedgerHandler) HandleListVouchers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	vouchers, err := h.ledger.Vouchers(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	out := make([]voucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, toVoucherResponse(v))
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleListRewards handles GET /rewards (active rewards only)
func (h *LedgerHandler) HandleListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.ledger.Rewards(r.Context(), true)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRewardResponses(rewards))
}

// HandleRedeemReward handles POST /rewards/redeem
func (h *LedgerHandler) HandleRedeemReward(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req redeemRewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RewardID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "reward_id is required")
		return
	}

	red, user, err := h.ledger.RedeemReward(r.Context(), userID, req.RewardID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, redeemRewardResponse{Redemption: toRedemptionResponse(red), TotalScore: user.TotalScore})
}
