package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/santajump/server/internal/anticheat"
	"github.com/santajump/server/internal/auth"
	"github.com/santajump/server/internal/game"
	"github.com/santajump/server/internal/ledger"
	"github.com/santajump/server/internal/quota"
	"github.com/santajump/server/internal/repo"
)

const maxBodyBytes = 1 << 20

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// respondJSON sends v as a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] failed to encode response: %v", err)
	}
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields and oversized bodies
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be omitted. An empty
// body, chunked or not, leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorTable maps service sentinels to responses. The first match wins.
var errorTable = []errorMapping{
	{auth.ErrInvalidDestination, http.StatusBadRequest, "invalid phone number or email"},
	{auth.ErrOTPRateLimited, http.StatusTooManyRequests, "rate limit exceeded"},
	{auth.ErrOTPTooFast, http.StatusTooManyRequests, "too many attempts, slow down"},
	{auth.ErrInvalidOTP, http.StatusUnauthorized, "invalid or expired OTP"},
	{auth.ErrPhoneTaken, http.StatusConflict, "phone number is already in use"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{auth.ErrAdminDisabled, http.StatusForbidden, "admin login is disabled"},
	{quota.ErrNoPlaysLeft, http.StatusForbidden, "no_plays_left"},
	{game.ErrNotOwner, http.StatusForbidden, "session belongs to another user"},
	{game.ErrNotStarted, http.StatusConflict, "session is not in progress"},
	{game.ErrInvalidScore, http.StatusBadRequest, "score must not be negative"},
	{anticheat.ErrNotOwner, http.StatusForbidden, "session belongs to another user"},
	{anticheat.ErrAlreadyInvalid, http.StatusConflict, "session already invalid"},
	{ledger.ErrInsufficientPoints, http.StatusBadRequest, "insufficient_points"},
	{ledger.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
	{ledger.ErrRewardUnavailable, http.StatusConflict, "reward is not available"},
	{ledger.ErrUnknownTier, http.StatusBadRequest, "unknown voucher tier"},
	{ledger.ErrInvalidReferralCode, http.StatusBadRequest, "invalid referral code"},
	{ledger.ErrSelfReferral, http.StatusBadRequest, "cannot refer yourself"},
	{ledger.ErrInvalidReward, http.StatusBadRequest, "invalid reward"},
	{ledger.ErrInvalidBonus, http.StatusBadRequest, "bonus must be positive"},
	{repo.ErrNotFound, http.StatusNotFound, "not found"},
	{repo.ErrDuplicate, http.StatusConflict, "already exists"},
}

// respondWithServiceError maps err to a status code. Unknown errors are logged and
// reported as a generic 500.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			respondWithError(w, m.status, m.message)
			return
		}
	}
	log.Printf("[http] %s %s failed: %v", r.Method, r.URL.Path, err)
	respondWithError(w, http.StatusInternalServerError, "internal server error")
}

// uuidParam parses the chi URL parameter name as a UUID
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryLimit reads ?limit=, falling back to def and capping at max
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
