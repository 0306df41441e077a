package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/anticheat"
	"github.com/santajump/server/internal/game"
	"github.com/santajump/server/internal/middleware"
	"github.com/santajump/server/internal/quota"
)

// GameHandler serves the game session lifecycle and client anti-cheat reports
type GameHandler struct {
	games     *game.Service
	anticheat *anticheat.Service
}

// NewGameHandler creates a game handler
func NewGameHandler(games *game.Service, ac *anticheat.Service) *GameHandler {
	return &GameHandler{games: games, anticheat: ac}
}

type startRequest struct {
	Fingerprint *anticheat.Fingerprint `json:"fingerprint,omitempty"`
}

type startResponse struct {
	SessionID      string       `json:"session_id"`
	SuspicionScore int          `json:"suspicion_score"`
	Remaining      quota.Counts `json:"remaining"`
}

type sessionRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

type completeRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Score     *int      `json:"score"`
}

type completeResponse struct {
	Session    sessionResponse `json:"session"`
	TotalScore int             `json:"total_score"`
}

type heartbeatRequest struct {
	SessionID uuid.UUID        `json:"session_id"`
	Sample    anticheat.Sample `json:"sample"`
}

type violationRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
}

// HandleStart handles POST /game/start
func (h *GameHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req startRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	res, err := h.games.Start(r.Context(), userID, req.Fingerprint)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, startResponse{
		SessionID:      res.Session.ID.String(),
		SuspicionScore: res.Session.SuspicionScore,
		Remaining:      res.Remaining,
	})
}

// HandleComplete handles POST /game/complete
func (h *GameHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req completeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == uuid.Nil || req.Score == nil {
		respondWithError(w, http.StatusBadRequest, "session_id and score are required")
		return
	}

	session, user, err := h.games.Complete(r.Context(), userID, req.SessionID, *req.Score)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, completeResponse{Session: toSessionResponse(session), TotalScore: user.TotalScore})
}

// HandleAbandon handles POST /game/abandon
func (h *GameHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req sessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	session, err := h.games.Abandon(r.Context(), userID, req.SessionID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(session))
}

// HandleHeartbeat handles POST /game/heartbeat. The client polls window geometry and
// debugger timing; a detection invalidates the session.
func (h *GameHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req heartbeatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	var reportErr error
	detector := anticheat.NewDevToolsDetector(func(v anticheat.Violation) {
		reportErr = h.anticheat.ReportViolation(r.Context(), userID, req.SessionID, v)
	})
	violation := detector.Observe(req.Sample)
	if reportErr != nil {
		respondWithServiceError(w, r, reportErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": !violation, "violation": violation})
}

// HandleViolation handles POST /game/violation
func (h *GameHandler) HandleViolation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req violationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Kind = strings.TrimSpace(req.Kind)
	if req.SessionID == uuid.Nil || req.Kind == "" {
		respondWithError(w, http.StatusBadRequest, "session_id and kind are required")
		return
	}

	v := anticheat.Violation{Kind: req.Kind, Detail: req.Detail}
	if err := h.anticheat.ReportViolation(r.Context(), userID, req.SessionID, v); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// HandleHistory handles GET /game/history
func (h *GameHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessions, err := h.games.History(r.Context(), userID, queryLimit(r, 20, 100))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponses(sessions))
}
