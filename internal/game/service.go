// Package game runs game sessions: starting a play against the daily quota, scoring a
// finished play and abandoning one.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/anticheat"
	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/quota"
)

var (
	ErrNotStarted   = errors.New("session is not in progress")
	ErrNotOwner     = errors.New("session belongs to another user")
	ErrInvalidScore = errors.New("score must not be negative")
)

// ConfigSource provides the current game configuration
type ConfigSource interface {
	Get(ctx context.Context) (model.GameConfig, error)
}

// UserStore is the user persistence needed by the game service
type UserStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	Leaderboard(ctx context.Context, limit int) ([]model.User, error)
}

// SessionStore is the session persistence needed by the game service
type SessionStore interface {
	// Start locks the user row, lets fn charge the play and build the session, then
	// persists the user counters and inserts the session in the same transaction.
	Start(ctx context.Context, userID uuid.UUID, fn func(u *model.User) (model.GameSession, error)) (model.GameSession, model.User, error)
	UpdateLocked(ctx context.Context, sessionID uuid.UUID, fn func(s *model.GameSession, u *model.User) error) error
	History(ctx context.Context, userID uuid.UUID, limit int) ([]model.GameSession, error)
}

// Service implements the game session lifecycle
type Service struct {
	users    UserStore
	sessions SessionStore
	config   ConfigSource
	quota    *quota.Manager
	now      func() time.Time
}

// NewService creates a game service
func NewService(users UserStore, sessions SessionStore, config ConfigSource, quotaManager *quota.Manager) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		config:   config,
		quota:    quotaManager,
		now:      time.Now,
	}
}

// StartResult is the outcome of a successful start
type StartResult struct {
	Session   model.GameSession
	Remaining quota.Counts
}

// Status returns the user's remaining plays without consuming one
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (quota.Counts, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return quota.Counts{}, err
	}
	user, err := s.users.GetByID(ctx, userID.String())
	if err != nil {
		return quota.Counts{}, fmt.Errorf("get user: %w", err)
	}
	return s.quota.Remaining(user, cfg, s.now()), nil
}

// Start consumes one play and opens a session. fp may be nil when the client sent no
// fingerprint.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, fp *anticheat.Fingerprint) (StartResult, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return StartResult{}, err
	}
	now := s.now()

	suspicion, reasons := 0, []string(nil)
	if fp != nil {
		suspicion, reasons = anticheat.SuspicionScore(*fp)
	}

	session, user, err := s.sessions.Start(ctx, userID, func(u *model.User) (model.GameSession, error) {
		usedBonus, err := s.quota.Consume(u, cfg, now)
		if err != nil {
			return model.GameSession{}, err
		}
		gs := model.GameSession{
			ID:             uuid.New(),
			UserID:         u.ID,
			Status:         model.GameStarted,
			SuspicionScore: suspicion,
			UsedBonusPlay:  usedBonus,
			StartedAt:      now,
		}
		if cfg.SuspicionThreshold > 0 && suspicion >= cfg.SuspicionThreshold {
			gs.AddSuspicion(fmt.Sprintf("fingerprint suspicion %d: %s", suspicion, strings.Join(reasons, ", ")))
		}
		return gs, nil
	})
	if err != nil {
		return StartResult{}, err
	}

	if session.SuspicionReason != nil {
		log.Printf("[game] session %s flagged at start: %s", session.ID, *session.SuspicionReason)
	}
	return StartResult{Session: session, Remaining: s.quota.Remaining(user, cfg, now)}, nil
}

// ScoreCeiling is the highest score reachable in elapsed at maxPerSecond. Zero or
// negative maxPerSecond disables the ceiling.
func ScoreCeiling(elapsed time.Duration, maxPerSecond int) (int, bool) {
	if maxPerSecond <= 0 {
		return 0, false
	}
	secs := int(elapsed / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs * maxPerSecond, true
}

// Complete finishes a started session, credits the validated score and returns the
// updated session and user.
func (s *Service) Complete(ctx context.Context, userID, sessionID uuid.UUID, clientScore int) (model.GameSession, model.User, error) {
	if clientScore < 0 {
		return model.GameSession{}, model.User{}, ErrInvalidScore
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return model.GameSession{}, model.User{}, err
	}
	now := s.now()

	var session model.GameSession
	var user model.User
	err = s.sessions.UpdateLocked(ctx, sessionID, func(gs *model.GameSession, u *model.User) error {
		if gs.UserID != userID {
			return ErrNotOwner
		}
		if gs.Status != model.GameStarted {
			return ErrNotStarted
		}
		validated := clientScore
		if ceiling, ok := ScoreCeiling(now.Sub(gs.StartedAt), cfg.MaxScorePerSecond); ok && validated > ceiling {
			validated = ceiling
			gs.AddSuspicion(fmt.Sprintf("score %d exceeds time ceiling %d", clientScore, ceiling))
		}
		gs.ClientScore = clientScore
		gs.ValidatedScore = validated
		gs.Status = model.GameCompleted
		gs.EndedAt = &now
		u.TotalScore += validated
		session, user = *gs, *u
		return nil
	})
	if err != nil {
		return model.GameSession{}, model.User{}, err
	}
	return session, user, nil
}

// Abandon invalidates a started session without touching the score
func (s *Service) Abandon(ctx context.Context, userID, sessionID uuid.UUID) (model.GameSession, error) {
	now := s.now()
	var session model.GameSession
	err := s.sessions.UpdateLocked(ctx, sessionID, func(gs *model.GameSession, u *model.User) error {
		if gs.UserID != userID {
			return ErrNotOwner
		}
		if gs.Status != model.GameStarted {
			return ErrNotStarted
		}
		gs.Status = model.GameInvalid
		gs.AddSuspicion("abandoned")
		gs.EndedAt = &now
		session = *gs
		return nil
	})
	if err != nil {
		return model.GameSession{}, err
	}
	return session, nil
}

// History returns the user's recent sessions, newest first
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]model.GameSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.sessions.History(ctx, userID, limit)
}

// Leaderboard returns the top users by total score
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.users.Leaderboard(ctx, limit)
}
