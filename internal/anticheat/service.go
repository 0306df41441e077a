package anticheat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
)

var (
	// ErrAlreadyInvalid is returned when invalidating a session that is already invalid
	ErrAlreadyInvalid = errors.New("session already invalid")
	// ErrNotOwner is returned when a user reports on a session that is not theirs
	ErrNotOwner = errors.New("session belongs to another user")
)

// SessionStore is the persistence needed by the anti-cheat service
type SessionStore interface {
	ListFlagged(ctx context.Context, limit int) ([]model.GameSession, error)
	// UpdateLocked loads the session and its owner under row locks, applies fn and
	// persists both when fn returns nil.
	UpdateLocked(ctx context.Context, sessionID uuid.UUID, fn func(s *model.GameSession, u *model.User) error) error
}

// Service lists flagged sessions and invalidates cheating sessions
type Service struct {
	sessions SessionStore
	now      func() time.Time
}

// NewService creates an anti-cheat service
func NewService(sessions SessionStore) *Service {
	return &Service{sessions: sessions, now: time.Now}
}

// Invalidate marks s invalid and rolls back its validated score from u's total, which
// never drops below zero.
func Invalidate(s *model.GameSession, u *model.User, reason string, now time.Time) error {
	if s.Status == model.GameInvalid {
		return ErrAlreadyInvalid
	}
	u.TotalScore -= s.ValidatedScore
	if u.TotalScore < 0 {
		u.TotalScore = 0
	}
	s.Status = model.GameInvalid
	s.AddSuspicion(reason)
	if s.EndedAt == nil {
		s.EndedAt = &now
	}
	return nil
}

// ListFlagged returns sessions with a suspicion reason or an invalid status, newest first
func (svc *Service) ListFlagged(ctx context.Context, limit int) ([]model.GameSession, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	sessions, err := svc.sessions.ListFlagged(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list flagged sessions: %w", err)
	}
	return sessions, nil
}

// InvalidateSession is the admin action: mark the session invalid and subtract its score
func (svc *Service) InvalidateSession(ctx context.Context, sessionID uuid.UUID, reason string) (model.GameSession, model.User, error) {
	if reason == "" {
		reason = "invalidated by admin"
	}
	var session model.GameSession
	var user model.User
	err := svc.sessions.UpdateLocked(ctx, sessionID, func(s *model.GameSession, u *model.User) error {
		if err := Invalidate(s, u, reason, svc.now()); err != nil {
			return err
		}
		session, user = *s, *u
		return nil
	})
	if err != nil {
		return model.GameSession{}, model.User{}, err
	}
	log.Printf("[anticheat] session %s invalidated (%s), user %s total now %d", sessionID, reason, user.ID, user.TotalScore)
	return session, user, nil
}

// ReportViolation invalidates the caller's own session after a client-side detection.
// A session that is already invalid is left as is.
func (svc *Service) ReportViolation(ctx context.Context, userID, sessionID uuid.UUID, v Violation) error {
	err := svc.sessions.UpdateLocked(ctx, sessionID, func(s *model.GameSession, u *model.User) error {
		if s.UserID != userID {
			return ErrNotOwner
		}
		return Invalidate(s, u, v.String(), svc.now())
	})
	if errors.Is(err, ErrAlreadyInvalid) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("[anticheat] violation on session %s by user %s: %s", sessionID, userID, v)
	return nil
}
