package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
)

// GameRepo defines the interface for game session repository operations
type GameRepo interface {
	Start(ctx context.Context, userID uuid.UUID, fn func(u *model.User) (model.GameSession, error)) (model.GameSession, model.User, error)
	UpdateLocked(ctx context.Context, sessionID uuid.UUID, fn func(s *model.GameSession, u *model.User) error) error
	GetByID(ctx context.Context, id uuid.UUID) (model.GameSession, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]model.GameSession, error)
	ListFlagged(ctx context.Context, limit int) ([]model.GameSession, error)
	ExpireStale(ctx context.Context, startedBefore time.Time) (int64, error)
}

type gameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a new GameRepo instance
func NewGameRepo(db *sql.DB) GameRepo {
	return &gameRepo{db: db}
}

const sessionColumns = `id, user_id, status, client_score, validated_score, suspicion_score,
	suspicion_reason, used_bonus_play, started_at, ended_at`

func scanSession(row rowScanner) (model.GameSession, error) {
	var s model.GameSession
	var status string
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&status,
		&s.ClientScore,
		&s.ValidatedScore,
		&s.SuspicionScore,
		&s.SuspicionReason,
		&s.UsedBonusPlay,
		&s.StartedAt,
		&s.EndedAt,
	)
	if err != nil {
		return model.GameSession{}, err
	}
	s.Status = model.GameStatus(status)
	return s, nil
}

func (r *gameRepo) list(ctx context.Context, query string, args ...any) ([]model.GameSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.GameSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Start locks the user, lets fn charge the play and build the session, then saves the
// user counters and inserts the session in the same transaction.
func (r *gameRepo) Start(ctx context.Context, userID uuid.UUID, fn func(u *model.User) (model.GameSession, error)) (model.GameSession, model.User, error) {
	var session model.GameSession
	var user model.User
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		s, err := fn(&u)
		if err != nil {
			return err
		}
		if err := saveUser(ctx, tx, u); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO game_sessions (id, user_id, status, suspicion_score, suspicion_reason, used_bonus_play, started_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, s.ID, s.UserID, string(s.Status), s.SuspicionScore, s.SuspicionReason, s.UsedBonusPlay, s.StartedAt)
		if err != nil {
			return mapErr(err, "insert session")
		}
		session, user = s, u
		return nil
	})
	if err != nil {
		return model.GameSession{}, model.User{}, err
	}
	return session, user, nil
}

// UpdateLocked loads the session and its owner under row locks, applies fn and writes
// both back when fn returns nil.
func (r *gameRepo) UpdateLocked(ctx context.Context, sessionID uuid.UUID, fn func(s *model.GameSession, u *model.User) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		s, err := scanSession(tx.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1 FOR UPDATE`, sessionID))
		if err != nil {
			return mapErr(err, "lock session")
		}
		u, err := lockUser(ctx, tx, s.UserID)
		if err != nil {
			return err
		}
		if err := fn(&s, &u); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE game_sessions
			SET status = $2, client_score = $3, validated_score = $4, suspicion_reason = $5, ended_at = $6
			WHERE id = $1
		`, s.ID, string(s.Status), s.ClientScore, s.ValidatedScore, s.SuspicionReason, s.EndedAt)
		if err != nil {
			return mapErr(err, "update session")
		}
		return saveUser(ctx, tx, u)
	})
}

// GetByID retrieves a session by ID
func (r *gameRepo) GetByID(ctx context.Context, id uuid.UUID) (model.GameSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1`, id))
	if err != nil {
		return model.GameSession{}, mapErr(err, "get session")
	}
	return s, nil
}

// History returns the user's sessions, newest first
func (r *gameRepo) History(ctx context.Context, userID uuid.UUID, limit int) ([]model.GameSession, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+`
		FROM game_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, limit)
}

// ListFlagged returns sessions with a suspicion reason or an invalid status, newest first
func (r *gameRepo) ListFlagged(ctx context.Context, limit int) ([]model.GameSession, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+`
		FROM game_sessions
		WHERE suspicion_reason IS NOT NULL OR status = 'invalid'
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
}

// ExpireStale invalidates sessions still started before the cutoff. They never scored,
// so no user total changes.
func (r *gameRepo) ExpireStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE game_sessions
		SET status = 'invalid',
		    suspicion_reason = COALESCE(suspicion_reason || '; ', '') || 'expired',
		    ended_at = now()
		WHERE status = 'started' AND started_at < $1
	`, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
