package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
)

// OtpRepo defines the interface for OTP session repository operations
type OtpRepo interface {
	CreateOrReplaceSession(ctx context.Context, destination, otpHashHex string, expiresAt time.Time, requestIP, userAgent *string) (uuid.UUID, error)
	GetActiveSession(ctx context.Context, destination string) (model.OtpSession, error)
	MarkConsumed(ctx context.Context, sessionID uuid.UUID) error
	IncrementAttempt(ctx context.Context, sessionID uuid.UUID) (newAttemptCount int, err error)
	CountRecentRequests(ctx context.Context, destination string, since time.Time) (int, error)
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// CreateOrReplaceSession keeps one active session per destination: it consumes any
// existing active session and inserts the new one under an advisory lock.
func (r *otpRepo) CreateOrReplaceSession(ctx context.Context, destination, otpHashHex string, expiresAt time.Time, requestIP, userAgent *string) (uuid.UUID, error) {
	var id uuid.UUID
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		// serializes concurrent requests for one destination; released on commit/rollback
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, destination); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		// the partial unique index covers expired rows too, so consume all of them
		_, err := tx.ExecContext(ctx, `
			UPDATE otp_sessions
			SET consumed_at = now()
			WHERE destination = $1 AND consumed_at IS NULL
		`, destination)
		if err != nil {
			return fmt.Errorf("consume existing sessions: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO otp_sessions (destination, otp_hash, expires_at, request_ip, user_agent)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, destination, otpHashHex, expiresAt, requestIP, userAgent).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetActiveSession returns the latest unconsumed, unexpired session with attempts left
func (r *otpRepo) GetActiveSession(ctx context.Context, destination string) (model.OtpSession, error) {
	query := `
		SELECT id, destination, otp_hash, expires_at, consumed_at, created_at,
		       attempt_count, last_attempt_at, request_ip, user_agent
		FROM otp_sessions
		WHERE destination = $1
		  AND consumed_at IS NULL
		  AND expires_at > now()
		  AND attempt_count < 5
		ORDER BY created_at DESC
		LIMIT 1
	`
	var session model.OtpSession
	var otpHashHex string
	err := r.db.QueryRowContext(ctx, query, destination).Scan(
		&session.ID,
		&session.Destination,
		&otpHashHex,
		&session.ExpiresAt,
		&session.ConsumedAt,
		&session.CreatedAt,
		&session.AttemptCount,
		&session.LastAttemptAt,
		&session.RequestIP,
		&session.UserAgent,
	)
	if err != nil {
		return model.OtpSession{}, mapErr(err, "get otp session")
	}

	session.OTPHash, err = hex.DecodeString(otpHashHex)
	if err != nil {
		return model.OtpSession{}, fmt.Errorf("decode otp_hash: %w", err)
	}
	return session, nil
}

// MarkConsumed sets consumed_at = now() for the session
func (r *otpRepo) MarkConsumed(ctx context.Context, sessionID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE otp_sessions SET consumed_at = now() WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("mark consumed: %w", ErrNotFound)
	}
	return nil
}

// IncrementAttempt bumps attempt_count and last_attempt_at and returns the new count
func (r *otpRepo) IncrementAttempt(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE otp_sessions
		SET attempt_count = attempt_count + 1, last_attempt_at = now()
		WHERE id = $1
		RETURNING attempt_count
	`, sessionID).Scan(&newCount)
	if err != nil {
		return 0, mapErr(err, "increment attempt")
	}
	return newCount, nil
}

// CountRecentRequests returns the number of sessions created for the destination since the given time
func (r *otpRepo) CountRecentRequests(ctx context.Context, destination string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM otp_sessions
		WHERE destination = $1 AND created_at >= $2
	`, destination, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent requests: %w", err)
	}
	return count, nil
}

// PurgeBefore deletes sessions created before the cutoff
func (r *otpRepo) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_sessions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge otp sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
