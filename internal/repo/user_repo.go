package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByReferralCode(ctx context.Context, code string) (model.User, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	VerifyPhone(ctx context.Context, userID uuid.UUID, phone string, bonus int) (model.User, bool, error)
	AddBonusPlays(ctx context.Context, userID uuid.UUID, n int) (model.User, error)
	Leaderboard(ctx context.Context, limit int) ([]model.User, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, phone, email, display_name, referral_code, referred_by, phone_verified_at,
	plays_today, bonus_plays, total_score, last_play_date, created_at`

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	var referredBy uuid.NullUUID
	err := row.Scan(
		&u.ID,
		&u.Phone,
		&u.Email,
		&u.DisplayName,
		&u.ReferralCode,
		&referredBy,
		&u.PhoneVerifiedAt,
		&u.PlaysToday,
		&u.BonusPlays,
		&u.TotalScore,
		&u.LastPlayDate,
		&u.CreatedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	if referredBy.Valid {
		id := referredBy.UUID
		u.ReferredBy = &id
	}
	return u, nil
}

func (r *userRepo) getBy(ctx context.Context, column string, value any) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		return model.User{}, mapErr(err, "get user")
	}
	return u, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", ErrNotFound)
	}
	return r.getBy(ctx, "id", uid)
}

// GetByPhone retrieves a user by E.164 phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.getBy(ctx, "phone", phone)
}

// GetByEmail retrieves a user by lower-cased email address
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getBy(ctx, "email", email)
}

// GetByReferralCode retrieves the owner of a referral code
func (r *userRepo) GetByReferralCode(ctx context.Context, code string) (model.User, error) {
	return r.getBy(ctx, "referral_code", code)
}

// Create inserts a user. A taken phone, email or referral code yields ErrDuplicate.
func (r *userRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	query := `
		INSERT INTO users (phone, email, display_name, referral_code)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	created, err := scanUser(r.db.QueryRowContext(ctx, query, u.Phone, u.Email, u.DisplayName, u.ReferralCode))
	if err != nil {
		return model.User{}, mapErr(err, "create user")
	}
	return created, nil
}

// VerifyPhone attaches a verified phone to the user. The first verification also grants
// bonus plays; it reports whether this call was that first verification.
func (r *userRepo) VerifyPhone(ctx context.Context, userID uuid.UUID, phone string, bonus int) (model.User, bool, error) {
	var user model.User
	var first bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u.PhoneVerifiedAt != nil && u.Phone != nil && *u.Phone == phone {
			user = u
			return nil
		}
		if u.PhoneVerifiedAt == nil {
			u.BonusPlays += bonus
			first = true
		}
		now := time.Now()
		u.Phone = &phone
		u.PhoneVerifiedAt = &now
		if err := saveUser(ctx, tx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return model.User{}, false, err
	}
	return user, first, nil
}

// AddBonusPlays credits n bonus plays to the user
func (r *userRepo) AddBonusPlays(ctx context.Context, userID uuid.UUID, n int) (model.User, error) {
	query := `UPDATE users SET bonus_plays = bonus_plays + $2 WHERE id = $1 RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRowContext(ctx, query, userID, n))
	if err != nil {
		return model.User{}, mapErr(err, "add bonus plays")
	}
	return u, nil
}

// Leaderboard returns users with a positive score, highest first; ties go to the earlier signup
func (r *userRepo) Leaderboard(ctx context.Context, limit int) ([]model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE total_score > 0
		ORDER BY total_score DESC, created_at ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// lockUser loads the user row under FOR UPDATE within tx
func lockUser(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	u, err := scanUser(tx.QueryRowContext(ctx, query, userID))
	if err != nil {
		return model.User{}, mapErr(err, "lock user")
	}
	return u, nil
}

// saveUser writes back the mutable counters and phone of a locked user
func saveUser(ctx context.Context, tx *sql.Tx, u model.User) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET phone = $2, phone_verified_at = $3, plays_today = $4, bonus_plays = $5,
		    total_score = $6, last_play_date = $7
		WHERE id = $1
	`, u.ID, u.Phone, u.PhoneVerifiedAt, u.PlaysToday, u.BonusPlays, u.TotalScore, u.LastPlayDate)
	return mapErr(err, "save user")
}
