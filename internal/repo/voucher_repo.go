package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
)

// VoucherRepo defines the interface for voucher repository operations
type VoucherRepo interface {
	Issue(ctx context.Context, userID uuid.UUID, fn func(u *model.User) (model.Voucher, error)) (model.Voucher, model.User, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Voucher, error)
}

type voucherRepo struct {
	db *sql.DB
}

// NewVoucherRepo creates a new VoucherRepo instance
func NewVoucherRepo(db *sql.DB) VoucherRepo {
	return &voucherRepo{db: db}
}

// Issue locks the user, lets fn deduct the points and build the voucher, then saves the
// user and inserts the voucher in one transaction.
func (r *voucherRepo) Issue(ctx context.Context, userID uuid.UUID, fn func(u *model.User) (model.Voucher, error)) (model.Voucher, model.User, error) {
	var v model.Voucher
	var user model.User
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		v, err = fn(&u)
		if err != nil {
			return err
		}
		if err := saveUser(ctx, tx, u); err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO vouchers (id, user_id, code, points, value, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`, v.ID, v.UserID, v.Code, v.Points, v.Value, string(v.Status)).Scan(&v.CreatedAt)
		if err != nil {
			return mapErr(err, "insert voucher")
		}
		user = u
		return nil
	})
	if err != nil {
		return model.Voucher{}, model.User{}, err
	}
	return v, user, nil
}

// ListByUser returns the user's vouchers, newest first
func (r *voucherRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Voucher, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, code, points, value, status, created_at
		FROM vouchers
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []model.Voucher
	for rows.Next() {
		var v model.Voucher
		var status string
		if err := rows.Scan(&v.ID, &v.UserID, &v.Code, &v.Points, &v.Value, &status, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		v.Status = model.VoucherStatus(status)
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}
