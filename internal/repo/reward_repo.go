package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
)

// RewardRepo defines the interface for reward and redemption repository operations
type RewardRepo interface {
	Get(ctx context.Context, id uuid.UUID) (model.Reward, error)
	List(ctx context.Context, activeOnly bool) ([]model.Reward, error)
	Create(ctx context.Context, rw model.Reward) (model.Reward, error)
	Update(ctx context.Context, rw model.Reward) (model.Reward, error)
	Redeem(ctx context.Context, userID, rewardID uuid.UUID, fn func(u *model.User, rw *model.Reward) (model.RewardRedemption, error)) (model.RewardRedemption, model.User, error)
	ListRedemptions(ctx context.Context, limit int) ([]model.RewardRedemption, error)
}

type rewardRepo struct {
	db *sql.DB
}

// NewRewardRepo creates a new RewardRepo instance
func NewRewardRepo(db *sql.DB) RewardRepo {
	return &rewardRepo{db: db}
}

const rewardColumns = `id, slug, name, description, cost, stock, active, created_at`

func scanReward(row rowScanner) (model.Reward, error) {
	var rw model.Reward
	var stock sql.NullInt64
	err := row.Scan(&rw.ID, &rw.Slug, &rw.Name, &rw.Description, &rw.Cost, &stock, &rw.Active, &rw.CreatedAt)
	if err != nil {
		return model.Reward{}, err
	}
	if stock.Valid {
		n := int(stock.Int64)
		rw.Stock = &n
	}
	return rw, nil
}

// Get retrieves a reward by ID
func (r *rewardRepo) Get(ctx context.Context, id uuid.UUID) (model.Reward, error) {
	rw, err := scanReward(r.db.QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, id))
	if err != nil {
		return model.Reward{}, mapErr(err, "get reward")
	}
	return rw, nil
}

// List returns rewards ordered by cost; activeOnly hides inactive rewards
func (r *rewardRepo) List(ctx context.Context, activeOnly bool) ([]model.Reward, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rewardColumns+`
		FROM rewards
		WHERE active OR NOT $1
		ORDER BY cost ASC, name ASC
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, rw)
	}
	return rewards, rows.Err()
}

// Create inserts a reward; a taken slug yields ErrDuplicate
func (r *rewardRepo) Create(ctx context.Context, rw model.Reward) (model.Reward, error) {
	created, err := scanReward(r.db.QueryRowContext(ctx, `
		INSERT INTO rewards (id, slug, name, description, cost, stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+rewardColumns,
		rw.ID, rw.Slug, rw.Name, rw.Description, rw.Cost, rw.Stock, rw.Active))
	if err != nil {
		return model.Reward{}, mapErr(err, "create reward")
	}
	return created, nil
}

// Update writes the editable fields of a reward
func (r *rewardRepo) Update(ctx context.Context, rw model.Reward) (model.Reward, error) {
	updated, err := scanReward(r.db.QueryRowContext(ctx, `
		UPDATE rewards
		SET name = $2, description = $3, cost = $4, stock = $5, active = $6
		WHERE id = $1
		RETURNING `+rewardColumns,
		rw.ID, rw.Name, rw.Description, rw.Cost, rw.Stock, rw.Active))
	if err != nil {
		return model.Reward{}, mapErr(err, "update reward")
	}
	return updated, nil
}

// Redeem locks the user and then the reward, lets fn check and mutate both, and persists
// the user, the stock and the returned redemption in one transaction.
func (r *rewardRepo) Redeem(ctx context.Context, userID, rewardID uuid.UUID, fn func(u *model.User, rw *model.Reward) (model.RewardRedemption, error)) (model.RewardRedemption, model.User, error) {
	var red model.RewardRedemption
	var user model.User
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		rw, err := scanReward(tx.QueryRowContext(ctx,
			`SELECT `+rewardColumns+` FROM rewards WHERE id = $1 FOR UPDATE`, rewardID))
		if err != nil {
			return mapErr(err, "lock reward")
		}
		red, err = fn(&u, &rw)
		if err != nil {
			return err
		}
		if err := saveUser(ctx, tx, u); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rewards SET stock = $2 WHERE id = $1`, rw.ID, rw.Stock); err != nil {
			return mapErr(err, "update stock")
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO reward_redemptions (id, user_id, reward_id, cost, code)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`, red.ID, red.UserID, red.RewardID, red.Cost, red.Code).Scan(&red.CreatedAt)
		if err != nil {
			return mapErr(err, "insert redemption")
		}
		user = u
		return nil
	})
	if err != nil {
		return model.RewardRedemption{}, model.User{}, err
	}
	return red, user, nil
}

// ListRedemptions returns the most recent redemptions first
func (r *rewardRepo) ListRedemptions(ctx context.Context, limit int) ([]model.RewardRedemption, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, reward_id, cost, code, created_at
		FROM reward_redemptions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query redemptions: %w", err)
	}
	defer rows.Close()

	var out []model.RewardRedemption
	for rows.Next() {
		var red model.RewardRedemption
		if err := rows.Scan(&red.ID, &red.UserID, &red.RewardID, &red.Cost, &red.Code, &red.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		out = append(out, red)
	}
	return out, rows.Err()
}
