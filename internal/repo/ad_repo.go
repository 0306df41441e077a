package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
)

// AdEvent is a counted interaction with an ad
type AdEvent string

const (
	AdImpression AdEvent = "impression"
	AdClick      AdEvent = "click"
)

// AdRepo defines the interface for ad placement repository operations
type AdRepo interface {
	ListActive(ctx context.Context, placement string) ([]model.AdPlacement, error)
	ListAll(ctx context.Context) ([]model.AdPlacement, error)
	Create(ctx context.Context, ad model.AdPlacement) (model.AdPlacement, error)
	Update(ctx context.Context, ad model.AdPlacement) (model.AdPlacement, error)
	Record(ctx context.Context, id uuid.UUID, event AdEvent) error
}

type adRepo struct {
	db *sql.DB
}

// NewAdRepo creates a new AdRepo instance
func NewAdRepo(db *sql.DB) AdRepo {
	return &adRepo{db: db}
}

const adColumns = `id, placement, title, image_url, target_url, active, impressions, clicks, created_at`

func scanAd(row rowScanner) (model.AdPlacement, error) {
	var ad model.AdPlacement
	err := row.Scan(&ad.ID, &ad.Placement, &ad.Title, &ad.ImageURL, &ad.TargetURL, &ad.Active,
		&ad.Impressions, &ad.Clicks, &ad.CreatedAt)
	return ad, err
}

func (r *adRepo) list(ctx context.Context, query string, args ...any) ([]model.AdPlacement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ads: %w", err)
	}
	defer rows.Close()

	var ads []model.AdPlacement
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		ads = append(ads, ad)
	}
	return ads, rows.Err()
}

// ListActive returns active ads, filtered by placement when it is not empty
func (r *adRepo) ListActive(ctx context.Context, placement string) ([]model.AdPlacement, error) {
	return r.list(ctx, `
		SELECT `+adColumns+`
		FROM ad_placements
		WHERE active AND ($1 = '' OR placement = $1)
		ORDER BY created_at DESC
	`, placement)
}

// ListAll returns every ad including inactive ones
func (r *adRepo) ListAll(ctx context.Context) ([]model.AdPlacement, error) {
	return r.list(ctx, `SELECT `+adColumns+` FROM ad_placements ORDER BY placement, created_at DESC`)
}

// Create inserts an ad
func (r *adRepo) Create(ctx context.Context, ad model.AdPlacement) (model.AdPlacement, error) {
	created, err := scanAd(r.db.QueryRowContext(ctx, `
		INSERT INTO ad_placements (id, placement, title, image_url, target_url, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+adColumns,
		ad.ID, ad.Placement, ad.Title, ad.ImageURL, ad.TargetURL, ad.Active))
	if err != nil {
		return model.AdPlacement{}, mapErr(err, "create ad")
	}
	return created, nil
}

// Update writes the editable fields of an ad; counters are left alone
func (r *adRepo) Update(ctx context.Context, ad model.AdPlacement) (model.AdPlacement, error) {
	updated, err := scanAd(r.db.QueryRowContext(ctx, `
		UPDATE ad_placements
		SET placement = $2, title = $3, image_url = $4, target_url = $5, active = $6
		WHERE id = $1
		RETURNING `+adColumns,
		ad.ID, ad.Placement, ad.Title, ad.ImageURL, ad.TargetURL, ad.Active))
	if err != nil {
		return model.AdPlacement{}, mapErr(err, "update ad")
	}
	return updated, nil
}

// Record increments the impression or click counter of an active ad
func (r *adRepo) Record(ctx context.Context, id uuid.UUID, event AdEvent) error {
	var query string
	switch event {
	case AdImpression:
		query = `UPDATE ad_placements SET impressions = impressions + 1 WHERE id = $1 AND active`
	case AdClick:
		query = `UPDATE ad_placements SET clicks = clicks + 1 WHERE id = $1 AND active`
	default:
		return fmt.Errorf("unknown ad event %q", event)
	}
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("record ad %s: %w", event, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("record ad %s: %w", event, ErrNotFound)
	}
	return nil
}
