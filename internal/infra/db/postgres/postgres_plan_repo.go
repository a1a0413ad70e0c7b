package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.PlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planColumns = `
id, category_id, name, is_free_tier,
max_total_listings, max_active_listings, listing_quota_limit, listing_quota_rolling_days,
featured_days, boosted_days, spotlight_days, homepage_days,
max_featured_listings, max_boosted_listings, max_spotlight_listings, max_homepage_listings,
score_multiplier, created_at`

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.PlanTemplate) error {
	const sql = `
INSERT INTO plan_templates (` + planColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  name                       = EXCLUDED.name,
  is_free_tier               = EXCLUDED.is_free_tier,
  max_total_listings         = EXCLUDED.max_total_listings,
  max_active_listings        = EXCLUDED.max_active_listings,
  listing_quota_limit        = EXCLUDED.listing_quota_limit,
  listing_quota_rolling_days = EXCLUDED.listing_quota_rolling_days,
  featured_days              = EXCLUDED.featured_days,
  boosted_days               = EXCLUDED.boosted_days,
  spotlight_days             = EXCLUDED.spotlight_days,
  homepage_days              = EXCLUDED.homepage_days,
  max_featured_listings      = EXCLUDED.max_featured_listings,
  max_boosted_listings       = EXCLUDED.max_boosted_listings,
  max_spotlight_listings     = EXCLUDED.max_spotlight_listings,
  max_homepage_listings      = EXCLUDED.max_homepage_listings,
  score_multiplier           = EXCLUDED.score_multiplier;`

	_, err := execSQL(ctx, r.pool, tx, sql,
		p.ID, p.CategoryID, p.Name, p.IsFreeTier,
		p.MaxTotalListings, p.MaxActiveListings, p.ListingQuotaLimit, p.ListingQuotaRollingDays,
		p.FeaturedDays, p.BoostedDays, p.SpotlightDays, p.HomepageDays,
		p.MaxFeaturedListings, p.MaxBoostedListings, p.MaxSpotlightListings, p.MaxHomepageListings,
		p.ScoreMultiplier, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save plan template: %w", err)
	}
	return nil
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PlanTemplate, error) {
	const sql = `SELECT ` + planColumns + ` FROM plan_templates WHERE id = $1;`
	return r.queryOne(ctx, tx, sql, id)
}

func (r *PostgresPlanRepo) FindFreeTemplate(ctx context.Context, tx repository.Tx, categoryID string) (*model.PlanTemplate, error) {
	const sql = `
SELECT ` + planColumns + `
  FROM plan_templates
 WHERE category_id = $1 AND is_free_tier
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, sql, categoryID)
}

func (r *PostgresPlanRepo) ListByCategory(ctx context.Context, tx repository.Tx, categoryID string) ([]*model.PlanTemplate, error) {
	const sql = `
SELECT ` + planColumns + `
  FROM plan_templates
 WHERE category_id = $1
 ORDER BY is_free_tier DESC, created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, sql, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list plan templates: %w", err)
	}
	defer rows.Close()

	var out []*model.PlanTemplate
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan template: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *PostgresPlanRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.PlanTemplate, error) {
	row, err := queryRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find plan template: %w", err)
	}
	return p, nil
}

func scanPlan(row pgx.Row) (*model.PlanTemplate, error) {
	var p model.PlanTemplate
	err := row.Scan(
		&p.ID, &p.CategoryID, &p.Name, &p.IsFreeTier,
		&p.MaxTotalListings, &p.MaxActiveListings, &p.ListingQuotaLimit, &p.ListingQuotaRollingDays,
		&p.FeaturedDays, &p.BoostedDays, &p.SpotlightDays, &p.HomepageDays,
		&p.MaxFeaturedListings, &p.MaxBoostedListings, &p.MaxSpotlightListings, &p.MaxHomepageListings,
		&p.ScoreMultiplier, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
