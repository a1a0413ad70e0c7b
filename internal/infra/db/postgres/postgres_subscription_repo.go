package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)

type PostgresSubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSubscriptionRepo(pool *pgxpool.Pool) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{pool: pool}
}

const subscriptionColumns = `
id, user_id, plan_id, category_id, is_free_tier,
max_total_listings, max_active_listings, listing_quota_limit, listing_quota_rolling_days,
featured_days, boosted_days, spotlight_days, homepage_days,
max_featured_listings, max_boosted_listings, max_spotlight_listings, max_homepage_listings,
status, activated_at, ends_at, cancellation_reason, auto_renew, created_at`

func (r *PostgresSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	const sql = `
INSERT INTO user_subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
ON CONFLICT (id) DO UPDATE SET
  status              = EXCLUDED.status,
  ends_at             = EXCLUDED.ends_at,
  cancellation_reason = EXCLUDED.cancellation_reason,
  auto_renew          = EXCLUDED.auto_renew;`

	_, err := execSQL(ctx, r.pool, tx, sql,
		s.ID, s.UserID, s.PlanID, s.CategoryID, s.IsFreeTier,
		s.MaxTotalListings, s.MaxActiveListings, s.ListingQuotaLimit, s.ListingQuotaRollingDays,
		s.FeaturedDays, s.BoostedDays, s.SpotlightDays, s.HomepageDays,
		s.MaxFeaturedListings, s.MaxBoostedListings, s.MaxSpotlightListings, s.MaxHomepageListings,
		s.Status, s.ActivatedAt, s.EndsAt, s.CancellationReason, s.AutoRenew, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	const sql = `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE id = $1;`
	return r.queryOne(ctx, tx, sql, id)
}

func (r *PostgresSubscriptionRepo) FindActivePaid(ctx context.Context, tx repository.Tx, userID, categoryID string) (*model.UserSubscription, error) {
	const sql = `
SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE user_id = $1 AND category_id = $2 AND status = 'active' AND NOT is_free_tier
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, sql, userID, categoryID)
}

func (r *PostgresSubscriptionRepo) Expire(ctx context.Context, tx repository.Tx, id, reason string, now time.Time) error {
	const sql = `
UPDATE user_subscriptions
   SET status = 'expired', cancellation_reason = $2, auto_renew = FALSE,
       ends_at = LEAST(COALESCE(ends_at, $3), $3)
 WHERE id = $1 AND status = 'active';`
	tag, err := execSQL(ctx, r.pool, tx, sql, id, reason, now)
	if err != nil {
		return fmt.Errorf("expire subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresSubscriptionRepo) ListExpiringBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.UserSubscription, error) {
	const sql = `
SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE status = 'active' AND ends_at IS NOT NULL AND ends_at <= $1
 ORDER BY ends_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, sql, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expiring subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*model.UserSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *PostgresSubscriptionRepo) CountActiveByPlan(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	const sql = `
SELECT plan_id, COUNT(*)
  FROM user_subscriptions
 WHERE status = 'active'
 GROUP BY plan_id;`
	rows, err := queryRows(ctx, r.pool, tx, sql)
	if err != nil {
		return nil, fmt.Errorf("count active by plan: %w", err)
	}
	defer rows.Close()

	m := make(map[string]int)
	for rows.Next() {
		var planID string
		var n int
		if err := rows.Scan(&planID, &n); err != nil {
			return nil, fmt.Errorf("scan plan count: %w", err)
		}
		m[planID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return m, nil
}

func (r *PostgresSubscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.UserSubscription, error) {
	row, err := queryRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*model.UserSubscription, error) {
	var s model.UserSubscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.CategoryID, &s.IsFreeTier,
		&s.MaxTotalListings, &s.MaxActiveListings, &s.ListingQuotaLimit, &s.ListingQuotaRollingDays,
		&s.FeaturedDays, &s.BoostedDays, &s.SpotlightDays, &s.HomepageDays,
		&s.MaxFeaturedListings, &s.MaxBoostedListings, &s.MaxSpotlightListings, &s.MaxHomepageListings,
		&s.Status, &s.ActivatedAt, &s.EndsAt, &s.CancellationReason, &s.AutoRenew, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
