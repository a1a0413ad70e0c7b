package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.ListingRepository = (*PostgresListingRepo)(nil)

type PostgresListingRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresListingRepo(pool *pgxpool.Pool) *PostgresListingRepo {
	return &PostgresListingRepo{pool: pool}
}

const listingColumns = `
id, owner_id, category_id, status, price, lat, lon, view_count, favorite_count,
featured_active, featured_until,
boost_active, boost_until,
spotlight_active, spotlight_until,
homepage_active, homepage_until,
consuming_subscription_id, is_paid, created_at, updated_at`

func (r *PostgresListingRepo) Save(ctx context.Context, tx repository.Tx, l *model.Listing) error {
	const sql = `
INSERT INTO listings (` + listingColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
ON CONFLICT (id) DO UPDATE SET
  status          = EXCLUDED.status,
  price           = EXCLUDED.price,
  lat             = EXCLUDED.lat,
  lon             = EXCLUDED.lon,
  view_count      = EXCLUDED.view_count,
  favorite_count  = EXCLUDED.favorite_count,
  featured_active = EXCLUDED.featured_active,
  featured_until  = EXCLUDED.featured_until,
  boost_active    = EXCLUDED.boost_active,
  boost_until     = EXCLUDED.boost_until,
  spotlight_active = EXCLUDED.spotlight_active,
  spotlight_until  = EXCLUDED.spotlight_until,
  homepage_active  = EXCLUDED.homepage_active,
  homepage_until   = EXCLUDED.homepage_until,
  updated_at       = EXCLUDED.updated_at;`

	var lat, lon *float64
	if l.Location != nil {
		lat, lon = &l.Location.Lat, &l.Location.Lon
	}
	_, err := execSQL(ctx, r.pool, tx, sql,
		l.ID, l.OwnerID, l.CategoryID, l.Status, l.Price, lat, lon,
		l.ViewCount, l.FavoriteCount,
		l.Featured.Active, l.Featured.Until,
		l.Features.Boost.Active, l.Features.Boost.Until,
		l.Features.Spotlight.Active, l.Features.Spotlight.Until,
		l.Features.Homepage.Active, l.Features.Homepage.Until,
		l.ConsumingSubscriptionID, l.IsPaid, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save listing: %w", err)
	}
	return nil
}

func (r *PostgresListingRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Listing, error) {
	const sql = `SELECT ` + listingColumns + ` FROM listings WHERE id = $1;`
	row, err := queryRow(ctx, r.pool, tx, sql, id)
	if err != nil {
		return nil, err
	}
	l, err := scanListing(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find listing: %w", err)
	}
	return l, nil
}

func (r *PostgresListingRepo) CountByOwner(ctx context.Context, tx repository.Tx, ownerID, categoryID string, statuses []model.ListingStatus, createdAfter *time.Time) (int, error) {
	const sql = `
SELECT COUNT(*) FROM listings
 WHERE owner_id = $1 AND category_id = $2 AND status = ANY($3)
   AND ($4::timestamptz IS NULL OR created_at >= $4);`
	row, err := queryRow(ctx, r.pool, tx, sql, ownerID, categoryID, statusStrings(statuses), createdAfter)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count owner listings: %w", err)
	}
	return n, nil
}

func (r *PostgresListingRepo) CountByConsumingSubscription(ctx context.Context, tx repository.Tx, subscriptionID string, statuses []model.ListingStatus) (int, error) {
	const sql = `
SELECT COUNT(*) FROM listings
 WHERE consuming_subscription_id = $1 AND status = ANY($2);`
	row, err := queryRow(ctx, r.pool, tx, sql, subscriptionID, statusStrings(statuses))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count consumed listings: %w", err)
	}
	return n, nil
}

func (r *PostgresListingRepo) CountWithFeature(ctx context.Context, tx repository.Tx, ownerID string, kind model.FeatureKind, now time.Time) (int, error) {
	active, until, err := featureColumns(kind)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf(`
SELECT COUNT(*) FROM listings
 WHERE owner_id = $1 AND %s AND (%s IS NULL OR %s >= $2);`, active, until, until)
	row, err := queryRow(ctx, r.pool, tx, sql, ownerID, now)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings with feature: %w", err)
	}
	return n, nil
}

func (r *PostgresListingRepo) SetConsumption(ctx context.Context, tx repository.Tx, listingID string, subscriptionID *string, isPaid bool) error {
	const sql = `
UPDATE listings
   SET consuming_subscription_id = $2, is_paid = $3, updated_at = NOW()
 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, sql, listingID, subscriptionID, isPaid)
	if err != nil {
		return fmt.Errorf("set consumption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresListingRepo) UpdateFeatures(ctx context.Context, tx repository.Tx, listingID string, patch model.FeaturePatch) error {
	const sql = `
UPDATE listings
   SET featured_active  = $2, featured_until  = $3,
       boost_active     = $4, boost_until     = $5,
       spotlight_active = $6, spotlight_until = $7,
       homepage_active  = $8, homepage_until  = $9,
       updated_at       = NOW()
 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, sql, listingID,
		patch.Featured.Active, patch.Featured.Until,
		patch.Features.Boost.Active, patch.Features.Boost.Until,
		patch.Features.Spotlight.Active, patch.Features.Spotlight.Until,
		patch.Features.Homepage.Active, patch.Features.Homepage.Until,
	)
	if err != nil {
		return fmt.Errorf("update features: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresListingRepo) ListActiveWithFeatures(ctx context.Context, tx repository.Tx) ([]*model.Listing, error) {
	const sql = `
SELECT ` + listingColumns + ` FROM listings
 WHERE status = 'active'
   AND (featured_active OR boost_active OR spotlight_active OR homepage_active)
 ORDER BY id;`
	rows, err := queryRows(ctx, r.pool, tx, sql)
	if err != nil {
		return nil, fmt.Errorf("list listings with features: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

func (r *PostgresListingRepo) ListActiveByCategory(ctx context.Context, tx repository.Tx, categoryID string, limit int) ([]*model.Listing, error) {
	if limit <= 0 {
		limit = 200
	}
	const sql = `
SELECT ` + listingColumns + ` FROM listings
 WHERE category_id = $1 AND status = 'active'
 ORDER BY created_at DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, sql, categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("list active listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// LockOwnerCategory takes a transaction-scoped advisory lock keyed on the
// (owner, category) pair. Requires a live transaction: the lock releases on
// commit/rollback.
func (r *PostgresListingRepo) LockOwnerCategory(ctx context.Context, tx repository.Tx, ownerID, categoryID string) error {
	if _, ok := tx.(pgx.Tx); !ok {
		return domain.ErrInvalidExecContext
	}
	_, err := execSQL(ctx, r.pool, tx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(ownerID+":"+categoryID))
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

func statusStrings(statuses []model.ListingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func featureColumns(kind model.FeatureKind) (active, until string, err error) {
	switch kind {
	case model.FeatureFeatured:
		return "featured_active", "featured_until", nil
	case model.FeatureBoost:
		return "boost_active", "boost_until", nil
	case model.FeatureSpotlight:
		return "spotlight_active", "spotlight_until", nil
	case model.FeatureHomepage:
		return "homepage_active", "homepage_until", nil
	}
	return "", "", domain.ErrInvalidArgument
}

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var lat, lon *float64
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.CategoryID, &l.Status, &l.Price, &lat, &lon,
		&l.ViewCount, &l.FavoriteCount,
		&l.Featured.Active, &l.Featured.Until,
		&l.Features.Boost.Active, &l.Features.Boost.Until,
		&l.Features.Spotlight.Active, &l.Features.Spotlight.Until,
		&l.Features.Homepage.Active, &l.Features.Homepage.Until,
		&l.ConsumingSubscriptionID, &l.IsPaid, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		l.Location = &model.GeoPoint{Lat: *lat, Lon: *lon}
	}
	return &l, nil
}

func collectListings(rows pgx.Rows) ([]*model.Listing, error) {
	var out []*model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
