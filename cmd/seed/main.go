package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"classifieds-listing-core/internal/config"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
	pg "classifieds-listing-core/internal/infra/db/postgres"
)

// Bootstraps the schema and seeds a demo category with a free and a paid plan
// template plus a handful of users and listings. Safe to re-run: it stops if
// plan templates for the demo category already exist.

const demoCategoryID = "6f1b2c3d-0000-4000-8000-000000000001"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL DEFAULT '',
		auto_approve  BOOLEAN NOT NULL DEFAULT FALSE,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS plan_templates (
		id                          TEXT PRIMARY KEY,
		category_id                 TEXT NOT NULL,
		name                        TEXT NOT NULL,
		is_free_tier                BOOLEAN NOT NULL DEFAULT FALSE,
		max_total_listings          INT NOT NULL DEFAULT 0,
		max_active_listings         INT NOT NULL DEFAULT 0,
		listing_quota_limit         INT NOT NULL DEFAULT 0,
		listing_quota_rolling_days  INT NOT NULL DEFAULT 0,
		featured_days               INT NOT NULL DEFAULT 0,
		boosted_days                INT NOT NULL DEFAULT 0,
		spotlight_days              INT NOT NULL DEFAULT 0,
		homepage_days               INT NOT NULL DEFAULT 0,
		max_featured_listings       INT NOT NULL DEFAULT 0,
		max_boosted_listings        INT NOT NULL DEFAULT 0,
		max_spotlight_listings      INT NOT NULL DEFAULT 0,
		max_homepage_listings       INT NOT NULL DEFAULT 0,
		score_multiplier            DOUBLE PRECISION NOT NULL DEFAULT 1,
		created_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_plan_templates_category
		ON plan_templates (category_id, is_free_tier);`,
	`CREATE TABLE IF NOT EXISTS user_subscriptions (
		id                          TEXT PRIMARY KEY,
		user_id                     TEXT NOT NULL REFERENCES users(id),
		plan_id                     TEXT NOT NULL REFERENCES plan_templates(id),
		category_id                 TEXT NOT NULL,
		is_free_tier                BOOLEAN NOT NULL DEFAULT FALSE,
		max_total_listings          INT NOT NULL DEFAULT 0,
		max_active_listings         INT NOT NULL DEFAULT 0,
		listing_quota_limit         INT NOT NULL DEFAULT 0,
		listing_quota_rolling_days  INT NOT NULL DEFAULT 0,
		featured_days               INT NOT NULL DEFAULT 0,
		boosted_days                INT NOT NULL DEFAULT 0,
		spotlight_days              INT NOT NULL DEFAULT 0,
		homepage_days               INT NOT NULL DEFAULT 0,
		max_featured_listings       INT NOT NULL DEFAULT 0,
		max_boosted_listings        INT NOT NULL DEFAULT 0,
		max_spotlight_listings      INT NOT NULL DEFAULT 0,
		max_homepage_listings       INT NOT NULL DEFAULT 0,
		status                      TEXT NOT NULL,
		activated_at                TIMESTAMPTZ,
		ends_at                     TIMESTAMPTZ,
		cancellation_reason         TEXT NOT NULL DEFAULT '',
		auto_renew                  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_user_subscriptions_lookup
		ON user_subscriptions (user_id, category_id, status);`,
	`CREATE TABLE IF NOT EXISTS listings (
		id                         TEXT PRIMARY KEY,
		owner_id                   TEXT NOT NULL REFERENCES users(id),
		category_id                TEXT NOT NULL,
		status                     TEXT NOT NULL,
		price                      BIGINT NOT NULL DEFAULT 0,
		lat                        DOUBLE PRECISION,
		lon                        DOUBLE PRECISION,
		view_count                 BIGINT NOT NULL DEFAULT 0,
		favorite_count             BIGINT NOT NULL DEFAULT 0,
		featured_active            BOOLEAN NOT NULL DEFAULT FALSE,
		featured_until             TIMESTAMPTZ,
		boost_active               BOOLEAN NOT NULL DEFAULT FALSE,
		boost_until                TIMESTAMPTZ,
		spotlight_active           BOOLEAN NOT NULL DEFAULT FALSE,
		spotlight_until            TIMESTAMPTZ,
		homepage_active            BOOLEAN NOT NULL DEFAULT FALSE,
		homepage_until             TIMESTAMPTZ,
		consuming_subscription_id  TEXT,
		is_paid                    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at                 TIMESTAMPTZ NOT NULL,
		updated_at                 TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_listings_owner_category
		ON listings (owner_id, category_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_listings_category_active
		ON listings (category_id, status, created_at DESC);`,
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", true, "developer mode (relaxed config validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("schema: %v", err)
		}
	}
	fmt.Println("schema ready")

	planRepo := pg.NewPostgresPlanRepo(pool)
	userRepo := pg.NewPostgresUserRepo(pool)
	listingRepo := pg.NewPostgresListingRepo(pool)

	existing, err := planRepo.ListByCategory(ctx, repository.NoTX, demoCategoryID)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d plan templates already present for demo category. No changes.\n", len(existing))
		return
	}

	now := time.Now().UTC()

	free, err := model.NewPlanTemplate(uuid.NewString(), demoCategoryID, "Free", true)
	if err != nil {
		log.Fatalf("free template: %v", err)
	}
	free.ListingQuotaLimit = 3
	free.ListingQuotaRollingDays = 30

	paid, err := model.NewPlanTemplate(uuid.NewString(), demoCategoryID, "Pro", false)
	if err != nil {
		log.Fatalf("paid template: %v", err)
	}
	paid.MaxTotalListings = 25
	paid.MaxActiveListings = 10
	paid.FeaturedDays = 7
	paid.BoostedDays = 3
	paid.SpotlightDays = 3
	paid.HomepageDays = 1
	paid.MaxFeaturedListings = 5
	paid.MaxBoostedListings = 5
	paid.MaxSpotlightListings = 2
	paid.MaxHomepageListings = 1
	paid.ScoreMultiplier = 1.2

	for _, p := range []*model.PlanTemplate{free, paid} {
		if err := planRepo.Save(ctx, repository.NoTX, p); err != nil {
			log.Fatalf("save template %q: %v", p.Name, err)
		}
		fmt.Printf("seeded template: %s (id=%s free=%v)\n", p.Name, p.ID, p.IsFreeTier)
	}

	users := []struct {
		name        string
		autoApprove bool
	}{
		{"alice", true},
		{"bob", false},
	}
	for i, su := range users {
		u, err := model.NewUser(uuid.NewString(), su.name)
		if err != nil {
			log.Fatalf("user %q: %v", su.name, err)
		}
		u.AutoApprove = su.autoApprove
		if err := userRepo.Save(ctx, repository.NoTX, u); err != nil {
			log.Fatalf("save user %q: %v", su.name, err)
		}

		l, err := model.NewListing(newListingID(now), u.ID, demoCategoryID, model.ListingStatusActive, int64(1000*(i+1)), now)
		if err != nil {
			log.Fatalf("listing for %q: %v", su.name, err)
		}
		l.Location = &model.GeoPoint{Lat: 52.52 + float64(i)*0.1, Lon: 13.40}
		if err := listingRepo.Save(ctx, repository.NoTX, l); err != nil {
			log.Fatalf("save listing: %v", err)
		}
		fmt.Printf("seeded user %s (id=%s) with listing %s\n", su.name, u.ID, l.ID)
	}

	fmt.Println("seeding complete")
}

func newListingID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
