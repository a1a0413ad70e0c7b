package model

import (
	"time"

	"classifieds-listing-core/internal/domain"
)

// PlanTemplate is a catalog entry describing the entitlements a subscription
// grants in one category. Templates are immutable per version: user
// subscriptions copy every field at assignment time, so later catalog edits
// never change an already-granted entitlement.
type PlanTemplate struct {
	ID         string // UUID
	CategoryID string // UUID of category
	Name       string
	IsFreeTier bool

	// Quota fields
	MaxTotalListings        int // paid tier: lifetime cap per subscription
	MaxActiveListings       int
	ListingQuotaLimit       int // free tier: cap inside the rolling window
	ListingQuotaRollingDays int

	// Per-feature day allowances
	FeaturedDays  int
	BoostedDays   int
	SpotlightDays int
	HomepageDays  int

	// Per-feature usage caps (simultaneously featured listings etc.)
	MaxFeaturedListings  int
	MaxBoostedListings   int
	MaxSpotlightListings int
	MaxHomepageListings  int

	ScoreMultiplier float64

	CreatedAt time.Time
}

func (p *PlanTemplate) IsZero() bool { return p == nil || p.ID == "" }

// NewPlanTemplate validates and constructs a template.
func NewPlanTemplate(id, categoryID, name string, freeTier bool) (*PlanTemplate, error) {
	if id == "" || categoryID == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &PlanTemplate{
		ID:              id,
		CategoryID:      categoryID,
		Name:            name,
		IsFreeTier:      freeTier,
		ScoreMultiplier: 1,
		CreatedAt:       time.Now(),
	}, nil
}

// AllowanceDays returns the day allowance this template grants for a feature kind.
func (p *PlanTemplate) AllowanceDays(kind FeatureKind) int {
	switch kind {
	case FeatureFeatured:
		return p.FeaturedDays
	case FeatureBoost:
		return p.BoostedDays
	case FeatureSpotlight:
		return p.SpotlightDays
	case FeatureHomepage:
		return p.HomepageDays
	}
	return 0
}

// FeatureCap returns how many listings may hold the feature at once.
func (p *PlanTemplate) FeatureCap(kind FeatureKind) int {
	switch kind {
	case FeatureFeatured:
		return p.MaxFeaturedListings
	case FeatureBoost:
		return p.MaxBoostedListings
	case FeatureSpotlight:
		return p.MaxSpotlightListings
	case FeatureHomepage:
		return p.MaxHomepageListings
	}
	return 0
}
