package model

import (
	"time"

	"classifieds-listing-core/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
)

// CancellationQuotaExhausted marks the one-way downgrade performed by the
// quota ledger when a paid subscription consumes its last listing unit.
const CancellationQuotaExhausted = "quota exhausted"

// UserSubscription is a point-in-time snapshot of a PlanTemplate assigned to
// one user. All entitlement fields are copied from the template at assignment,
// so the subscription stays stable even if the catalog changes afterwards.
// Invariant: at most one active subscription per (user, category).
type UserSubscription struct {
	ID         string // UUID
	UserID     string // UUID of user
	PlanID     string // UUID of the template this was snapshotted from
	CategoryID string

	IsFreeTier bool

	MaxTotalListings        int
	MaxActiveListings       int
	ListingQuotaLimit       int
	ListingQuotaRollingDays int

	FeaturedDays  int
	BoostedDays   int
	SpotlightDays int
	HomepageDays  int

	MaxFeaturedListings  int
	MaxBoostedListings   int
	MaxSpotlightListings int
	MaxHomepageListings  int

	Status             SubscriptionStatus
	ActivatedAt        time.Time
	EndsAt             *time.Time // nil means no natural expiry
	CancellationReason string
	AutoRenew          bool
	CreatedAt          time.Time
}

// NewUserSubscription snapshots a template for a user at the given instant.
func NewUserSubscription(id, userID string, tmpl *PlanTemplate, now time.Time) (*UserSubscription, error) {
	if id == "" || userID == "" || tmpl.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	return &UserSubscription{
		ID:         id,
		UserID:     userID,
		PlanID:     tmpl.ID,
		CategoryID: tmpl.CategoryID,
		IsFreeTier: tmpl.IsFreeTier,

		MaxTotalListings:        tmpl.MaxTotalListings,
		MaxActiveListings:       tmpl.MaxActiveListings,
		ListingQuotaLimit:       tmpl.ListingQuotaLimit,
		ListingQuotaRollingDays: tmpl.ListingQuotaRollingDays,

		FeaturedDays:  tmpl.FeaturedDays,
		BoostedDays:   tmpl.BoostedDays,
		SpotlightDays: tmpl.SpotlightDays,
		HomepageDays:  tmpl.HomepageDays,

		MaxFeaturedListings:  tmpl.MaxFeaturedListings,
		MaxBoostedListings:   tmpl.MaxBoostedListings,
		MaxSpotlightListings: tmpl.MaxSpotlightListings,
		MaxHomepageListings:  tmpl.MaxHomepageListings,

		Status:      SubscriptionStatusActive,
		ActivatedAt: now,
		AutoRenew:   true,
		CreatedAt:   now,
	}, nil
}

func (s *UserSubscription) IsZero() bool { return s == nil || s.ID == "" }

// IsLive reports whether the subscription is active and not past its natural end.
func (s *UserSubscription) IsLive(now time.Time) bool {
	if s.IsZero() || s.Status != SubscriptionStatusActive {
		return false
	}
	return s.EndsAt == nil || now.Before(*s.EndsAt)
}

// Expire performs the one-way transition out of active status.
func (s *UserSubscription) Expire(reason string, now time.Time) {
	s.Status = SubscriptionStatusExpired
	s.CancellationReason = reason
	s.AutoRenew = false
	if s.EndsAt == nil || s.EndsAt.After(now) {
		end := now
		s.EndsAt = &end
	}
}

// AllowanceDays returns the snapshotted day allowance for a feature kind.
func (s *UserSubscription) AllowanceDays(kind FeatureKind) int {
	switch kind {
	case FeatureFeatured:
		return s.FeaturedDays
	case FeatureBoost:
		return s.BoostedDays
	case FeatureSpotlight:
		return s.SpotlightDays
	case FeatureHomepage:
		return s.HomepageDays
	}
	return 0
}

// FeatureCap returns the snapshotted simultaneous-usage cap for a feature kind.
func (s *UserSubscription) FeatureCap(kind FeatureKind) int {
	switch kind {
	case FeatureFeatured:
		return s.MaxFeaturedListings
	case FeatureBoost:
		return s.MaxBoostedListings
	case FeatureSpotlight:
		return s.MaxSpotlightListings
	case FeatureHomepage:
		return s.MaxHomepageListings
	}
	return 0
}
