package model

import (
	"math"
	"time"

	"classifieds-listing-core/internal/domain"
)

type ListingStatus string

const (
	ListingStatusDraft    ListingStatus = "draft"
	ListingStatusPending  ListingStatus = "pending"
	ListingStatusActive   ListingStatus = "active"
	ListingStatusExpired  ListingStatus = "expired"
	ListingStatusSold     ListingStatus = "sold"
	ListingStatusRejected ListingStatus = "rejected"
)

// CountableStatuses are the listing statuses that consume quota. Drafts and
// dead listings (expired, rejected) never count.
var CountableStatuses = []ListingStatus{ListingStatusPending, ListingStatusActive, ListingStatusSold}

func (s ListingStatus) Countable() bool {
	return s == ListingStatusPending || s == ListingStatusActive || s == ListingStatusSold
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance to another point in kilometers.
func (g GeoPoint) DistanceKm(other GeoPoint) float64 {
	lat1 := g.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - g.Lat) * math.Pi / 180
	dLon := (other.Lon - g.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// FeatureBag holds the non-featured promotional states with a fixed shape, one
// slot per kind, so lookups are exhaustive at compile time.
type FeatureBag struct {
	Boost     FeatureState `json:"boost"`
	Spotlight FeatureState `json:"spotlight"`
	Homepage  FeatureState `json:"homepage"`
}

// Listing is the unit being counted against quota and scored for ranking.
// ConsumingSubscriptionID and IsPaid are stamped once at quota-consumption
// time and never changed afterwards; nil subscription id means the listing was
// covered by the free tier.
type Listing struct {
	ID         string // ULID, lexicographically time-ordered
	OwnerID    string // UUID of owner
	CategoryID string
	Status     ListingStatus
	Price      int64 // minor currency units
	Location   *GeoPoint

	ViewCount     int64
	FavoriteCount int64

	Featured FeatureState
	Features FeatureBag

	ConsumingSubscriptionID *string
	IsPaid                  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewListing validates and constructs a listing in the given initial status.
func NewListing(id, ownerID, categoryID string, status ListingStatus, price int64, now time.Time) (*Listing, error) {
	if id == "" || ownerID == "" || categoryID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Listing{
		ID:         id,
		OwnerID:    ownerID,
		CategoryID: categoryID,
		Status:     status,
		Price:      price,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (l *Listing) IsZero() bool { return l == nil || l.ID == "" }

// FeatureState returns the applied state for a kind.
func (l *Listing) FeatureState(kind FeatureKind) FeatureState {
	switch kind {
	case FeatureFeatured:
		return l.Featured
	case FeatureBoost:
		return l.Features.Boost
	case FeatureSpotlight:
		return l.Features.Spotlight
	case FeatureHomepage:
		return l.Features.Homepage
	}
	return FeatureState{}
}

// SetFeatureState writes the applied state for a kind. Kinds are independent;
// a listing may carry several at once.
func (l *Listing) SetFeatureState(kind FeatureKind, st FeatureState) {
	switch kind {
	case FeatureFeatured:
		l.Featured = st
	case FeatureBoost:
		l.Features.Boost = st
	case FeatureSpotlight:
		l.Features.Spotlight = st
	case FeatureHomepage:
		l.Features.Homepage = st
	}
}

// HasAnyFeature reports whether any feature flag is set, live or expired.
func (l *Listing) HasAnyFeature() bool {
	return l.Featured.Active || l.Features.Boost.Active ||
		l.Features.Spotlight.Active || l.Features.Homepage.Active
}

// FeaturePatch carries the full feature image written back by the entitlement
// manager; partial stringly-typed patches are deliberately not supported.
type FeaturePatch struct {
	Featured FeatureState
	Features FeatureBag
}

func (l *Listing) FeaturePatch() FeaturePatch {
	return FeaturePatch{Featured: l.Featured, Features: l.Features}
}
