package repository

import (
	"context"
	"time"

	"classifieds-listing-core/internal/domain/model"
)

// ListingRepository is the port to the listing store. The core only counts,
// stamps, and patches listings; creation and general CRUD live elsewhere.
type ListingRepository interface {
	Save(ctx context.Context, tx Tx, l *model.Listing) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Listing, error)

	// CountByOwner counts an owner's listings in a category over the given
	// statuses. createdAfter bounds the rolling free-tier window; nil means
	// no lower bound.
	CountByOwner(ctx context.Context, tx Tx, ownerID, categoryID string, statuses []model.ListingStatus, createdAfter *time.Time) (int, error)

	// CountByConsumingSubscription counts listings stamped against one paid
	// subscription over the given statuses.
	CountByConsumingSubscription(ctx context.Context, tx Tx, subscriptionID string, statuses []model.ListingStatus) (int, error)

	// CountWithFeature counts an owner's listings whose feature of the given
	// kind is live at the given instant (usage-cap enforcement).
	CountWithFeature(ctx context.Context, tx Tx, ownerID string, kind model.FeatureKind, now time.Time) (int, error)

	// SetConsumption stamps the listing's consumption record. A nil
	// subscriptionID records free-tier coverage. The stamp is written once.
	SetConsumption(ctx context.Context, tx Tx, listingID string, subscriptionID *string, isPaid bool) error

	// UpdateFeatures writes the full feature image of a listing.
	UpdateFeatures(ctx context.Context, tx Tx, listingID string, patch model.FeaturePatch) error

	// ListActiveWithFeatures returns active listings carrying any feature
	// flag, for the expiry sweep.
	ListActiveWithFeatures(ctx context.Context, tx Tx) ([]*model.Listing, error)

	// ListActiveByCategory returns the already-filtered result set the
	// ranking engine orders for a feed.
	ListActiveByCategory(ctx context.Context, tx Tx, categoryID string, limit int) ([]*model.Listing, error)

	// LockOwnerCategory serializes quota consumption for one (owner,
	// category) pair within the surrounding transaction.
	LockOwnerCategory(ctx context.Context, tx Tx, ownerID, categoryID string) error
}
