package repository

import (
	"context"
	"time"

	"classifieds-listing-core/internal/domain/model"
)

// SubscriptionRepository is the port for user-subscription snapshots.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.UserSubscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserSubscription, error)

	// FindActivePaid returns the user's active non-free-tier subscription for
	// a category, or domain.ErrNotFound.
	FindActivePaid(ctx context.Context, tx Tx, userID, categoryID string) (*model.UserSubscription, error)

	// Expire transitions a subscription active -> expired with the given
	// reason and clears auto-renew.
	Expire(ctx context.Context, tx Tx, id, reason string, now time.Time) error

	// ListExpiringBefore returns active subscriptions whose EndsAt falls
	// before the cutoff, for the natural-expiry job.
	ListExpiringBefore(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.UserSubscription, error)

	// CountActiveByPlan reports active subscription counts keyed by plan id.
	CountActiveByPlan(ctx context.Context, tx Tx) (map[string]int, error)
}
