package adapter

import (
	"context"
	"time"

	"classifieds-listing-core/internal/domain/model"
)

// QuotaExhaustedEvent is emitted after a consume call drains a user's last
// quota unit (and, on the paid tier, downgrades the subscription).
type QuotaExhaustedEvent struct {
	UserID         string          `json:"user_id"`
	CategoryID     string          `json:"category_id"`
	Tier           model.QuotaTier `json:"tier"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// FeatureExpiredEvent is emitted when a sweep clears an expired feature.
type FeatureExpiredEvent struct {
	ListingID  string            `json:"listing_id"`
	OwnerID    string            `json:"owner_id"`
	Kind       model.FeatureKind `json:"kind"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NotificationSink receives fire-and-forget business events. Delivery failures
// are logged and dropped; no operation in the core blocks on the sink.
type NotificationSink interface {
	QuotaExhausted(ctx context.Context, evt QuotaExhaustedEvent) error
	FeatureExpired(ctx context.Context, evt FeatureExpiredEvent) error
}
