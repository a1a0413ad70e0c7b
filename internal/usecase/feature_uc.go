package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/adapter"
	"classifieds-listing-core/internal/domain/ports/repository"
	"classifieds-listing-core/internal/infra/metrics"
)

// FeatureUseCase governs the time-boxed promotional features a paid
// subscription grants and applies them to listings.
type FeatureUseCase struct {
	listings repository.ListingRepository
	subs     repository.SubscriptionRepository
	notifier adapter.NotificationSink
	clock    clockwork.Clock
	log      *zerolog.Logger
}

func NewFeatureUseCase(
	listings repository.ListingRepository,
	subs repository.SubscriptionRepository,
	notifier adapter.NotificationSink,
	clock clockwork.Clock,
	logger *zerolog.Logger,
) *FeatureUseCase {
	l := logger.With().Str("component", "FeatureUseCase").Logger()
	return &FeatureUseCase{
		listings: listings,
		subs:     subs,
		notifier: notifier,
		clock:    clock,
		log:      &l,
	}
}

// CheckAvailability reports whether the user's active paid subscription for
// the category still covers the feature kind. Unavailability is a business
// outcome carried in the result.
func (uc *FeatureUseCase) CheckAvailability(ctx context.Context, userID, categoryID string, kind model.FeatureKind) (model.FeatureAvailability, error) {
	if !kind.Valid() {
		return model.FeatureAvailability{}, domain.ErrInvalidArgument
	}
	avail := model.FeatureAvailability{Kind: kind}
	now := uc.clock.Now()

	sub, err := uc.subs.FindActivePaid(ctx, repository.NoTX, userID, categoryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			avail.Reason = "no active paid subscription for this category"
			return avail, nil
		}
		return model.FeatureAvailability{}, fmt.Errorf("find active paid subscription: %w", err)
	}
	if !sub.IsLive(now) {
		avail.Reason = "subscription has ended"
		return avail, nil
	}

	w := model.SubscriptionFeatureWindow(sub, kind, now)
	avail.Window = w
	avail.Sub = sub
	if !w.Available {
		avail.Reason = fmt.Sprintf("plan does not include the %s feature", kind)
		return avail, nil
	}
	if !w.Active {
		avail.Reason = fmt.Sprintf("%s feature window expired", kind)
		return avail, nil
	}

	capLimit := sub.FeatureCap(kind)
	if capLimit > 0 {
		inUse, err := uc.listings.CountWithFeature(ctx, repository.NoTX, userID, kind, now)
		if err != nil {
			return model.FeatureAvailability{}, fmt.Errorf("count featured listings: %w", err)
		}
		if inUse >= capLimit {
			avail.Reason = fmt.Sprintf("usage cap reached: %d listings already hold %s", inUse, kind)
			return avail, nil
		}
	}

	avail.Available = true
	return avail, nil
}

// Apply writes the feature onto the listing with the window's expiry. Only the
// owner may promote, and only a live listing.
func (uc *FeatureUseCase) Apply(ctx context.Context, listingID string, kind model.FeatureKind, userID string) (*model.Listing, error) {
	listing, err := uc.listings.FindByID(ctx, repository.NoTX, listingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	if listing.Status != model.ListingStatusActive {
		return nil, domain.ErrListingNotActive
	}

	avail, err := uc.CheckAvailability(ctx, userID, listing.CategoryID, kind)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, fmt.Errorf("%w: %s", domain.ErrFeatureUnavailable, avail.Reason)
	}

	until := avail.Window.ExpiresAt
	listing.SetFeatureState(kind, model.FeatureState{Active: true, Until: &until})
	if err := uc.listings.UpdateFeatures(ctx, repository.NoTX, listing.ID, listing.FeaturePatch()); err != nil {
		return nil, fmt.Errorf("update listing features: %w", err)
	}
	metrics.IncFeatureApplied(string(kind))
	uc.log.Info().Str("listing_id", listing.ID).Str("kind", string(kind)).
		Time("until", until).Msg("feature applied")
	return listing, nil
}

// RemoveExpired clears every feature on the listing whose window has passed.
// Idempotent: a second call is a no-op. Returns how many features it cleared.
func (uc *FeatureUseCase) RemoveExpired(ctx context.Context, listingID string) (int, error) {
	listing, err := uc.listings.FindByID(ctx, repository.NoTX, listingID)
	if err != nil {
		return 0, err
	}
	now := uc.clock.Now()

	cleared := 0
	var events []adapter.FeatureExpiredEvent
	for _, kind := range model.AllFeatureKinds {
		st := listing.FeatureState(kind)
		if !st.ExpiredAt(now) {
			continue
		}
		listing.SetFeatureState(kind, model.FeatureState{})
		cleared++
		events = append(events, adapter.FeatureExpiredEvent{
			ListingID:  listing.ID,
			OwnerID:    listing.OwnerID,
			Kind:       kind,
			OccurredAt: now,
		})
	}
	if cleared == 0 {
		return 0, nil
	}

	if err := uc.listings.UpdateFeatures(ctx, repository.NoTX, listing.ID, listing.FeaturePatch()); err != nil {
		return 0, fmt.Errorf("update listing features: %w", err)
	}
	for _, evt := range events {
		if nerr := uc.notifier.FeatureExpired(ctx, evt); nerr != nil {
			uc.log.Warn().Err(nerr).Str("listing_id", evt.ListingID).Msg("feature expired notification failed")
		}
	}
	return cleared, nil
}

// SweepExpired runs RemoveExpired over every active listing that carries a
// feature flag. Scheduling is the caller's concern; the sched worker drives
// this on a timer.
func (uc *FeatureUseCase) SweepExpired(ctx context.Context) (int, error) {
	listings, err := uc.listings.ListActiveWithFeatures(ctx, repository.NoTX)
	if err != nil {
		return 0, fmt.Errorf("list listings with features: %w", err)
	}
	total := 0
	for _, l := range listings {
		n, err := uc.RemoveExpired(ctx, l.ID)
		if err != nil {
			uc.log.Error().Err(err).Str("listing_id", l.ID).Msg("sweep failed for listing")
			continue
		}
		total += n
	}
	if total > 0 {
		metrics.AddFeaturesSwept(total)
	}
	return total, nil
}
