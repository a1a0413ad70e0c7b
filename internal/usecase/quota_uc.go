package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/adapter"
	"classifieds-listing-core/internal/domain/ports/repository"
	"classifieds-listing-core/internal/infra/logging"
	"classifieds-listing-core/internal/infra/metrics"
)

// consumeRetries is how many times a lost quota race is retried before
// surfacing domain.ErrConcurrencyConflict.
const consumeRetries = 1

// QuotaUseCase is the quota ledger: it answers how many listings a user has
// consumed in a category, gates creation, and performs the consume/downgrade
// transition. A (user, category) pair is governed by exactly one accounting
// regime at any instant: the total-count paid tier while a live paid
// subscription exists, the rolling-window free tier otherwise.
type QuotaUseCase struct {
	listings repository.ListingRepository
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	users    repository.UserRepository
	tm       repository.TransactionManager
	notifier adapter.NotificationSink
	clock    clockwork.Clock
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewQuotaUseCase(
	listings repository.ListingRepository,
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	users repository.UserRepository,
	tm repository.TransactionManager,
	notifier adapter.NotificationSink,
	clock clockwork.Clock,
	consumeTimeout time.Duration,
	logger *zerolog.Logger,
) *QuotaUseCase {
	if consumeTimeout <= 0 {
		consumeTimeout = 5 * time.Second
	}
	l := logger.With().Str("component", "QuotaUseCase").Logger()
	return &QuotaUseCase{
		listings: listings,
		subs:     subs,
		plans:    plans,
		users:    users,
		tm:       tm,
		notifier: notifier,
		clock:    clock,
		timeout:  consumeTimeout,
		log:      &l,
	}
}

// GetUsage reports the current tier, limit, used and remaining counts for a
// (user, category) pair.
func (uc *QuotaUseCase) GetUsage(ctx context.Context, userID, categoryID string) (model.QuotaUsage, error) {
	usage, _, err := uc.usage(ctx, repository.NoTX, userID, categoryID)
	return usage, err
}

// CheckEligibility reports whether the user may create another listing in the
// category. Exhausted quota is a normal outcome carried in the result, never
// an error.
func (uc *QuotaUseCase) CheckEligibility(ctx context.Context, userID, categoryID string) (model.Eligibility, error) {
	usage, _, err := uc.usage(ctx, repository.NoTX, userID, categoryID)
	if err != nil {
		return model.Eligibility{}, err
	}

	elig := model.Eligibility{
		CanCreate:     usage.Remaining > 0,
		InitialStatus: model.ListingStatusPending,
		Usage:         usage,
	}
	if !elig.CanCreate {
		elig.Reason = model.ReasonQuotaExhausted
		elig.SuggestedAction = "upgrade plan to post more listings in this category"
		metrics.IncQuotaCheck(string(usage.Tier), "exhausted")
		return elig, nil
	}

	autoApprove, err := uc.users.AutoApprove(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return model.Eligibility{}, fmt.Errorf("auto-approve flag: %w", err)
	}
	if autoApprove {
		elig.InitialStatus = model.ListingStatusActive
	}
	metrics.IncQuotaCheck(string(usage.Tier), "ok")
	return elig, nil
}

// Consume stamps the listing with the subscription (or free tier) that covers
// it and decrements effective remaining quota. The recount, the stamp and the
// downgrade run as one transaction serialized per (user, category), so N
// concurrent consumers with k remaining units admit exactly k.
func (uc *QuotaUseCase) Consume(ctx context.Context, userID, categoryID, listingID string) error {
	var exhausted *adapter.QuotaExhaustedEvent

	attempt := func() error {
		ctx, cancel := context.WithTimeout(ctx, uc.timeout)
		defer cancel()

		return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := uc.listings.LockOwnerCategory(ctx, tx, userID, categoryID); err != nil {
				return fmt.Errorf("lock owner/category: %w", err)
			}

			listing, err := uc.listings.FindByID(ctx, tx, listingID)
			if err != nil {
				return err
			}
			if listing.OwnerID != userID {
				return domain.ErrForbidden
			}
			if listing.CategoryID != categoryID {
				return fmt.Errorf("%w: listing belongs to another category", domain.ErrInvalidArgument)
			}
			// The consumption stamp is written at most once. A replayed
			// consume is a no-op rather than a second unit.
			if listing.ConsumingSubscriptionID != nil || listing.IsPaid {
				metrics.IncQuotaConsume(string(model.QuotaTierPaid), "replay")
				return nil
			}

			// Re-derive usage inside the lock; the eligibility check the
			// caller ran earlier may be stale.
			usage, sub, err := uc.usage(ctx, tx, userID, categoryID)
			if err != nil {
				return err
			}
			// The free-tier count is by owner, so the target listing already
			// sits in it when persisted in a countable status. It must not
			// consume a unit against itself.
			if usage.Tier == model.QuotaTierFree && listing.Status.Countable() {
				since := uc.clock.Now().AddDate(0, 0, -usage.WindowDays)
				if !listing.CreatedAt.Before(since) {
					usage.Used--
					usage.Remaining = remaining(usage.Limit, usage.Used)
				}
			}
			if usage.Remaining <= 0 {
				metrics.IncQuotaConsume(string(usage.Tier), "exhausted")
				return domain.ErrQuotaExhausted
			}

			if usage.Tier == model.QuotaTierPaid {
				subID := sub.ID
				if err := uc.listings.SetConsumption(ctx, tx, listingID, &subID, true); err != nil {
					return err
				}
				if usage.Used+1 >= usage.Limit {
					// Last unit: one-way downgrade to the free tier.
					now := uc.clock.Now()
					if err := uc.subs.Expire(ctx, tx, sub.ID, model.CancellationQuotaExhausted, now); err != nil {
						return err
					}
					metrics.IncQuotaDowngrade()
					exhausted = &adapter.QuotaExhaustedEvent{
						UserID:         userID,
						CategoryID:     categoryID,
						Tier:           model.QuotaTierPaid,
						SubscriptionID: sub.ID,
						OccurredAt:     now,
					}
				}
			} else {
				if err := uc.listings.SetConsumption(ctx, tx, listingID, nil, false); err != nil {
					return err
				}
				if usage.Used+1 >= usage.Limit {
					exhausted = &adapter.QuotaExhaustedEvent{
						UserID:     userID,
						CategoryID: categoryID,
						Tier:       model.QuotaTierFree,
						OccurredAt: uc.clock.Now(),
					}
				}
			}
			metrics.IncQuotaConsume(string(usage.Tier), "ok")
			return nil
		})
	}

	var err error
	for i := 0; i <= consumeRetries; i++ {
		exhausted = nil
		err = attempt()
		if err == nil || !isSerializationFailure(err) {
			break
		}
		logging.With(ctx, uc.log).Warn().
			Int("attempt", i+1).Msg("quota consume lost a race, retrying")
	}
	if err != nil {
		if isSerializationFailure(err) {
			return domain.ErrConcurrencyConflict
		}
		return err
	}

	if exhausted != nil {
		// Fire-and-forget: the sink must never fail a successful consume.
		if nerr := uc.notifier.QuotaExhausted(ctx, *exhausted); nerr != nil {
			logging.With(ctx, uc.log).Warn().Err(nerr).Msg("quota exhausted notification failed")
		}
	}
	return nil
}

// usage selects the accounting regime and computes the counts. A paid
// subscription past its natural end falls through to the free tier even if its
// status row has not been swept yet.
func (uc *QuotaUseCase) usage(ctx context.Context, tx repository.Tx, userID, categoryID string) (model.QuotaUsage, *model.UserSubscription, error) {
	now := uc.clock.Now()

	sub, err := uc.subs.FindActivePaid(ctx, tx, userID, categoryID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return model.QuotaUsage{}, nil, fmt.Errorf("find active paid subscription: %w", err)
	}
	if sub != nil && sub.IsLive(now) {
		used, err := uc.listings.CountByConsumingSubscription(ctx, tx, sub.ID, model.CountableStatuses)
		if err != nil {
			return model.QuotaUsage{}, nil, fmt.Errorf("count consumed listings: %w", err)
		}
		usage := model.QuotaUsage{
			Tier:           model.QuotaTierPaid,
			Limit:          sub.MaxTotalListings,
			Used:           used,
			SubscriptionID: sub.ID,
		}
		usage.Remaining = remaining(usage.Limit, usage.Used)
		return usage, sub, nil
	}

	tmpl, err := uc.plans.FindFreeTemplate(ctx, tx, categoryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.QuotaUsage{}, nil, domain.ErrNoPlanForCategory
		}
		return model.QuotaUsage{}, nil, fmt.Errorf("find free template: %w", err)
	}

	since := now.AddDate(0, 0, -tmpl.ListingQuotaRollingDays)
	used, err := uc.listings.CountByOwner(ctx, tx, userID, categoryID, model.CountableStatuses, &since)
	if err != nil {
		return model.QuotaUsage{}, nil, fmt.Errorf("count owner listings: %w", err)
	}
	usage := model.QuotaUsage{
		Tier:       model.QuotaTierFree,
		Limit:      tmpl.ListingQuotaLimit,
		Used:       used,
		WindowDays: tmpl.ListingQuotaRollingDays,
	}
	usage.Remaining = remaining(usage.Limit, usage.Used)
	return usage, nil, nil
}

func remaining(limit, used int) int {
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure and deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return errors.Is(err, domain.ErrConcurrencyConflict)
}
