package sched

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/domain/ports/repository"
	"classifieds-listing-core/internal/infra/metrics"
)

// SubscriptionExpiryJob moves active subscriptions past their natural end to
// expired. This is the term-end path; the quota ledger's exhaustion downgrade
// is separate and immediate.
type SubscriptionExpiryJob struct {
	subs  repository.SubscriptionRepository
	clock clockwork.Clock
	log   *zerolog.Logger
}

func NewSubscriptionExpiryJob(subs repository.SubscriptionRepository, clock clockwork.Clock, logger *zerolog.Logger) *SubscriptionExpiryJob {
	l := logger.With().Str("component", "SubscriptionExpiryJob").Logger()
	return &SubscriptionExpiryJob{subs: subs, clock: clock, log: &l}
}

// RunOnce expires everything past its end date. Returns how many it expired.
func (j *SubscriptionExpiryJob) RunOnce(ctx context.Context) (int, error) {
	now := j.clock.Now()
	due, err := j.subs.ListExpiringBefore(ctx, repository.NoTX, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, s := range due {
		if err := j.subs.Expire(ctx, repository.NoTX, s.ID, "subscription term ended", now); err != nil {
			j.log.Error().Err(err).Str("subscription_id", s.ID).Msg("expire failed")
			continue
		}
		expired++
	}
	if expired > 0 {
		metrics.IncSubscriptionsExpired(expired)
		j.log.Info().Int("count", expired).Msg("subscriptions expired")
	}
	return expired, nil
}

// Schedule registers the job on a cron spec (e.g. "0 9 * * *") and returns the
// started scheduler. Callers stop it on shutdown.
func (j *SubscriptionExpiryJob) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := j.RunOnce(ctx); err != nil {
			j.log.Error().Err(err).Msg("subscription expiry run failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
