package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/domain/ports/adapter"
)

const (
	channelQuotaExhausted = "events:quota_exhausted"
	channelFeatureExpired = "events:feature_expired"
)

var _ adapter.NotificationSink = (*PubSubNotifier)(nil)

// PubSubNotifier publishes business events on redis channels for downstream
// notification services. Fire-and-forget: publication failures are the
// caller's to log, never to act on.
type PubSubNotifier struct {
	cli RedisClient
	log *zerolog.Logger
}

func NewPubSubNotifier(cli RedisClient, logger *zerolog.Logger) *PubSubNotifier {
	l := logger.With().Str("component", "PubSubNotifier").Logger()
	return &PubSubNotifier{cli: cli, log: &l}
}

func (n *PubSubNotifier) QuotaExhausted(ctx context.Context, evt adapter.QuotaExhaustedEvent) error {
	return n.publish(ctx, channelQuotaExhausted, evt)
}

func (n *PubSubNotifier) FeatureExpired(ctx context.Context, evt adapter.FeatureExpiredEvent) error {
	return n.publish(ctx, channelFeatureExpired, evt)
}

func (n *PubSubNotifier) publish(ctx context.Context, channel string, evt interface{}) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.cli.Publish(ctx, channel, b); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	n.log.Debug().Str("channel", channel).Msg("event published")
	return nil
}

// NoopNotifier drops every event. Used in tests and when redis is disabled.
type NoopNotifier struct{}

var _ adapter.NotificationSink = (*NoopNotifier)(nil)

func (NoopNotifier) QuotaExhausted(ctx context.Context, evt adapter.QuotaExhaustedEvent) error {
	return nil
}

func (NoopNotifier) FeatureExpired(ctx context.Context, evt adapter.FeatureExpiredEvent) error {
	return nil
}
