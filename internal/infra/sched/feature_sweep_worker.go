package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/usecase"
)

// FeatureSweepWorker periodically clears expired promotional features via the
// feature use case.
type FeatureSweepWorker struct {
	interval time.Duration
	features *usecase.FeatureUseCase
	log      *zerolog.Logger
}

func NewFeatureSweepWorker(interval time.Duration, features *usecase.FeatureUseCase, logger *zerolog.Logger) *FeatureSweepWorker {
	l := logger.With().Str("component", "FeatureSweepWorker").Logger()
	return &FeatureSweepWorker{interval: interval, features: features, log: &l}
}

func (w *FeatureSweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting feature sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping feature sweep worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.features.SweepExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("feature sweep error")
				continue
			}
			if n > 0 {
				w.log.Info().Int("cleared", n).Msg("expired features cleared")
			}
		}
	}
}
