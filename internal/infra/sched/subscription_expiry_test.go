//go:build !integration

package sched

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
)

type stubSubRepo struct {
	repository.SubscriptionRepository
	subs    map[string]*model.UserSubscription
	expired []string
}

func (r *stubSubRepo) ListExpiringBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.UserSubscription, error) {
	var out []*model.UserSubscription
	for _, s := range r.subs {
		if s.Status == model.SubscriptionStatusActive && s.EndsAt != nil && s.EndsAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubSubRepo) Expire(ctx context.Context, tx repository.Tx, id, reason string, now time.Time) error {
	s, ok := r.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Expire(reason, now)
	r.expired = append(r.expired, id)
	return nil
}

func TestSubscriptionExpiryJob_RunOnce(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	logger := zerolog.New(io.Discard)

	tmpl, err := model.NewPlanTemplate("t1", "cars", "Pro", false)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	mkSub := func(id string, endsAt *time.Time) *model.UserSubscription {
		s, err := model.NewUserSubscription(id, "u-"+id, tmpl, now.AddDate(0, -1, 0))
		if err != nil {
			t.Fatalf("subscription: %v", err)
		}
		s.EndsAt = endsAt
		return s
	}

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	repo := &stubSubRepo{subs: map[string]*model.UserSubscription{
		"due":     mkSub("due", &past),
		"running": mkSub("running", &future),
		"open":    mkSub("open", nil),
	}}

	job := NewSubscriptionExpiryJob(repo, clock, &logger)
	n, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if len(repo.expired) != 1 || repo.expired[0] != "due" {
		t.Fatalf("expired ids = %v, want [due]", repo.expired)
	}
	if repo.subs["due"].Status != model.SubscriptionStatusExpired {
		t.Fatal("due subscription not transitioned")
	}
	if repo.subs["running"].Status != model.SubscriptionStatusActive {
		t.Fatal("running subscription must stay active")
	}

	// Second run is a no-op.
	n, err = job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if n != 0 {
		t.Fatalf("second run expired = %d, want 0", n)
	}
}
