//go:build !integration

package model_test

import (
	"testing"
	"time"

	"classifieds-listing-core/internal/domain/model"
)

func TestComputeFeatureWindow(t *testing.T) {
	activated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("zero allowance is not available at all", func(t *testing.T) {
		w := model.ComputeFeatureWindow(activated, 0, activated)
		if w.Available || w.Active {
			t.Fatalf("window = %+v, want neither available nor active", w)
		}
	})

	t.Run("inside the window", func(t *testing.T) {
		now := activated.Add(2 * 24 * time.Hour)
		w := model.ComputeFeatureWindow(activated, 7, now)
		if !w.Available || !w.Active {
			t.Fatalf("window = %+v, want available and active", w)
		}
		if want := activated.AddDate(0, 0, 7); !w.ExpiresAt.Equal(want) {
			t.Fatalf("expires at %v, want %v", w.ExpiresAt, want)
		}
		if w.DaysRemaining != 5 {
			t.Fatalf("days remaining = %d, want 5", w.DaysRemaining)
		}
	})

	t.Run("partial days round up", func(t *testing.T) {
		now := activated.Add(6*24*time.Hour + 23*time.Hour)
		w := model.ComputeFeatureWindow(activated, 7, now)
		if w.DaysRemaining != 1 {
			t.Fatalf("days remaining = %d, want 1 for a sliver of a day", w.DaysRemaining)
		}
	})

	t.Run("elapsed window stays available but inactive", func(t *testing.T) {
		now := activated.Add(8 * 24 * time.Hour)
		w := model.ComputeFeatureWindow(activated, 7, now)
		if !w.Available {
			t.Fatal("an elapsed window must still read as available")
		}
		if w.Active {
			t.Fatal("an elapsed window must not read as active")
		}
		if w.DaysRemaining != 0 {
			t.Fatalf("days remaining = %d, want 0", w.DaysRemaining)
		}
	})

	t.Run("boundary instant is inactive", func(t *testing.T) {
		now := activated.AddDate(0, 0, 7)
		w := model.ComputeFeatureWindow(activated, 7, now)
		if w.Active {
			t.Fatal("the exact expiry instant is already out of the window")
		}
	})
}

func TestFeatureState(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name        string
		st          model.FeatureState
		wantActive  bool
		wantExpired bool
	}{
		{"inactive", model.FeatureState{}, false, false},
		{"active without expiry", model.FeatureState{Active: true}, true, false},
		{"active inside window", model.FeatureState{Active: true, Until: &future}, true, false},
		{"flagged but elapsed", model.FeatureState{Active: true, Until: &past}, false, true},
		{"inactive with stale until", model.FeatureState{Until: &past}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.st.ActiveAt(now); got != tc.wantActive {
				t.Fatalf("ActiveAt = %v, want %v", got, tc.wantActive)
			}
			if got := tc.st.ExpiredAt(now); got != tc.wantExpired {
				t.Fatalf("ExpiredAt = %v, want %v", got, tc.wantExpired)
			}
		})
	}
}

func TestUserSubscription_Expire(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tmpl, err := model.NewPlanTemplate("t1", "cars", "Pro", false)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	sub, err := model.NewUserSubscription("s1", "u1", tmpl, now)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if !sub.IsLive(now) {
		t.Fatal("fresh subscription must be live")
	}

	later := now.Add(time.Hour)
	sub.Expire(model.CancellationQuotaExhausted, later)

	if sub.Status != model.SubscriptionStatusExpired {
		t.Fatalf("status = %s, want expired", sub.Status)
	}
	if sub.AutoRenew {
		t.Fatal("expire must clear auto-renew")
	}
	if sub.EndsAt == nil || !sub.EndsAt.Equal(later) {
		t.Fatalf("ends at = %v, want %v", sub.EndsAt, later)
	}
	if sub.IsLive(later.Add(time.Minute)) {
		t.Fatal("expired subscription must not be live")
	}
}
