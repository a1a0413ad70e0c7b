package model

import "time"

// FeatureKind identifies a time-boxed promotional feature on a listing.
type FeatureKind string

const (
	FeatureFeatured  FeatureKind = "featured"
	FeatureBoost     FeatureKind = "boost"
	FeatureSpotlight FeatureKind = "spotlight"
	FeatureHomepage  FeatureKind = "homepage"
)

// AllFeatureKinds lists every kind, in the order sweeps iterate them.
var AllFeatureKinds = []FeatureKind{FeatureFeatured, FeatureBoost, FeatureSpotlight, FeatureHomepage}

func (k FeatureKind) Valid() bool {
	switch k {
	case FeatureFeatured, FeatureBoost, FeatureSpotlight, FeatureHomepage:
		return true
	}
	return false
}

// FeatureState is the applied state of one feature on one listing.
// A nil Until with Active set means the feature never expires on its own.
type FeatureState struct {
	Active bool       `json:"active"`
	Until  *time.Time `json:"until,omitempty"`
}

// ActiveAt reports whether the feature is live at the given instant. A listing
// still flagged active but past Until must read as inactive even before the
// cleanup sweep clears it.
func (f FeatureState) ActiveAt(now time.Time) bool {
	if !f.Active {
		return false
	}
	return f.Until == nil || !now.After(*f.Until)
}

// ExpiredAt reports whether the feature is flagged but past its window.
func (f FeatureState) ExpiredAt(now time.Time) bool {
	return f.Active && f.Until != nil && now.After(*f.Until)
}

// FeatureWindow is the outcome of the expiry calculation for one feature kind.
// Available distinguishes "plan never had this feature" from "had it, now gone":
// a zero-day allowance yields Available=false, an elapsed window yields
// Available=true with Active=false.
type FeatureWindow struct {
	Available     bool
	Active        bool
	ExpiresAt     time.Time
	DaysRemaining int
}

// ComputeFeatureWindow derives the feature window from an activation timestamp
// and a day allowance. Pure; callers inject the current instant.
func ComputeFeatureWindow(activatedAt time.Time, allowanceDays int, now time.Time) FeatureWindow {
	if allowanceDays <= 0 {
		return FeatureWindow{}
	}
	expiresAt := activatedAt.AddDate(0, 0, allowanceDays)
	w := FeatureWindow{
		Available: true,
		Active:    now.Before(expiresAt),
		ExpiresAt: expiresAt,
	}
	if w.Active {
		remaining := expiresAt.Sub(now)
		w.DaysRemaining = int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	}
	return w
}

// SubscriptionFeatureWindow computes the window a subscription currently grants
// for a feature kind, anchored at the subscription's activation.
func SubscriptionFeatureWindow(sub *UserSubscription, kind FeatureKind, now time.Time) FeatureWindow {
	if sub.IsZero() {
		return FeatureWindow{}
	}
	return ComputeFeatureWindow(sub.ActivatedAt, sub.AllowanceDays(kind), now)
}
