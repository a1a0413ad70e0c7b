package model

// QuotaTier identifies which accounting regime governs a (user, category)
// pair. Exactly one tier applies at any instant.
type QuotaTier string

const (
	QuotaTierFree QuotaTier = "free"
	QuotaTierPaid QuotaTier = "paid"
)

// QuotaUsage is the ledger's answer to "how much has this user consumed, and
// how much remains, in this category".
type QuotaUsage struct {
	Tier      QuotaTier `json:"tier"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`

	// SubscriptionID is set on the paid tier only.
	SubscriptionID string `json:"subscription_id,omitempty"`
	// WindowDays is set on the free tier only (rolling measurement window).
	WindowDays int `json:"window_days,omitempty"`
}

type EligibilityReason string

const ReasonQuotaExhausted EligibilityReason = "quota_exhausted"

// Eligibility is a business outcome, not an error: exhausted quota comes back
// as CanCreate=false and the calling workflow decides what to do with it.
type Eligibility struct {
	CanCreate       bool              `json:"can_create"`
	Reason          EligibilityReason `json:"reason,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`

	// InitialStatus is the status the creation workflow should persist the
	// listing with, derived from the owner's auto-approve flag.
	InitialStatus ListingStatus `json:"initial_status"`

	Usage QuotaUsage `json:"usage"`
}

// FeatureAvailability reports whether a user's plan currently covers a feature
// kind. Like Eligibility, unavailability is data for the caller's branching.
type FeatureAvailability struct {
	Kind      FeatureKind       `json:"kind"`
	Available bool              `json:"available"`
	Reason    string            `json:"reason,omitempty"`
	Window    FeatureWindow     `json:"-"`
	Sub       *UserSubscription `json:"-"`
}
