//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jonboulle/clockwork"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
	"classifieds-listing-core/internal/usecase"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type quotaFixture struct {
	listings *memListingRepo
	subs     *memSubRepo
	plans    *memPlanRepo
	users    *memUserRepo
	tm       *MockTxManager
	notifier *mockNotifier
	clock    clockwork.FakeClock
	uc       *usecase.QuotaUseCase
}

func newQuotaFixture(t *testing.T) *quotaFixture {
	t.Helper()
	f := &quotaFixture{
		listings: newMemListingRepo(),
		subs:     newMemSubRepo(),
		plans:    newMemPlanRepo(),
		users:    newMemUserRepo(),
		tm:       NewMockTxManager(),
		notifier: &mockNotifier{},
		clock:    clockwork.NewFakeClockAt(baseTime),
	}
	f.uc = usecase.NewQuotaUseCase(
		f.listings, f.subs, f.plans, f.users, f.tm, f.notifier,
		f.clock, 5*time.Second, newTestLogger(),
	)
	return f
}

func (f *quotaFixture) seedFreeTemplate(t *testing.T, categoryID string, limit, rollingDays int) *model.PlanTemplate {
	t.Helper()
	tmpl, err := model.NewPlanTemplate("tmpl-free-"+categoryID, categoryID, "Free", true)
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	tmpl.ListingQuotaLimit = limit
	tmpl.ListingQuotaRollingDays = rollingDays
	if err := f.plans.Save(context.Background(), repository.NoTX, tmpl); err != nil {
		t.Fatalf("save template: %v", err)
	}
	return tmpl
}

func (f *quotaFixture) seedPaidSub(t *testing.T, id, userID, categoryID string, maxTotal int) *model.UserSubscription {
	t.Helper()
	tmpl, err := model.NewPlanTemplate("tmpl-paid-"+categoryID, categoryID, "Pro", false)
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	tmpl.MaxTotalListings = maxTotal
	sub, err := model.NewUserSubscription(id, userID, tmpl, f.clock.Now())
	if err != nil {
		t.Fatalf("new subscription: %v", err)
	}
	if err := f.subs.Save(context.Background(), repository.NoTX, sub); err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	return sub
}

func (f *quotaFixture) seedListing(t *testing.T, id, ownerID, categoryID string, status model.ListingStatus, createdAt time.Time) *model.Listing {
	t.Helper()
	l, err := model.NewListing(id, ownerID, categoryID, status, 1000, createdAt)
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if err := f.listings.Save(context.Background(), repository.NoTX, l); err != nil {
		t.Fatalf("save listing: %v", err)
	}
	return l
}

func TestQuotaUseCase_GetUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("free tier counts only inside the rolling window", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)

		f.seedListing(t, "L-recent", "u1", "cars", model.ListingStatusActive, baseTime.AddDate(0, 0, -5))
		f.seedListing(t, "L-old", "u1", "cars", model.ListingStatusActive, baseTime.AddDate(0, 0, -45))
		f.seedListing(t, "L-draft", "u1", "cars", model.ListingStatusDraft, baseTime.AddDate(0, 0, -1))

		usage, err := f.uc.GetUsage(ctx, "u1", "cars")
		if err != nil {
			t.Fatalf("GetUsage: %v", err)
		}
		if usage.Tier != model.QuotaTierFree {
			t.Fatalf("tier = %s, want free", usage.Tier)
		}
		if usage.Used != 1 || usage.Remaining != 2 {
			t.Fatalf("used=%d remaining=%d, want 1/2", usage.Used, usage.Remaining)
		}
		if usage.WindowDays != 30 {
			t.Fatalf("window days = %d, want 30", usage.WindowDays)
		}
	})

	t.Run("expired statuses never count", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		f.seedListing(t, "L-dead", "u1", "cars", model.ListingStatusExpired, baseTime.AddDate(0, 0, -1))
		f.seedListing(t, "L-rej", "u1", "cars", model.ListingStatusRejected, baseTime.AddDate(0, 0, -1))

		usage, err := f.uc.GetUsage(ctx, "u1", "cars")
		if err != nil {
			t.Fatalf("GetUsage: %v", err)
		}
		if usage.Used != 0 {
			t.Fatalf("used = %d, want 0", usage.Used)
		}
	})

	t.Run("paid tier counts stamped listings, not window", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 1, 30)
		sub := f.seedPaidSub(t, "sub1", "u1", "cars", 10)

		// Stamped against the subscription long ago: still counts.
		l := f.seedListing(t, "L1", "u1", "cars", model.ListingStatusSold, baseTime.AddDate(0, -6, 0))
		subID := sub.ID
		if err := f.listings.SetConsumption(ctx, repository.NoTX, l.ID, &subID, true); err != nil {
			t.Fatalf("set consumption: %v", err)
		}
		// Unstamped listing by the same owner: invisible to the paid ledger.
		f.seedListing(t, "L2", "u1", "cars", model.ListingStatusActive, baseTime)

		usage, err := f.uc.GetUsage(ctx, "u1", "cars")
		if err != nil {
			t.Fatalf("GetUsage: %v", err)
		}
		if usage.Tier != model.QuotaTierPaid {
			t.Fatalf("tier = %s, want paid", usage.Tier)
		}
		if usage.Used != 1 || usage.Remaining != 9 {
			t.Fatalf("used=%d remaining=%d, want 1/9", usage.Used, usage.Remaining)
		}
		if usage.SubscriptionID != sub.ID {
			t.Fatalf("subscription id = %q, want %q", usage.SubscriptionID, sub.ID)
		}
	})

	t.Run("paid sub past its end falls back to free tier", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		sub := f.seedPaidSub(t, "sub1", "u1", "cars", 10)
		end := baseTime.Add(-time.Hour)
		sub.EndsAt = &end
		if err := f.subs.Save(ctx, repository.NoTX, sub); err != nil {
			t.Fatalf("save sub: %v", err)
		}

		usage, err := f.uc.GetUsage(ctx, "u1", "cars")
		if err != nil {
			t.Fatalf("GetUsage: %v", err)
		}
		if usage.Tier != model.QuotaTierFree {
			t.Fatalf("tier = %s, want free", usage.Tier)
		}
	})

	t.Run("no free template for category", func(t *testing.T) {
		f := newQuotaFixture(t)
		_, err := f.uc.GetUsage(ctx, "u1", "boats")
		if !errors.Is(err, domain.ErrNoPlanForCategory) {
			t.Fatalf("err = %v, want ErrNoPlanForCategory", err)
		}
	})
}

func TestQuotaUseCase_CheckEligibility(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed, manual review by default", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)

		elig, err := f.uc.CheckEligibility(ctx, "u1", "cars")
		if err != nil {
			t.Fatalf("CheckEligibility: %v", err)
		}
		if !elig.CanCreate {
			t.Fatal("expected CanCreate")
		}
		if elig.InitialStatus != model.ListingStatusPending {
			t.Fatalf("initial status = %s, want pending", elig.InitialStatus)
		}
	})

	t.Run("auto-approved owner goes straight to active", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		u, _ := model.NewUser("u1", "alice")
		u.AutoApprove = true
		if err := f.users.Save(ctx, repository.NoTX, u); err != nil {
			t.Fatalf("save user: %v", err)
		}

		elig, err := f.uc.CheckEligibility(ctx, "u1", "cars")
		if err != nil {
			t.Fatalf("CheckEligibility: %v", err)
		}
		if elig.InitialStatus != model.ListingStatusActive {
			t.Fatalf("initial status = %s, want active", elig.InitialStatus)
		}
	})

	t.Run("exhausted quota is a result, not an error", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 1, 30)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusActive, baseTime.AddDate(0, 0, -1))

		elig, err := f.uc.CheckEligibility(ctx, "u1", "cars")
		if err != nil {
			t.Fatalf("CheckEligibility: %v", err)
		}
		if elig.CanCreate {
			t.Fatal("expected CanCreate=false")
		}
		if elig.Reason != model.ReasonQuotaExhausted {
			t.Fatalf("reason = %q, want %q", elig.Reason, model.ReasonQuotaExhausted)
		}
		if elig.SuggestedAction == "" {
			t.Fatal("expected a suggested action for the exhausted case")
		}
	})
}

func TestQuotaUseCase_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("free tier stamps free coverage", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusDraft, baseTime)

		if err := f.uc.Consume(ctx, "u1", "cars", "L1"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
		got, _ := f.listings.FindByID(ctx, repository.NoTX, "L1")
		if got.ConsumingSubscriptionID != nil {
			t.Fatalf("subscription id = %v, want nil for free tier", *got.ConsumingSubscriptionID)
		}
		if got.IsPaid {
			t.Fatal("free tier stamp must not be paid")
		}
		if len(f.notifier.Quota) != 0 {
			t.Fatal("no exhausted event expected while quota remains")
		}
	})

	t.Run("paid tier stamps the subscription", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 0, 30)
		sub := f.seedPaidSub(t, "sub1", "u1", "cars", 10)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusDraft, baseTime)

		if err := f.uc.Consume(ctx, "u1", "cars", "L1"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
		got, _ := f.listings.FindByID(ctx, repository.NoTX, "L1")
		if got.ConsumingSubscriptionID == nil || *got.ConsumingSubscriptionID != sub.ID {
			t.Fatalf("stamp = %v, want %q", got.ConsumingSubscriptionID, sub.ID)
		}
		if !got.IsPaid {
			t.Fatal("paid tier stamp must set IsPaid")
		}
	})

	t.Run("a replayed consume never burns a second unit", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 0, 30)
		sub := f.seedPaidSub(t, "sub1", "u1", "cars", 2)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusActive, baseTime)

		for i := 0; i < 3; i++ {
			if err := f.uc.Consume(ctx, "u1", "cars", "L1"); err != nil {
				t.Fatalf("Consume #%d: %v", i+1, err)
			}
		}

		got, _ := f.listings.FindByID(ctx, repository.NoTX, "L1")
		if got.ConsumingSubscriptionID == nil || *got.ConsumingSubscriptionID != sub.ID {
			t.Fatalf("stamp = %v, want it kept at %q", got.ConsumingSubscriptionID, sub.ID)
		}
		if !got.IsPaid {
			t.Fatal("paid stamp must survive a replay")
		}
		gotSub, err := f.subs.FindByID(ctx, repository.NoTX, sub.ID)
		if err != nil {
			t.Fatalf("find sub: %v", err)
		}
		if gotSub.Status != model.SubscriptionStatusActive {
			t.Fatalf("subscription status = %s, one real unit must not downgrade", gotSub.Status)
		}
		if len(f.notifier.Quota) != 0 {
			t.Fatalf("exhausted events = %d, want 0", len(f.notifier.Quota))
		}
	})

	t.Run("category mismatch is rejected", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		f.seedListing(t, "L1", "u1", "boats", model.ListingStatusDraft, baseTime)

		err := f.uc.Consume(ctx, "u1", "cars", "L1")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("a countable target does not consume against itself", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 1, 30)
		// The target is already persisted as pending, so the owner count
		// includes it. It still takes the last free unit.
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusPending, baseTime)

		if err := f.uc.Consume(ctx, "u1", "cars", "L1"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	})

	t.Run("exhausted free quota", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 1, 30)
		f.seedListing(t, "L-used", "u1", "cars", model.ListingStatusActive, baseTime.AddDate(0, 0, -2))
		f.seedListing(t, "L-new", "u1", "cars", model.ListingStatusDraft, baseTime)

		err := f.uc.Consume(ctx, "u1", "cars", "L-new")
		if !errors.Is(err, domain.ErrQuotaExhausted) {
			t.Fatalf("err = %v, want ErrQuotaExhausted", err)
		}
	})

	t.Run("only the owner may consume", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusDraft, baseTime)

		err := f.uc.Consume(ctx, "intruder", "cars", "L1")
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown listing", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		err := f.uc.Consume(ctx, "u1", "cars", "L-missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("last paid unit downgrades the subscription", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 0, 30)
		sub := f.seedPaidSub(t, "sub1", "u1", "cars", 2)

		// One unit already consumed.
		prev := f.seedListing(t, "L-prev", "u1", "cars", model.ListingStatusActive, baseTime.Add(-time.Hour))
		subID := sub.ID
		if err := f.listings.SetConsumption(ctx, repository.NoTX, prev.ID, &subID, true); err != nil {
			t.Fatalf("set consumption: %v", err)
		}
		f.seedListing(t, "L-last", "u1", "cars", model.ListingStatusDraft, baseTime)

		if err := f.uc.Consume(ctx, "u1", "cars", "L-last"); err != nil {
			t.Fatalf("Consume: %v", err)
		}

		got, err := f.subs.FindByID(ctx, repository.NoTX, sub.ID)
		if err != nil {
			t.Fatalf("find sub: %v", err)
		}
		if got.Status != model.SubscriptionStatusExpired {
			t.Fatalf("status = %s, want expired", got.Status)
		}
		if got.CancellationReason != model.CancellationQuotaExhausted {
			t.Fatalf("reason = %q, want %q", got.CancellationReason, model.CancellationQuotaExhausted)
		}
		if got.AutoRenew {
			t.Fatal("downgrade must clear auto-renew")
		}
		if len(f.notifier.Quota) != 1 {
			t.Fatalf("exhausted events = %d, want 1", len(f.notifier.Quota))
		}
		if f.notifier.Quota[0].SubscriptionID != sub.ID {
			t.Fatalf("event subscription = %q, want %q", f.notifier.Quota[0].SubscriptionID, sub.ID)
		}
	})

	t.Run("last free unit emits exhausted event without a downgrade", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 1, 30)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusDraft, baseTime)

		if err := f.uc.Consume(ctx, "u1", "cars", "L1"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if len(f.notifier.Quota) != 1 {
			t.Fatalf("exhausted events = %d, want 1", len(f.notifier.Quota))
		}
		if f.notifier.Quota[0].Tier != model.QuotaTierFree {
			t.Fatalf("event tier = %s, want free", f.notifier.Quota[0].Tier)
		}
	})

	t.Run("notifier failure never fails the consume", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.notifier.QuotaErr = errors.New("sink down")
		f.seedFreeTemplate(t, "cars", 1, 30)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusDraft, baseTime)

		if err := f.uc.Consume(ctx, "u1", "cars", "L1"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	})

	t.Run("serialization failure is retried once", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusDraft, baseTime)

		calls := 0
		f.tm.WithTxFunc = func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			calls++
			if calls == 1 {
				return &pgconn.PgError{Code: "40001"}
			}
			return fn(ctx, repository.NoTX)
		}

		if err := f.uc.Consume(ctx, "u1", "cars", "L1"); err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if calls != 2 {
			t.Fatalf("attempts = %d, want 2", calls)
		}
	})

	t.Run("persistent serialization failure surfaces a conflict", func(t *testing.T) {
		f := newQuotaFixture(t)
		f.seedFreeTemplate(t, "cars", 3, 30)
		f.seedListing(t, "L1", "u1", "cars", model.ListingStatusDraft, baseTime)

		f.tm.WithTxFunc = func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			return &pgconn.PgError{Code: "40P01"}
		}

		err := f.uc.Consume(ctx, "u1", "cars", "L1")
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
		}
	})
}

// Eight concurrent consumers against three remaining paid units must admit
// exactly three, with a single downgrade.
func TestQuotaUseCase_Consume_NoOversell(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t)
	f.tm = NewSerializingTxManager()
	f.uc = usecase.NewQuotaUseCase(
		f.listings, f.subs, f.plans, f.users, f.tm, f.notifier,
		f.clock, 5*time.Second, newTestLogger(),
	)

	f.seedFreeTemplate(t, "cars", 0, 30)
	sub := f.seedPaidSub(t, "sub1", "u1", "cars", 3)

	const n = 8
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = "L" + string(rune('A'+i))
		f.seedListing(t, ids[i], "u1", "cars", model.ListingStatusPending, baseTime)
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.uc.Consume(ctx, "u1", "cars", ids[i])
		}(i)
	}
	wg.Wait()

	ok, exhausted := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrQuotaExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 3 || exhausted != 5 {
		t.Fatalf("ok=%d exhausted=%d, want 3/5", ok, exhausted)
	}

	stamped, err := f.listings.CountByConsumingSubscription(ctx, repository.NoTX, sub.ID, model.CountableStatuses)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if stamped != 3 {
		t.Fatalf("stamped = %d, want 3", stamped)
	}

	got, err := f.subs.FindByID(ctx, repository.NoTX, sub.ID)
	if err != nil {
		t.Fatalf("find sub: %v", err)
	}
	if got.Status != model.SubscriptionStatusExpired {
		t.Fatalf("status = %s, want expired after last unit", got.Status)
	}
	if len(f.notifier.Quota) != 1 {
		t.Fatalf("exhausted events = %d, want exactly 1", len(f.notifier.Quota))
	}
}
