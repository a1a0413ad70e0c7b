//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"classifieds-listing-core/internal/domain"
	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/adapter"
	"classifieds-listing-core/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// =============================
// In-memory repositories
// =============================

// ---- Listings ----

type memListingRepo struct {
	mu    sync.RWMutex
	items map[string]*model.Listing

	LockErr error
	Locked  []string // (owner:category) pairs seen by LockOwnerCategory
}

var _ repository.ListingRepository = (*memListingRepo)(nil)

func newMemListingRepo() *memListingRepo {
	return &memListingRepo{items: map[string]*model.Listing{}}
}

func (r *memListingRepo) Save(ctx context.Context, tx repository.Tx, l *model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.items[l.ID] = &cp
	return nil
}

func (r *memListingRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func statusIn(s model.ListingStatus, set []model.ListingStatus) bool {
	for _, c := range set {
		if s == c {
			return true
		}
	}
	return false
}

func (r *memListingRepo) CountByOwner(ctx context.Context, tx repository.Tx, ownerID, categoryID string, statuses []model.ListingStatus, createdAfter *time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, l := range r.items {
		if l.OwnerID != ownerID || l.CategoryID != categoryID || !statusIn(l.Status, statuses) {
			continue
		}
		if createdAfter != nil && l.CreatedAt.Before(*createdAfter) {
			continue
		}
		n++
	}
	return n, nil
}

func (r *memListingRepo) CountByConsumingSubscription(ctx context.Context, tx repository.Tx, subscriptionID string, statuses []model.ListingStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, l := range r.items {
		if l.ConsumingSubscriptionID == nil || *l.ConsumingSubscriptionID != subscriptionID {
			continue
		}
		if !statusIn(l.Status, statuses) {
			continue
		}
		n++
	}
	return n, nil
}

func (r *memListingRepo) CountWithFeature(ctx context.Context, tx repository.Tx, ownerID string, kind model.FeatureKind, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, l := range r.items {
		if l.OwnerID == ownerID && l.FeatureState(kind).ActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (r *memListingRepo) SetConsumption(ctx context.Context, tx repository.Tx, listingID string, subscriptionID *string, isPaid bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	l.ConsumingSubscriptionID = subscriptionID
	l.IsPaid = isPaid
	return nil
}

func (r *memListingRepo) UpdateFeatures(ctx context.Context, tx repository.Tx, listingID string, patch model.FeaturePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	l.Featured = patch.Featured
	l.Features = patch.Features
	return nil
}

func (r *memListingRepo) ListActiveWithFeatures(ctx context.Context, tx repository.Tx) ([]*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Listing
	for _, l := range r.items {
		if l.Status == model.ListingStatusActive && l.HasAnyFeature() {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memListingRepo) ListActiveByCategory(ctx context.Context, tx repository.Tx, categoryID string, limit int) ([]*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Listing
	for _, l := range r.items {
		if l.CategoryID == categoryID && l.Status == model.ListingStatusActive {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memListingRepo) LockOwnerCategory(ctx context.Context, tx repository.Tx, ownerID, categoryID string) error {
	if r.LockErr != nil {
		return r.LockErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Locked = append(r.Locked, ownerID+":"+categoryID)
	return nil
}

// ---- Subscriptions ----

type memSubRepo struct {
	mu    sync.RWMutex
	items map[string]*model.UserSubscription
}

var _ repository.SubscriptionRepository = (*memSubRepo)(nil)

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{items: map[string]*model.UserSubscription{}}
}

func (r *memSubRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.items[s.ID] = &cp
	return nil
}

func (r *memSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubRepo) FindActivePaid(ctx context.Context, tx repository.Tx, userID, categoryID string) (*model.UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.items {
		if s.UserID == userID && s.CategoryID == categoryID &&
			s.Status == model.SubscriptionStatusActive && !s.IsFreeTier {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memSubRepo) Expire(ctx context.Context, tx repository.Tx, id, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok || s.Status != model.SubscriptionStatusActive {
		return domain.ErrNotFound
	}
	s.Expire(reason, now)
	return nil
}

func (r *memSubRepo) ListExpiringBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.UserSubscription
	for _, s := range r.items {
		if s.Status == model.SubscriptionStatusActive && s.EndsAt != nil && s.EndsAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSubRepo) CountActiveByPlan(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string]int{}
	for _, s := range r.items {
		if s.Status == model.SubscriptionStatusActive {
			out[s.PlanID]++
		}
	}
	return out, nil
}

// ---- Plan templates ----

type memPlanRepo struct {
	mu    sync.RWMutex
	items map[string]*model.PlanTemplate
}

var _ repository.PlanRepository = (*memPlanRepo)(nil)

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{items: map[string]*model.PlanTemplate{}}
}

func (r *memPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.PlanTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.items[p.ID] = &cp
	return nil
}

func (r *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PlanTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPlanRepo) FindFreeTemplate(ctx context.Context, tx repository.Tx, categoryID string) (*model.PlanTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.items {
		if p.CategoryID == categoryID && p.IsFreeTier {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPlanRepo) ListByCategory(ctx context.Context, tx repository.Tx, categoryID string) ([]*model.PlanTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.PlanTemplate
	for _, p := range r.items {
		if p.CategoryID == categoryID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Users ----

type memUserRepo struct {
	mu    sync.RWMutex
	items map[string]*model.User
}

var _ repository.UserRepository = (*memUserRepo)(nil)

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{items: map[string]*model.User{}}
}

func (r *memUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.items[u.ID] = &cp
	return nil
}

func (r *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) AutoApprove(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[userID]
	if !ok {
		return false, nil
	}
	return u.AutoApprove, nil
}

// =============================
// Transaction manager
// =============================

// MockTxManager runs the transactional function directly with NoTX. Assign
// WithTxFunc to control transaction behavior; the concurrency tests use a
// serializing variant that mirrors the advisory-lock semantics of the real
// store.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// NewSerializingTxManager serializes all transactions behind one mutex, which
// is what the per-(owner, category) advisory lock gives the real quota path.
func NewSerializingTxManager() *MockTxManager {
	var mu sync.Mutex
	return &MockTxManager{
		WithTxFunc: func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			mu.Lock()
			defer mu.Unlock()
			return fn(ctx, repository.NoTX)
		},
	}
}

// =============================
// Notification sink
// =============================

type mockNotifier struct {
	mu       sync.Mutex
	Quota    []adapter.QuotaExhaustedEvent
	Features []adapter.FeatureExpiredEvent

	QuotaErr   error
	FeatureErr error
}

var _ adapter.NotificationSink = (*mockNotifier)(nil)

func (m *mockNotifier) QuotaExhausted(ctx context.Context, evt adapter.QuotaExhaustedEvent) error {
	if m.QuotaErr != nil {
		return m.QuotaErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Quota = append(m.Quota, evt)
	return nil
}

func (m *mockNotifier) FeatureExpired(ctx context.Context, evt adapter.FeatureExpiredEvent) error {
	if m.FeatureErr != nil {
		return m.FeatureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Features = append(m.Features, evt)
	return nil
}
