package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"classifieds-listing-core/internal/domain/model"
	"classifieds-listing-core/internal/domain/ports/repository"
	"classifieds-listing-core/internal/infra/metrics"
	red "classifieds-listing-core/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

// planRepoCacheDecorator caches free-template lookups, the hot read on every
// free-tier quota check. Writes invalidate the category's entry.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func freeTemplateKey(categoryID string) string {
	return fmt.Sprintf("plan_template:free:%s", categoryID)
}

func (d *planRepoCacheDecorator) FindFreeTemplate(ctx context.Context, tx repository.Tx, categoryID string) (*model.PlanTemplate, error) {
	// Skip the cache inside a transaction: the quota recount must see
	// committed catalog state through the same snapshot as its counts.
	if tx != nil {
		return d.inner.FindFreeTemplate(ctx, tx, categoryID)
	}

	key := freeTemplateKey(categoryID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var p model.PlanTemplate
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("free_template", "hit")
			return &p, nil
		}
	}

	metrics.IncCacheRequest("free_template", "miss")
	p, err := d.inner.FindFreeTemplate(ctx, tx, categoryID)
	if err != nil {
		return nil, err
	}
	if b, merr := json.Marshal(p); merr == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return p, nil
}

func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.PlanTemplate) error {
	_ = d.cache.Del(ctx, freeTemplateKey(p.CategoryID))
	return d.inner.Save(ctx, tx, p)
}

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PlanTemplate, error) {
	return d.inner.FindByID(ctx, tx, id)
}

func (d *planRepoCacheDecorator) ListByCategory(ctx context.Context, tx repository.Tx, categoryID string) ([]*model.PlanTemplate, error) {
	return d.inner.ListByCategory(ctx, tx, categoryID)
}
