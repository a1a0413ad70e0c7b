package repository

import (
	"context"

	"classifieds-listing-core/internal/domain/model"
)

// PlanRepository is the port for plan-template catalog reads. Templates are
// written by catalog management; this core only reads them (plus Save for
// seeding and tests).
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PlanTemplate) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PlanTemplate, error)

	// FindFreeTemplate returns the free-tier template for a category, or
	// domain.ErrNotFound when the category has none configured.
	FindFreeTemplate(ctx context.Context, tx Tx, categoryID string) (*model.PlanTemplate, error)

	ListByCategory(ctx context.Context, tx Tx, categoryID string) ([]*model.PlanTemplate, error)
}
