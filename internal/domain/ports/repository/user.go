package repository

import (
	"context"

	"classifieds-listing-core/internal/domain/model"
)

// UserRepository is the narrow slice of the user store this core consumes.
type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)

	// AutoApprove reports whether the user's listings go live without manual
	// review. Unknown users default to false.
	AutoApprove(ctx context.Context, tx Tx, userID string) (bool, error)
}
