package model

import (
	"time"

	"classifieds-listing-core/internal/domain"

	"github.com/google/uuid"
)

// User carries only what the entitlement core needs from the user store.
type User struct {
	ID           string
	Username     string
	AutoApprove  bool
	RegisteredAt time.Time
}

func NewUser(id, username string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if username == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:           id,
		Username:     username,
		RegisteredAt: time.Now(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
