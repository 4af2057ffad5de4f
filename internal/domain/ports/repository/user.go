package repository

import (
	"context"

	"course-entitlements/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Create inserts a user; a taken email yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	// FindByEmail is an exact match on the stored email.
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
}
