package repository

import (
	"context"
	"time"

	"course-entitlements/internal/domain/model"
)

// SubscriptionRepository is the port for recurring entitlements.
type SubscriptionRepository interface {
	// Create inserts a subscription; a taken external id yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByExternalID(ctx context.Context, tx Tx, externalID string) (*model.Subscription, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.SubscriptionStatus) error
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
	// FindAuthorizedByUserAndBundle returns any authorized subscription for the pairing.
	FindAuthorizedByUserAndBundle(ctx context.Context, tx Tx, userID, bundleID string) (*model.Subscription, error)
	// ExpireLegacySynthesizedBefore cancels authorized legacy rows synthesized before cutoff.
	ExpireLegacySynthesizedBefore(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
}
