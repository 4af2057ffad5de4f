package repository

import (
	"context"
	"time"

	"course-entitlements/internal/domain/model"
)

// -----------------------------
// Purchases
// -----------------------------

type PurchaseRepository interface {
	// Create inserts a purchase. When a row with the same transaction id already
	// exists it returns domain.ErrAlreadyExists and leaves the row untouched.
	Create(ctx context.Context, tx Tx, p *model.Purchase) error
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.Purchase, error)
	// UpdateLink sets product references and snapshot name on an existing row.
	UpdateLink(ctx context.Context, tx Tx, id string, courseID, bundleID *string, productName string) error
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Purchase, error)
	// ListApprovedBundlePurchases returns approved purchases with a bundle; userID "" means all users.
	ListApprovedBundlePurchases(ctx context.Context, tx Tx, userID string) ([]*model.Purchase, error)
	// FindApprovedByUserAndProduct returns an approved purchase of exactly that course or bundle.
	FindApprovedByUserAndProduct(ctx context.Context, tx Tx, userID string, courseID, bundleID *string) (*model.Purchase, error)

	// Manual grant lifecycle.
	ListManualGrantsCreatedBetween(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Purchase, error)
	CancelManualGrantsCreatedBefore(ctx context.Context, tx Tx, before time.Time) (int, error)

	// ListApprovedSince feeds revenue aggregation.
	ListApprovedSince(ctx context.Context, tx Tx, since time.Time) ([]*model.SaleRow, error)
}
