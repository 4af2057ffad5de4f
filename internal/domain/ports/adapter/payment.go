package adapter

import (
	"context"

	"course-entitlements/internal/domain/model"
)

// SubscriptionFilter narrows a subscription search. Zero values mean "no filter".
type SubscriptionFilter struct {
	PayerEmail string
	Limit      int
	Offset     int
}

// TransactionSource is the hex port for the payment provider ledger.
//
// Implementations must surface transport and provider errors to the caller;
// an empty slice with a nil error means the provider really returned nothing.
type TransactionSource interface {
	Name() string

	// Validate reports domain.ErrProviderNotConfigured when credentials are missing.
	// Callers invoke it before any other method.
	Validate() error

	// ListRecentPayments returns one-off payments, newest first.
	ListRecentPayments(ctx context.Context, limit, offset int) ([]model.Transaction, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]model.SubscriptionRecord, error)
	GetSubscription(ctx context.Context, id string) (*model.SubscriptionRecord, error)
}
