package repository

import (
	"context"
)

// -----------------------------
// Notifications Log
// -----------------------------

type NotificationLogRepository interface {
	// Claim records that a notification of kind is being sent for purchaseID.
	// It returns domain.ErrAlreadyExists when the same notification was claimed before,
	// which makes repeated sweeps on the same day safe.
	Claim(ctx context.Context, tx Tx, purchaseID, userID, kind string) error
}
