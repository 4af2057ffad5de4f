package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Claim(ctx context.Context, tx repository.Tx, purchaseID, userID, kind string) error {
	// The UNIQUE (purchase_id, kind) constraint decides who sends.
	const q = `
INSERT INTO purchase_notifications (id, purchase_id, user_id, kind)
VALUES ($1, $2, $3, $4)
ON CONFLICT (purchase_id, kind) DO NOTHING`

	tag, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), purchaseID, userID, kind)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}
