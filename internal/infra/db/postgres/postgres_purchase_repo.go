package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseCols = `id, transaction_id, user_id, course_id, bundle_id, amount::text, status, product_name, coupon_id, created_at, updated_at`

// Create relies on the transaction_id unique constraint: a concurrent insert of
// the same transaction surfaces as domain.ErrAlreadyExists, never as a duplicate row.
func (r *purchaseRepo) Create(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	const q = `
INSERT INTO purchases (id, transaction_id, user_id, course_id, bundle_id, amount, status, product_name, coupon_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11)
ON CONFLICT (transaction_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.TransactionID, p.UserID, p.CourseID, p.BundleID, p.Amount.String(),
		p.Status, p.ProductName, p.CouponID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *purchaseRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases WHERE transaction_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", transactionID)
}

func (r *purchaseRepo) UpdateLink(ctx context.Context, tx repository.Tx, id string, courseID, bundleID *string, productName string) error {
	const q = `UPDATE purchases SET course_id=$2, bundle_id=$3, product_name=$4, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, courseID, bundleID, productName)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *purchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases WHERE user_id=$1 ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, userID)
}

func (r *purchaseRepo) ListApprovedBundlePurchases(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases
 WHERE status='approved' AND bundle_id IS NOT NULL AND ($1 = '' OR user_id = $1)
 ORDER BY created_at ASC;`
	return r.queryMany(ctx, tx, q, userID)
}

func (r *purchaseRepo) FindApprovedByUserAndProduct(ctx context.Context, tx repository.Tx, userID string, courseID, bundleID *string) (*model.Purchase, error) {
	if courseID == nil && bundleID == nil {
		return nil, domain.ErrProductRequired
	}
	q := `SELECT ` + purchaseCols + ` FROM purchases
 WHERE user_id=$1 AND status='approved'
   AND (($2::text IS NOT NULL AND course_id=$2) OR ($3::text IS NOT NULL AND bundle_id=$3))
 ORDER BY created_at ASC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID, courseID, bundleID)
}

func (r *purchaseRepo) ListManualGrantsCreatedBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases
 WHERE starts_with(transaction_id, $1) AND status='approved'
   AND created_at >= $2 AND created_at < $3
 ORDER BY created_at ASC;`
	return r.queryMany(ctx, tx, q, model.ManualGrantPrefix, from, to)
}

func (r *purchaseRepo) CancelManualGrantsCreatedBefore(ctx context.Context, tx repository.Tx, before time.Time) (int, error) {
	const q = `
UPDATE purchases SET status='cancelled', updated_at=NOW()
 WHERE starts_with(transaction_id, $1) AND status='approved' AND created_at < $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, model.ManualGrantPrefix, before)
	if err != nil {
		return 0, mapWriteErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *purchaseRepo) ListApprovedSince(ctx context.Context, tx repository.Tx, since time.Time) ([]*model.SaleRow, error) {
	const q = `
SELECT p.id, p.transaction_id, u.email, p.course_id, p.bundle_id, p.product_name, p.amount::text, p.created_at
  FROM purchases p
  JOIN users u ON u.id = p.user_id
 WHERE p.status='approved' AND p.created_at >= $1
 ORDER BY p.created_at ASC, p.id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SaleRow
	for rows.Next() {
		var p model.Purchase
		var email, amount string
		if err := rows.Scan(&p.ID, &p.TransactionID, &email, &p.CourseID, &p.BundleID, &p.ProductName, &amount, &p.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		p.Amount = decimal.RequireFromString(amount)
		out = append(out, model.NewSaleRow(&p, email))
	}
	return out, rows.Err()
}

func (r *purchaseRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Purchase, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPurchase(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return p, nil
}

func (r *purchaseRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Purchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	var amount string
	if err := row.Scan(&p.ID, &p.TransactionID, &p.UserID, &p.CourseID, &p.BundleID, &amount,
		&p.Status, &p.ProductName, &p.CouponID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Amount = decimal.RequireFromString(amount)
	return &p, nil
}
