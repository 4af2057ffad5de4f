package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/repository"
)

var _ repository.CatalogRepository = (*catalogRepo)(nil)

type catalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *catalogRepo {
	return &catalogRepo{pool: pool}
}

func (r *catalogRepo) FindCourseByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	const q = `SELECT id, title, price::text, created_at FROM courses WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	c, err := scanCourse(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return c, nil
}

func (r *catalogRepo) ListCourses(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	const q = `SELECT id, title, price::text, created_at FROM courses ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *catalogRepo) FindBundleByID(ctx context.Context, tx repository.Tx, id string) (*model.Bundle, error) {
	const q = `SELECT id, title, price::text, created_at FROM bundles WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	b, err := scanBundle(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	if err := r.loadMembers(ctx, tx, []*model.Bundle{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *catalogRepo) ListBundles(ctx context.Context, tx repository.Tx) ([]*model.Bundle, error) {
	const q = `SELECT id, title, price::text, created_at FROM bundles ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	var out []*model.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			rows.Close()
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadMembers(ctx, tx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *catalogRepo) FindCouponByID(ctx context.Context, tx repository.Tx, id string) (*model.Coupon, error) {
	const q = `SELECT id, code, kind, value::text, expires_at, usage_limit, used_count FROM coupons WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var c model.Coupon
	var value string
	if err := row.Scan(&c.ID, &c.Code, &c.Kind, &value, &c.ExpiresAt, &c.UsageLimit, &c.UsedCount); err != nil {
		return nil, mapReadErr(err)
	}
	c.Value = decimal.RequireFromString(value)
	return &c, nil
}

// loadMembers fills CourseIDs and Items of the given bundles in two queries.
func (r *catalogRepo) loadMembers(ctx context.Context, tx repository.Tx, bundles []*model.Bundle) error {
	if len(bundles) == 0 {
		return nil
	}
	ids := make([]string, 0, len(bundles))
	byID := make(map[string]*model.Bundle, len(bundles))
	for _, b := range bundles {
		ids = append(ids, b.ID)
		byID[b.ID] = b
	}

	rows, err := queryRows(ctx, r.pool, tx, `
SELECT bundle_id, course_id FROM bundle_courses
 WHERE bundle_id = ANY($1)
 ORDER BY bundle_id, position, course_id;`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var bundleID, courseID string
		if err := rows.Scan(&bundleID, &courseID); err != nil {
			rows.Close()
			return domain.ErrReadDatabaseRow
		}
		byID[bundleID].CourseIDs = append(byID[bundleID].CourseIDs, courseID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = queryRows(ctx, r.pool, tx, `
SELECT id, bundle_id, title, url FROM bundle_items
 WHERE bundle_id = ANY($1)
 ORDER BY bundle_id, position, id;`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.BundleItem
		var bundleID string
		if err := rows.Scan(&it.ID, &bundleID, &it.Title, &it.URL); err != nil {
			return domain.ErrReadDatabaseRow
		}
		byID[bundleID].Items = append(byID[bundleID].Items, it)
	}
	return rows.Err()
}

func scanCourse(row pgx.Row) (*model.Course, error) {
	var c model.Course
	var price string
	if err := row.Scan(&c.ID, &c.Title, &price, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Price = decimal.RequireFromString(price)
	return &c, nil
}

func scanBundle(row pgx.Row) (*model.Bundle, error) {
	var b model.Bundle
	var price string
	if err := row.Scan(&b.ID, &b.Title, &price, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Price = decimal.RequireFromString(price)
	return &b, nil
}
