package repository

import (
	"context"

	"course-entitlements/internal/domain/model"
)

// -----------------------------
// Catalog (courses, bundles and coupons)
// -----------------------------

type CatalogRepository interface {
	FindCourseByID(ctx context.Context, tx Tx, id string) (*model.Course, error)
	FindBundleByID(ctx context.Context, tx Tx, id string) (*model.Bundle, error)
	// ListCourses and ListBundles return the whole catalog; title matching runs in-process.
	ListCourses(ctx context.Context, tx Tx) ([]*model.Course, error)
	ListBundles(ctx context.Context, tx Tx) ([]*model.Bundle, error)
	FindCouponByID(ctx context.Context, tx Tx, id string) (*model.Coupon, error)
}
