//go:build !integration

package postgres

import (
	"context"
	"time"

	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/repository"
	red "course-entitlements/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerCatalogRepo mocks the database repository that the catalog decorator wraps.
type mockInnerCatalogRepo struct {
	FindCourseByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Course, error)
	FindBundleByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Bundle, error)
	ListCoursesFunc    func(ctx context.Context, tx repository.Tx) ([]*model.Course, error)
	ListBundlesFunc    func(ctx context.Context, tx repository.Tx) ([]*model.Bundle, error)
	FindCouponByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Coupon, error)
}

func (m *mockInnerCatalogRepo) FindCourseByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	return m.FindCourseByIDFunc(ctx, tx, id)
}
func (m *mockInnerCatalogRepo) FindBundleByID(ctx context.Context, tx repository.Tx, id string) (*model.Bundle, error) {
	return m.FindBundleByIDFunc(ctx, tx, id)
}
func (m *mockInnerCatalogRepo) ListCourses(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	return m.ListCoursesFunc(ctx, tx)
}
func (m *mockInnerCatalogRepo) ListBundles(ctx context.Context, tx repository.Tx) ([]*model.Bundle, error) {
	return m.ListBundlesFunc(ctx, tx)
}
func (m *mockInnerCatalogRepo) FindCouponByID(ctx context.Context, tx repository.Tx, id string) (*model.Coupon, error) {
	return m.FindCouponByIDFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
