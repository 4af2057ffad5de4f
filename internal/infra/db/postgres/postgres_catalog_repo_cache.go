package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/repository"
	"course-entitlements/internal/infra/metrics"
	red "course-entitlements/internal/infra/redis"
)

var _ repository.CatalogRepository = (*catalogRepoCacheDecorator)(nil)

const (
	coursesKey = "catalog:courses"
	bundlesKey = "catalog:bundles"
)

// catalogRepoCacheDecorator caches the full course and bundle listings used by
// title matching. Lookups by id always reach the database so that a deleted
// product is never reported as existing.
type catalogRepoCacheDecorator struct {
	inner  repository.CatalogRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCatalogRepoCacheDecorator(inner repository.CatalogRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) *catalogRepoCacheDecorator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	l := logger.With().Str("component", "catalog_cache").Logger()
	return &catalogRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: &l}
}

func (d *catalogRepoCacheDecorator) FindCourseByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	return d.inner.FindCourseByID(ctx, tx, id)
}

func (d *catalogRepoCacheDecorator) FindBundleByID(ctx context.Context, tx repository.Tx, id string) (*model.Bundle, error) {
	return d.inner.FindBundleByID(ctx, tx, id)
}

func (d *catalogRepoCacheDecorator) FindCouponByID(ctx context.Context, tx repository.Tx, id string) (*model.Coupon, error) {
	return d.inner.FindCouponByID(ctx, tx, id)
}

func (d *catalogRepoCacheDecorator) ListCourses(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	var courses []*model.Course
	if d.load(ctx, coursesKey, "course_list", &courses) {
		return courses, nil
	}
	courses, err := d.inner.ListCourses(ctx, tx)
	if err != nil {
		return nil, err
	}
	d.store(ctx, coursesKey, courses)
	return courses, nil
}

func (d *catalogRepoCacheDecorator) ListBundles(ctx context.Context, tx repository.Tx) ([]*model.Bundle, error) {
	var bundles []*model.Bundle
	if d.load(ctx, bundlesKey, "bundle_list", &bundles) {
		return bundles, nil
	}
	bundles, err := d.inner.ListBundles(ctx, tx)
	if err != nil {
		return nil, err
	}
	d.store(ctx, bundlesKey, bundles)
	return bundles, nil
}

// Invalidate drops the cached listings; call it after catalog writes.
func (d *catalogRepoCacheDecorator) Invalidate(ctx context.Context) error {
	return d.cache.Del(ctx, coursesKey, bundlesKey)
}

func (d *catalogRepoCacheDecorator) load(ctx context.Context, key, name string, dst interface{}) bool {
	val, err := d.cache.Get(ctx, key)
	if err == nil && json.Unmarshal([]byte(val), dst) == nil {
		metrics.IncCacheRequest(name, "hit")
		return true
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		d.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	metrics.IncCacheRequest(name, "miss")
	return false
}

func (d *catalogRepoCacheDecorator) store(ctx context.Context, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
