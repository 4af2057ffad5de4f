// File: internal/usecase/resolver.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/repository"
)

// TitleMatcher decides whether a catalog title matches a free-text title from the provider.
type TitleMatcher interface {
	Name() string
	Match(catalogTitle, providerTitle string) bool
}

// SubstringMatcher matches when the catalog title contains the provider title,
// ignoring case. Loose on purpose: providers do not guarantee exact titles.
type SubstringMatcher struct{}

func (SubstringMatcher) Name() string { return "substring" }

func (SubstringMatcher) Match(catalogTitle, providerTitle string) bool {
	needle := strings.ToLower(strings.TrimSpace(providerTitle))
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(catalogTitle), needle)
}

// ExactMatcher requires case-insensitive equality after trimming.
type ExactMatcher struct{}

func (ExactMatcher) Name() string { return "exact" }

func (ExactMatcher) Match(catalogTitle, providerTitle string) bool {
	p := strings.TrimSpace(providerTitle)
	return p != "" && strings.EqualFold(strings.TrimSpace(catalogTitle), p)
}

// NewTitleMatcher returns the strategy registered under name; unknown names fall back to substring.
func NewTitleMatcher(name string) TitleMatcher {
	if strings.EqualFold(name, "exact") {
		return ExactMatcher{}
	}
	return SubstringMatcher{}
}

// Resolution is the outcome of mapping a transaction onto a user and a product.
// Course and Bundle are both nil for an unlinked purchase.
type Resolution struct {
	User         *model.User
	UserCreated  bool
	Course       *model.Course
	Bundle       *model.Bundle
	Coupon       *model.Coupon
	SnapshotName string
	Warnings     []string
}

func (r *Resolution) Linked() bool { return r.Course != nil || r.Bundle != nil }

func (r *Resolution) CourseID() *string {
	if r.Course == nil {
		return nil
	}
	return &r.Course.ID
}

func (r *Resolution) BundleID() *string {
	if r.Bundle == nil {
		return nil
	}
	return &r.Bundle.ID
}

func (r *Resolution) CouponID() *string {
	if r.Coupon == nil {
		return nil
	}
	return &r.Coupon.ID
}

func (r *Resolution) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// EntityResolver maps provider records to users and catalog products.
type EntityResolver struct {
	users   repository.UserRepository
	catalog repository.CatalogRepository
	matcher TitleMatcher
	log     *zerolog.Logger
}

func NewEntityResolver(users repository.UserRepository, catalog repository.CatalogRepository, matcher TitleMatcher, logger *zerolog.Logger) *EntityResolver {
	if matcher == nil {
		matcher = SubstringMatcher{}
	}
	l := logger.With().Str("component", "resolver").Str("matcher", matcher.Name()).Logger()
	return &EntityResolver{users: users, catalog: catalog, matcher: matcher, log: &l}
}

// Resolve resolves both the user and the product of t. A nil Resolution.User
// means no user could be determined (no valid metadata id and no payer email).
func (r *EntityResolver) Resolve(ctx context.Context, tx repository.Tx, t model.Transaction) (*Resolution, error) {
	res := &Resolution{}
	if err := r.resolveUser(ctx, tx, t, res); err != nil {
		return nil, err
	}
	if err := r.resolveProduct(ctx, tx, t.Metadata, t.Title(), res); err != nil {
		return nil, err
	}
	if err := r.resolveCoupon(ctx, tx, t.Metadata, res); err != nil {
		return nil, err
	}
	res.SnapshotName = snapshotName(res, t)
	return res, nil
}

// ResolveProduct runs only the product half, used when repairing existing rows.
func (r *EntityResolver) ResolveProduct(ctx context.Context, tx repository.Tx, t model.Transaction) (*Resolution, error) {
	res := &Resolution{}
	if err := r.resolveProduct(ctx, tx, t.Metadata, t.Title(), res); err != nil {
		return nil, err
	}
	res.SnapshotName = snapshotName(res, t)
	return res, nil
}

// ResolveUser finds or creates the owner of a payer identity.
func (r *EntityResolver) ResolveUser(ctx context.Context, tx repository.Tx, t model.Transaction) (*Resolution, error) {
	res := &Resolution{}
	if err := r.resolveUser(ctx, tx, t, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ResolveSubscriptionBundle resolves the bundle of a provider subscription from
// its JSON external reference, else by matching its reason against bundle titles.
func (r *EntityResolver) ResolveSubscriptionBundle(ctx context.Context, tx repository.Tx, rec model.SubscriptionRecord) (*Resolution, error) {
	res := &Resolution{}
	meta, _ := model.ParseExternalReference(rec.ExternalReference)
	if meta.BundleID != "" {
		b, err := r.catalog.FindBundleByID(ctx, tx, meta.BundleID)
		switch {
		case err == nil:
			res.Bundle = b
		case errors.Is(err, domain.ErrNotFound):
			res.warnf("bundle %s from external reference no longer exists", meta.BundleID)
		default:
			return nil, fmt.Errorf("find bundle: %w", err)
		}
	}
	if res.Bundle == nil && strings.TrimSpace(rec.Reason) != "" {
		b, err := r.matchBundle(ctx, tx, rec.Reason)
		if err != nil {
			return nil, err
		}
		res.Bundle = b
	}
	if res.Bundle != nil {
		res.SnapshotName = res.Bundle.Title
	}
	return res, nil
}

func (r *EntityResolver) resolveUser(ctx context.Context, tx repository.Tx, t model.Transaction, res *Resolution) error {
	if id := t.Metadata.UserID; id != "" {
		u, err := r.users.FindByID(ctx, tx, id)
		switch {
		case err == nil:
			res.User = u
			return nil
		case errors.Is(err, domain.ErrNotFound):
			res.warnf("metadata user %s not found, falling back to payer email", id)
		default:
			return fmt.Errorf("find user by id: %w", err)
		}
	}

	email := strings.TrimSpace(t.PayerEmail)
	if email == "" {
		return nil
	}
	u, err := r.users.FindByEmail(ctx, tx, email)
	if err == nil {
		res.User = u
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("find user by email: %w", err)
	}

	nu, err := model.NewUser("", email, t.PayerFirstName, t.PayerLastName)
	if err != nil {
		return err
	}
	switch err := r.users.Create(ctx, tx, nu); {
	case err == nil:
		res.User = nu
		res.UserCreated = true
		r.log.Debug().Str("user_id", nu.ID).Msg("created user for payer")
		return nil
	case errors.Is(err, domain.ErrAlreadyExists):
		// Lost a race with a concurrent run; read the winner.
		u, err := r.users.FindByEmail(ctx, tx, email)
		if err != nil {
			return fmt.Errorf("re-read user after conflict: %w", err)
		}
		res.User = u
		return nil
	default:
		return fmt.Errorf("create user: %w", err)
	}
}

func (r *EntityResolver) resolveProduct(ctx context.Context, tx repository.Tx, meta model.TransactionMetadata, title string, res *Resolution) error {
	if meta.CourseID != "" {
		c, err := r.catalog.FindCourseByID(ctx, tx, meta.CourseID)
		switch {
		case err == nil:
			res.Course = c
		case errors.Is(err, domain.ErrNotFound):
			res.warnf("course %s from metadata no longer exists", meta.CourseID)
		default:
			return fmt.Errorf("find course: %w", err)
		}
	}
	if meta.BundleID != "" {
		b, err := r.catalog.FindBundleByID(ctx, tx, meta.BundleID)
		switch {
		case err == nil:
			if res.Course != nil {
				res.warnf("metadata names both course %s and bundle %s, keeping the course", res.Course.ID, b.ID)
			} else {
				res.Bundle = b
			}
		case errors.Is(err, domain.ErrNotFound):
			res.warnf("bundle %s from metadata no longer exists", meta.BundleID)
		default:
			return fmt.Errorf("find bundle: %w", err)
		}
	}
	if res.Linked() || strings.TrimSpace(title) == "" {
		return nil
	}

	// Courses first so a single-course purchase is never routed into a wider bundle.
	// Listings may come from a cache, so a hit is confirmed by id before linking.
	courses, err := r.catalog.ListCourses(ctx, tx)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	for _, c := range courses {
		if !r.matcher.Match(c.Title, title) {
			continue
		}
		live, err := r.catalog.FindCourseByID(ctx, tx, c.ID)
		switch {
		case err == nil:
			res.Course = live
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("find course: %w", err)
		}
		r.log.Debug().Str("course_id", c.ID).Msg("listed course no longer exists")
	}
	b, err := r.matchBundle(ctx, tx, title)
	if err != nil {
		return err
	}
	res.Bundle = b
	return nil
}

func (r *EntityResolver) matchBundle(ctx context.Context, tx repository.Tx, title string) (*model.Bundle, error) {
	bundles, err := r.catalog.ListBundles(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	for _, b := range bundles {
		if !r.matcher.Match(b.Title, title) {
			continue
		}
		live, err := r.catalog.FindBundleByID(ctx, tx, b.ID)
		switch {
		case err == nil:
			return live, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("find bundle: %w", err)
		}
		r.log.Debug().Str("bundle_id", b.ID).Msg("listed bundle no longer exists")
	}
	return nil, nil
}

// resolveCoupon keeps the metadata coupon only while it still exists, so a
// stale id never reaches the purchases foreign key.
func (r *EntityResolver) resolveCoupon(ctx context.Context, tx repository.Tx, meta model.TransactionMetadata, res *Resolution) error {
	if meta.CouponID == "" {
		return nil
	}
	c, err := r.catalog.FindCouponByID(ctx, tx, meta.CouponID)
	switch {
	case err == nil:
		res.Coupon = c
	case errors.Is(err, domain.ErrNotFound):
		res.warnf("coupon %s from metadata no longer exists, recorded without it", meta.CouponID)
	default:
		return fmt.Errorf("find coupon: %w", err)
	}
	return nil
}

func snapshotName(res *Resolution, t model.Transaction) string {
	switch {
	case res.Course != nil:
		return res.Course.Title
	case res.Bundle != nil:
		return res.Bundle.Title
	case t.Title() != "":
		return t.Title()
	default:
		return "Payment " + t.ID
	}
}

// ProductName returns the current title of the referenced product, or "" when it no longer exists.
func (r *EntityResolver) ProductName(ctx context.Context, tx repository.Tx, courseID, bundleID *string) (string, error) {
	if courseID != nil {
		c, err := r.catalog.FindCourseByID(ctx, tx, *courseID)
		if err == nil {
			return c.Title, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}
	if bundleID != nil {
		b, err := r.catalog.FindBundleByID(ctx, tx, *bundleID)
		if err == nil {
			return b.Title, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}
	return "", nil
}
