// File: internal/usecase/entitlement_uc.go
package usecase

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/repository"
	"course-entitlements/internal/infra/logging"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

// EntitlementUseCase answers which courses a user may open. It never writes.
type EntitlementUseCase interface {
	AccessibleCourses(ctx context.Context, userID string) ([]string, error)
	HasAccess(ctx context.Context, userID, courseID string) (bool, error)
}

type entitlementUC struct {
	purchases repository.PurchaseRepository
	subs      repository.SubscriptionRepository
	catalog   repository.CatalogRepository
	log       *zerolog.Logger
}

func NewEntitlementUseCase(purchases repository.PurchaseRepository, subs repository.SubscriptionRepository, catalog repository.CatalogRepository, logger *zerolog.Logger) *entitlementUC {
	return &entitlementUC{purchases: purchases, subs: subs, catalog: catalog, log: logger}
}

// AccessibleCourses returns the sorted union of approved course purchases and the
// member courses of approved bundle purchases and authorized subscriptions.
// Every product is checked by id against the catalog, never against the cached
// listings, so a deleted course or bundle stops granting access at once.
func (u *entitlementUC) AccessibleCourses(ctx context.Context, userID string) ([]string, error) {
	defer logging.TraceDuration(u.log, "EntitlementUC.AccessibleCourses")()

	purchases, err := u.purchases.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	subs, err := u.subs.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}

	var courseIDs, bundleIDs []string
	for _, p := range purchases {
		if p.Status != model.PurchaseStatusApproved {
			continue
		}
		if p.CourseID != nil {
			courseIDs = append(courseIDs, *p.CourseID)
		}
		if p.BundleID != nil {
			bundleIDs = append(bundleIDs, *p.BundleID)
		}
	}
	for _, s := range subs {
		if s.GrantsAccess() && s.BundleID != nil {
			bundleIDs = append(bundleIDs, *s.BundleID)
		}
	}

	seenBundle := map[string]struct{}{}
	for _, id := range bundleIDs {
		if _, ok := seenBundle[id]; ok {
			continue
		}
		seenBundle[id] = struct{}{}
		b, err := u.catalog.FindBundleByID(ctx, repository.NoTX, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			continue
		case err != nil:
			return nil, err
		}
		courseIDs = append(courseIDs, b.CourseIDs...)
	}

	live := map[string]bool{}
	for _, id := range courseIDs {
		if _, ok := live[id]; ok {
			continue
		}
		_, err := u.catalog.FindCourseByID(ctx, repository.NoTX, id)
		switch {
		case err == nil:
			live[id] = true
		case errors.Is(err, domain.ErrNotFound):
			live[id] = false
		default:
			return nil, err
		}
	}

	out := make([]string, 0, len(live))
	for id, ok := range live {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (u *entitlementUC) HasAccess(ctx context.Context, userID, courseID string) (bool, error) {
	ids, err := u.AccessibleCourses(ctx, userID)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(ids, courseID)
	return i < len(ids) && ids[i] == courseID, nil
}
