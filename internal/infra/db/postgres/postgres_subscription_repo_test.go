//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
)

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewSubscriptionRepo(testPool)
	b1 := "b1"

	setup := func(t *testing.T) *model.User {
		cleanup(t)
		u := seedUser(t, "a@x.com")
		seedCourse(t, "c1", "Curso", 1)
		seedBundle(t, "b1", "Pack Trader", "c1")
		return u
	}

	t.Run("should create once per external id and update status", func(t *testing.T) {
		u := setup(t)
		s := &model.Subscription{ID: uuid.NewString(), ExternalID: "sub_1", UserID: u.ID, BundleID: &b1, Status: model.SubscriptionStatusAuthorized}
		if err := repo.Create(ctx, nil, s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		dup := *s
		dup.ID = uuid.NewString()
		if err := repo.Create(ctx, nil, &dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		if err := repo.UpdateStatus(ctx, nil, s.ID, model.SubscriptionStatusCancelled); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		got, err := repo.FindByExternalID(ctx, nil, "sub_1")
		if err != nil || got.Status != model.SubscriptionStatusCancelled || got.Origin != model.OriginProvider {
			t.Fatalf("unexpected row %+v (%v)", got, err)
		}
		if _, err := repo.FindAuthorizedByUserAndBundle(ctx, nil, u.ID, "b1"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("cancelled subscription must not count as authorized, got %v", err)
		}
	})

	t.Run("should expire only stale synthesized legacy rows", func(t *testing.T) {
		u := setup(t)
		now := time.Now().UTC()
		stale := now.AddDate(0, 0, -31)
		fresh := now.AddDate(0, 0, -2)
		rows := []*model.Subscription{
			{ID: uuid.NewString(), ExternalID: model.LegacyPrefix + "p1", UserID: u.ID, BundleID: &b1, Status: model.SubscriptionStatusAuthorized, Origin: model.OriginSynthesizedLegacy, SynthesizedAt: &stale},
			{ID: uuid.NewString(), ExternalID: model.LegacyPrefix + "p2", UserID: u.ID, BundleID: &b1, Status: model.SubscriptionStatusAuthorized, Origin: model.OriginSynthesizedLegacy, SynthesizedAt: &fresh},
			{ID: uuid.NewString(), ExternalID: "sub_real", UserID: u.ID, BundleID: &b1, Status: model.SubscriptionStatusAuthorized, CreatedAt: stale},
		}
		for _, s := range rows {
			if err := repo.Create(ctx, nil, s); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		n, err := repo.ExpireLegacySynthesizedBefore(ctx, nil, now.AddDate(0, 0, -30))
		if err != nil || n != 1 {
			t.Fatalf("expected 1 expired row, got %d (%v)", n, err)
		}
		list, err := repo.ListByUser(ctx, nil, u.ID)
		if err != nil || len(list) != 3 {
			t.Fatalf("expected 3 rows, got %d (%v)", len(list), err)
		}
		for _, s := range list {
			want := model.SubscriptionStatusAuthorized
			if s.ExternalID == model.LegacyPrefix+"p1" {
				want = model.SubscriptionStatusCancelled
			}
			if s.Status != want {
				t.Errorf("%s: expected %s, got %s", s.ExternalID, want, s.Status)
			}
		}
	})
}
