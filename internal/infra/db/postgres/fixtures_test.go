//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"course-entitlements/internal/domain/model"
)

func seedUser(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := model.NewUser("", email, "Ana", "Pérez")
	if err != nil {
		t.Fatalf("model.NewUser() failed: %v", err)
	}
	if err := NewUserRepo(testPool).Create(context.Background(), nil, u); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	return u
}

func seedCourse(t *testing.T, id, title string, price int64) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO courses (id, title, price) VALUES ($1, $2, $3::numeric)`, id, title, decimal.NewFromInt(price).String())
	if err != nil {
		t.Fatalf("failed to save course: %v", err)
	}
}

func seedBundle(t *testing.T, id, title string, courseIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := testPool.Exec(ctx, `INSERT INTO bundles (id, title, price) VALUES ($1, $2, 100)`, id, title); err != nil {
		t.Fatalf("failed to save bundle: %v", err)
	}
	for i, c := range courseIDs {
		if _, err := testPool.Exec(ctx, `INSERT INTO bundle_courses (bundle_id, course_id, position) VALUES ($1, $2, $3)`, id, c, i); err != nil {
			t.Fatalf("failed to link course %s: %v", c, err)
		}
	}
}

func newPurchase(userID, txID string, courseID, bundleID *string, createdAt time.Time) *model.Purchase {
	return &model.Purchase{
		ID:            uuid.NewString(),
		TransactionID: txID,
		UserID:        userID,
		CourseID:      courseID,
		BundleID:      bundleID,
		Amount:        decimal.RequireFromString("25000.50"),
		Status:        model.PurchaseStatusApproved,
		ProductName:   "Curso",
		CreatedAt:     createdAt,
	}
}
