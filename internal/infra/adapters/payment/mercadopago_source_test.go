package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-entitlements/internal/config"
	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/ports/adapter"
)

const paymentsPayload = `{
  "results": [
    {
      "id": 1234567890,
      "status": "approved",
      "transaction_amount": 25000.5,
      "description": "Curso Análisis Técnico",
      "date_created": "2026-09-01T10:00:00.000-04:00",
      "metadata": {"user_id": "u1", "course_id": 42, "unrelated": {"x": 1}},
      "payer": {"email": " a@x.com ", "first_name": "Ana", "last_name": "Pérez"},
      "additional_info": {"items": [{"title": "Curso Análisis Técnico - Acceso"}]}
    }
  ]
}`

func newTestSource(t *testing.T, h http.HandlerFunc) *MercadoPagoSource {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewMercadoPagoSource(config.MercadoPagoConfig{AccessToken: "TEST-token", BaseURL: srv.URL, Timeout: time.Second})
}

func TestMercadoPagoSource_ListRecentPayments(t *testing.T) {
	var gotAuth, gotQuery string
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		if r.URL.Path != "/v1/payments/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(paymentsPayload))
	})

	txs, err := src.ListRecentPayments(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer TEST-token" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotQuery != "criteria=desc&limit=100&offset=0&sort=date_created" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	tx := txs[0]
	if tx.ID != "1234567890" || !tx.IsApproved() {
		t.Errorf("unexpected id/status: %s %s", tx.ID, tx.Status)
	}
	if tx.Amount.String() != "25000.5" {
		t.Errorf("unexpected amount %s", tx.Amount)
	}
	if tx.PayerEmail != "a@x.com" {
		t.Errorf("payer email should be trimmed, got %q", tx.PayerEmail)
	}
	if tx.Metadata.UserID != "u1" || tx.Metadata.CourseID != "42" || tx.Metadata.BundleID != "" {
		t.Errorf("unexpected metadata %+v", tx.Metadata)
	}
	if tx.Title() != "Curso Análisis Técnico - Acceso" {
		t.Errorf("item title should win over description, got %q", tx.Title())
	}
	if tx.CreatedAt.Hour() != 14 {
		t.Errorf("expected UTC conversion, got %s", tx.CreatedAt)
	}
}

func TestMercadoPagoSource_Errors(t *testing.T) {
	t.Run("should fail before any call when unconfigured", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
		defer srv.Close()
		src := NewMercadoPagoSource(config.MercadoPagoConfig{BaseURL: srv.URL})

		_, err := src.ListRecentPayments(context.Background(), 10, 0)
		if !errors.Is(err, domain.ErrProviderNotConfigured) {
			t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
		}
		if called {
			t.Error("provider must not be called without credentials")
		}
	})

	t.Run("should surface provider 5xx as unavailable", func(t *testing.T) {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})
		_, err := src.ListSubscriptions(context.Background(), adapter.SubscriptionFilter{PayerEmail: "a@x.com"})
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("should distinguish empty results from failure", func(t *testing.T) {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results": []}`))
		})
		recs, err := src.ListSubscriptions(context.Background(), adapter.SubscriptionFilter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("expected no records, got %d", len(recs))
		}
	})

	t.Run("should map missing subscription to not found", func(t *testing.T) {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		if _, err := src.GetSubscription(context.Background(), "sub_x"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMercadoPagoSource_GetSubscription(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/preapproval/sub_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"sub_1","status":"authorized","payer_email":"a@x.com","external_reference":"{\"bundle_id\":\"b1\"}","reason":"Pack Trader"}`))
	})
	rec, err := src.GetSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != "authorized" || rec.ExternalReference != `{"bundle_id":"b1"}` {
		t.Errorf("unexpected record %+v", rec)
	}
}
