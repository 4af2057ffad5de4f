package config

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		cfg, err := Parse([]byte("database:\n  url: postgres://x\nredis:\n  url: localhost:6379\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Reconcile.DuplicateWindow != 60*time.Second {
			t.Errorf("expected 60s duplicate window, got %s", cfg.Reconcile.DuplicateWindow)
		}
		if cfg.Reconcile.TitleMatch != "substring" {
			t.Errorf("expected substring matcher, got %q", cfg.Reconcile.TitleMatch)
		}
		if cfg.ManualGrant.NotifyAfterDays != 29 || cfg.ManualGrant.ExpireAfterDays != 30 {
			t.Errorf("unexpected manual grant clock: %+v", cfg.ManualGrant)
		}
		if cfg.Legacy.TTLDays != 30 {
			t.Errorf("expected legacy ttl 30, got %d", cfg.Legacy.TTLDays)
		}
		if cfg.Payment.MercadoPago.BaseURL != "https://api.mercadopago.com" {
			t.Errorf("unexpected base url %q", cfg.Payment.MercadoPago.BaseURL)
		}
	})

	t.Run("should not require a provider token", func(t *testing.T) {
		cfg, err := Parse([]byte("database:\n  url: postgres://x\nredis:\n  url: localhost:6379\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Payment.MercadoPago.AccessToken != "" {
			t.Error("expected empty token")
		}
	})

	t.Run("should reject missing database url", func(t *testing.T) {
		if _, err := Parse([]byte("redis:\n  url: localhost:6379\n")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("should reject unknown title match strategy", func(t *testing.T) {
		_, err := Parse([]byte("database:\n  url: x\nredis:\n  url: y\nreconcile:\n  title_match: fuzzy\n"))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("should reject notify after expiry", func(t *testing.T) {
		_, err := Parse([]byte("database:\n  url: x\nredis:\n  url: y\nmanual_grant:\n  notify_after_days: 30\n  expire_after_days: 30\n"))
		if err == nil {
			t.Fatal("expected error")
		}
	})
}
