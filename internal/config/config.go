// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`    // static bearer token for automation
	JWTSecret string `yaml:"jwt_secret"` // HS256 secret for operator tokens
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MercadoPagoConfig struct {
	AccessToken string        `yaml:"access_token"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	PageSize    int           `yaml:"page_size"`
}

type PaymentConfig struct {
	MercadoPago MercadoPagoConfig `yaml:"mercadopago"`
}

type ReconcileConfig struct {
	Interval           time.Duration `yaml:"interval"`
	MaxPages           int           `yaml:"max_pages"` // payment search pages per run
	DuplicateWindow    time.Duration `yaml:"duplicate_window"`
	Concurrency        int           `yaml:"concurrency"`
	TitleMatch         string        `yaml:"title_match"` // substring|exact
	LockPerTransaction bool          `yaml:"lock_per_transaction"`
	LockTTL            time.Duration `yaml:"lock_ttl"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	UserSyncLimit      int           `yaml:"user_sync_limit"` // user-triggered syncs per window
	UserSyncWindow     time.Duration `yaml:"user_sync_window"`
}

type ManualGrantConfig struct {
	NotifyAfterDays int           `yaml:"notify_after_days"`
	ExpireAfterDays int           `yaml:"expire_after_days"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	OperatorEmail   string        `yaml:"operator_email"`
	RenewURL        string        `yaml:"renew_url"`
}

type LegacyConfig struct {
	TTLDays int `yaml:"ttl_days"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Sender   string `yaml:"sender"`
}

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Admin       AdminConfig       `yaml:"admin"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Payment     PaymentConfig     `yaml:"payment"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	ManualGrant ManualGrantConfig `yaml:"manual_grant"`
	Legacy      LegacyConfig      `yaml:"legacy"`
	SMTP        SMTPConfig        `yaml:"smtp"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, fills defaults and validates required keys.
// A missing provider token is not an error here: runs fail individually instead.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw YAML and applies defaults and validation.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	switch cfg.Reconcile.TitleMatch {
	case "substring", "exact":
	default:
		return nil, fmt.Errorf("reconcile.title_match: unknown strategy %q", cfg.Reconcile.TitleMatch)
	}
	if cfg.ManualGrant.NotifyAfterDays >= cfg.ManualGrant.ExpireAfterDays {
		return nil, errors.New("manual_grant.notify_after_days must be lower than expire_after_days")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 8080
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	mp := &cfg.Payment.MercadoPago
	if mp.BaseURL == "" {
		mp.BaseURL = "https://api.mercadopago.com"
	}
	mp.BaseURL = strings.TrimRight(mp.BaseURL, "/")
	if mp.Timeout <= 0 {
		mp.Timeout = 15 * time.Second
	}
	if mp.PageSize <= 0 {
		mp.PageSize = 100
	}

	rc := &cfg.Reconcile
	if rc.Interval <= 0 {
		rc.Interval = time.Hour
	}
	if rc.MaxPages <= 0 {
		rc.MaxPages = 1
	}
	if rc.DuplicateWindow <= 0 {
		rc.DuplicateWindow = 60 * time.Second
	}
	if rc.Concurrency <= 0 {
		rc.Concurrency = 4
	}
	rc.TitleMatch = strings.ToLower(strings.TrimSpace(rc.TitleMatch))
	if rc.TitleMatch == "" {
		rc.TitleMatch = "substring"
	}
	if rc.LockTTL <= 0 {
		rc.LockTTL = 10 * time.Minute
	}
	if rc.CallTimeout <= 0 {
		rc.CallTimeout = 20 * time.Second
	}
	if rc.UserSyncLimit <= 0 {
		rc.UserSyncLimit = 3
	}
	if rc.UserSyncWindow <= 0 {
		rc.UserSyncWindow = 10 * time.Minute
	}

	mg := &cfg.ManualGrant
	if mg.NotifyAfterDays <= 0 {
		mg.NotifyAfterDays = 29
	}
	if mg.ExpireAfterDays <= 0 {
		mg.ExpireAfterDays = 30
	}
	if mg.SweepInterval <= 0 {
		mg.SweepInterval = 6 * time.Hour
	}

	if cfg.Legacy.TTLDays <= 0 {
		cfg.Legacy.TTLDays = 30
	}
	if cfg.SMTP.Port <= 0 {
		cfg.SMTP.Port = 587
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
