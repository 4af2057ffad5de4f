package model

import (
	"strings"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending    SubscriptionStatus = "pending"
	SubscriptionStatusAuthorized SubscriptionStatus = "authorized"
	SubscriptionStatusPaused     SubscriptionStatus = "paused"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
)

// ParseSubscriptionStatus maps a provider status string; unknown values yield false.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	switch SubscriptionStatus(strings.ToLower(strings.TrimSpace(s))) {
	case SubscriptionStatusPending:
		return SubscriptionStatusPending, true
	case SubscriptionStatusAuthorized:
		return SubscriptionStatusAuthorized, true
	case SubscriptionStatusPaused:
		return SubscriptionStatusPaused, true
	case SubscriptionStatusCancelled:
		return SubscriptionStatusCancelled, true
	}
	return "", false
}

// SubscriptionOrigin tells provider-backed subscriptions from ones synthesized
// out of pre-subscription bundle purchases.
type SubscriptionOrigin string

const (
	OriginProvider          SubscriptionOrigin = "provider"
	OriginSynthesizedLegacy SubscriptionOrigin = "synthesized_legacy"
)

// LegacyPrefix prefixes the external id of synthesized legacy subscriptions.
const LegacyPrefix = "LEGACY-"

// Subscription is a recurring entitlement to a bundle. Status is always the
// provider's view for provider-origin rows.
type Subscription struct {
	ID            string
	ExternalID    string // unique
	UserID        string
	BundleID      *string
	Status        SubscriptionStatus
	Origin        SubscriptionOrigin
	SynthesizedAt *time.Time // set for legacy rows; CreatedAt keeps the purchase date
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Subscription) IsLegacy() bool { return s.Origin == OriginSynthesizedLegacy }

func (s *Subscription) GrantsAccess() bool { return s.Status == SubscriptionStatusAuthorized }

// LegacyExternalID is the external id used for the subscription synthesized from purchase p.
func LegacyExternalID(p *Purchase) string {
	return LegacyPrefix + p.ID
}
