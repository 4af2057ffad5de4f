package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionApproved  TransactionStatus = "approved"
	TransactionPending   TransactionStatus = "pending"
	TransactionRejected  TransactionStatus = "rejected"
	TransactionRefunded  TransactionStatus = "refunded"
	TransactionCancelled TransactionStatus = "cancelled"
)

// TransactionMetadata holds the checkout metadata keys the engine consumes.
// Any other provider metadata is dropped at the adapter boundary.
type TransactionMetadata struct {
	UserID   string `json:"user_id,omitempty"`
	CourseID string `json:"course_id,omitempty"`
	BundleID string `json:"bundle_id,omitempty"`
	CouponID string `json:"coupon_id,omitempty"`
}

// MetadataFromMap extracts the known keys from an arbitrary provider map.
func MetadataFromMap(m map[string]any) TransactionMetadata {
	get := func(k string) string {
		v, ok := m[k]
		if !ok || v == nil {
			return ""
		}
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t)
		case json.Number:
			return t.String()
		case float64:
			return decimal.NewFromFloat(t).String()
		default:
			return ""
		}
	}
	return TransactionMetadata{
		UserID:   get("user_id"),
		CourseID: get("course_id"),
		BundleID: get("bundle_id"),
		CouponID: get("coupon_id"),
	}
}

// ParseExternalReference decodes a subscription external reference. Non-JSON
// references yield an empty metadata and false.
func ParseExternalReference(ref string) (TransactionMetadata, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || !strings.HasPrefix(ref, "{") {
		return TransactionMetadata{}, false
	}
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(ref))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return TransactionMetadata{}, false
	}
	return MetadataFromMap(raw), true
}

// Transaction is a normalized one-off payment record from the provider ledger.
type Transaction struct {
	ID             string
	Status         TransactionStatus
	Amount         decimal.Decimal
	PayerEmail     string
	PayerFirstName string
	PayerLastName  string
	Description    string
	ItemTitle      string
	Metadata       TransactionMetadata
	CreatedAt      time.Time
}

// Title is the best free-text product name the provider gave us.
func (t Transaction) Title() string {
	if s := strings.TrimSpace(t.ItemTitle); s != "" {
		return s
	}
	return strings.TrimSpace(t.Description)
}

func (t Transaction) IsApproved() bool { return t.Status == TransactionApproved }

// SubscriptionRecord is a normalized recurring subscription (preapproval) from the provider.
type SubscriptionRecord struct {
	ID                string
	Status            string
	PayerEmail        string
	ExternalReference string
	Reason            string
	CreatedAt         time.Time
}
