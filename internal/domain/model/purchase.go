package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseStatusApproved  PurchaseStatus = "approved"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
)

// ManualGrantPrefix marks transaction ids issued by an administrator instead of the provider.
const ManualGrantPrefix = "manual_grant_"

// Purchase is a one-off entitlement grant keyed by the provider transaction id.
// At most one Purchase exists per TransactionID.
type Purchase struct {
	ID            string
	TransactionID string // unique idempotency key
	UserID        string
	CourseID      *string
	BundleID      *string
	Amount        decimal.Decimal
	Status        PurchaseStatus
	ProductName   string // snapshot taken at creation; survives product deletion
	CouponID      *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *Purchase) IsManualGrant() bool {
	return strings.HasPrefix(p.TransactionID, ManualGrantPrefix)
}

func (p *Purchase) IsUnlinked() bool {
	return p.CourseID == nil && p.BundleID == nil
}

func (p *Purchase) Kind() ProductKind {
	switch {
	case p.CourseID != nil:
		return ProductKindCourse
	case p.BundleID != nil:
		return ProductKindBundle
	default:
		return ProductKindNone
	}
}

// ProductKey identifies the product for duplicate detection. Unlinked purchases
// fall back to their snapshot name.
func (p *Purchase) ProductKey() string {
	switch {
	case p.CourseID != nil:
		return "course:" + *p.CourseID
	case p.BundleID != nil:
		return "bundle:" + *p.BundleID
	default:
		return "name:" + strings.ToLower(strings.TrimSpace(p.ProductName))
	}
}

// ManualGrantState is the lifecycle position of an administrator grant.
type ManualGrantState string

const (
	ManualGrantActive   ManualGrantState = "active"
	ManualGrantNotified ManualGrantState = "notified"
	ManualGrantExpired  ManualGrantState = "expired"
)

// GrantState derives the lifecycle state of a manual grant at instant now,
// using the same thresholds as the lifecycle sweep. A cancelled grant is always expired.
func (p *Purchase) GrantState(now time.Time, notifyAfterDays, expireAfterDays int) ManualGrantState {
	if p.Status == PurchaseStatusCancelled {
		return ManualGrantExpired
	}
	switch {
	case p.CreatedAt.Before(now.AddDate(0, 0, -expireAfterDays)):
		return ManualGrantExpired
	case !DayStart(p.CreatedAt).After(DayStart(now).AddDate(0, 0, -notifyAfterDays)):
		return ManualGrantNotified
	default:
		return ManualGrantActive
	}
}

// DayStart truncates t to the start of its UTC calendar day.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StrPtr returns nil for an empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrVal dereferences s, returning "" for nil.
func StrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
