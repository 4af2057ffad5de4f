package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponKind string

const (
	CouponPercentage CouponKind = "percentage"
	CouponFixed      CouponKind = "fixed"
)

// Coupon is a discount code. Purchases reference it weakly; the engine never
// recomputes a transaction amount from it.
type Coupon struct {
	ID         string
	Code       string
	Kind       CouponKind
	Value      decimal.Decimal
	ExpiresAt  *time.Time
	UsageLimit *int
	UsedCount  int
}
