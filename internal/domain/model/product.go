package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is a single purchasable piece of content.
type Course struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// BundleItem is a non-course perk attached to a bundle (e.g. a private group link).
type BundleItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Bundle groups courses under its own price. The price is commercial and may
// differ from the sum of member course prices.
type Bundle struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	CourseIDs []string        `json:"course_ids"` // ordered
	Items     []BundleItem    `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProductKind distinguishes the two purchasable product types.
type ProductKind string

const (
	ProductKindCourse ProductKind = "course"
	ProductKindBundle ProductKind = "bundle"
	ProductKindNone   ProductKind = "unlinked"
)
