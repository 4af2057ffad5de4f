// File: internal/usecase/dedup.go
package usecase

import (
	"sort"
	"strings"
	"time"

	"course-entitlements/internal/domain/model"
)

// DefaultDuplicateWindow is how close two identical sale rows must be to count once.
const DefaultDuplicateWindow = 60 * time.Second

// Deduplicator flags provider double-entries among approved sales: rows sharing
// buyer email, product identity and amount within Window of the first-seen row.
// Flagged rows stay in the result for audit; aggregations skip them.
type Deduplicator struct {
	Window time.Duration
}

func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &Deduplicator{Window: window}
}

type dedupKey struct {
	email   string
	product string
	amount  string
}

// Mark sorts rows by creation time and sets Duplicate on every row that falls
// within the window of an earlier counted row with the same key. A row outside
// the window starts a new anchor for its key.
func (d *Deduplicator) Mark(rows []*model.SaleRow) []*model.SaleRow {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	anchors := make(map[dedupKey]time.Time, len(rows))
	for _, r := range rows {
		k := dedupKey{
			email:   strings.ToLower(strings.TrimSpace(r.UserEmail)),
			product: r.ProductKey,
			amount:  r.Amount.String(),
		}
		if at, ok := anchors[k]; ok && r.CreatedAt.Sub(at) <= d.Window {
			r.Duplicate = true
			continue
		}
		r.Duplicate = false
		anchors[k] = r.CreatedAt
	}
	return rows
}

// Counted returns only the rows that count toward aggregates.
func Counted(rows []*model.SaleRow) []*model.SaleRow {
	out := make([]*model.SaleRow, 0, len(rows))
	for _, r := range rows {
		if !r.Duplicate {
			out = append(out, r)
		}
	}
	return out
}
