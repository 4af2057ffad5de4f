// File: internal/usecase/sales_uc.go
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/repository"
	"course-entitlements/internal/infra/logging"
)

// Compile-time check
var _ SalesUseCase = (*salesUC)(nil)

// SalesSummary aggregates approved provider sales after duplicate suppression.
type SalesSummary struct {
	Since              time.Time       `json:"since"`
	GrossAmount        decimal.Decimal `json:"gross_amount"`
	Count              int             `json:"count"`
	DuplicatesExcluded int             `json:"duplicates_excluded"`
	Unlinked           int             `json:"unlinked"`
	UnlinkedAmount     decimal.Decimal `json:"unlinked_amount"`
}

// SalesUseCase is the revenue read path. Every figure it returns is computed over deduplicated rows.
type SalesUseCase interface {
	Summary(ctx context.Context, since time.Time) (*SalesSummary, error)
	// List returns all rows with the Duplicate flag set, for audit views.
	List(ctx context.Context, since time.Time) ([]*model.SaleRow, error)
}

type salesUC struct {
	purchases repository.PurchaseRepository
	dedup     *Deduplicator
	log       *zerolog.Logger
}

func NewSalesUseCase(purchases repository.PurchaseRepository, dedup *Deduplicator, logger *zerolog.Logger) *salesUC {
	if dedup == nil {
		dedup = NewDeduplicator(DefaultDuplicateWindow)
	}
	return &salesUC{purchases: purchases, dedup: dedup, log: logger}
}

func (u *salesUC) List(ctx context.Context, since time.Time) ([]*model.SaleRow, error) {
	defer logging.TraceDuration(u.log, "SalesUC.List")()
	rows, err := u.purchases.ListApprovedSince(ctx, repository.NoTX, since)
	if err != nil {
		return nil, err
	}
	// Manual grants carry a catalog price but no money changed hands.
	kept := rows[:0]
	for _, r := range rows {
		if strings.HasPrefix(r.TransactionID, model.ManualGrantPrefix) {
			continue
		}
		kept = append(kept, r)
	}
	return u.dedup.Mark(kept), nil
}

func (u *salesUC) Summary(ctx context.Context, since time.Time) (*SalesSummary, error) {
	defer logging.TraceDuration(u.log, "SalesUC.Summary")()
	rows, err := u.List(ctx, since)
	if err != nil {
		return nil, err
	}
	s := &SalesSummary{Since: since, GrossAmount: decimal.Zero, UnlinkedAmount: decimal.Zero}
	for _, r := range rows {
		if r.Duplicate {
			s.DuplicatesExcluded++
			continue
		}
		s.Count++
		s.GrossAmount = s.GrossAmount.Add(r.Amount)
		if r.Unlinked {
			s.Unlinked++
			s.UnlinkedAmount = s.UnlinkedAmount.Add(r.Amount)
		}
	}
	return s, nil
}
