package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleRow is an approved purchase joined with its buyer, as used by revenue reports.
type SaleRow struct {
	PurchaseID    string          `json:"purchase_id"`
	TransactionID string          `json:"transaction_id"`
	UserEmail     string          `json:"user_email"`
	ProductKey    string          `json:"product_key"`
	ProductName   string          `json:"product_name"`
	Amount        decimal.Decimal `json:"amount"`
	Unlinked      bool            `json:"unlinked"`
	CreatedAt     time.Time       `json:"created_at"`
	Duplicate     bool            `json:"duplicate"`
}

// NewSaleRow projects an approved purchase and its buyer email.
func NewSaleRow(p *Purchase, email string) *SaleRow {
	return &SaleRow{
		PurchaseID:    p.ID,
		TransactionID: p.TransactionID,
		UserEmail:     email,
		ProductKey:    p.ProductKey(),
		ProductName:   p.ProductName,
		Amount:        p.Amount,
		Unlinked:      p.IsUnlinked(),
		CreatedAt:     p.CreatedAt,
	}
}
