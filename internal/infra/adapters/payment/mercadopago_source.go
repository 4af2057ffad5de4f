// File: internal/infra/adapters/payment/mercadopago_source.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"course-entitlements/internal/config"
	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/adapter"
	"course-entitlements/internal/infra/metrics"
)

var _ adapter.TransactionSource = (*MercadoPagoSource)(nil)

// MercadoPagoSource implements adapter.TransactionSource over the MercadoPago REST API
// (payments search and preapproval endpoints).
type MercadoPagoSource struct {
	accessToken string
	baseURL     string
	client      *http.Client
}

func NewMercadoPagoSource(cfg config.MercadoPagoConfig) *MercadoPagoSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.mercadopago.com"
	}
	return &MercadoPagoSource{
		accessToken: strings.TrimSpace(cfg.AccessToken),
		baseURL:     base,
		client:      &http.Client{Timeout: timeout},
	}
}

func (m *MercadoPagoSource) Name() string { return "mercadopago" }

func (m *MercadoPagoSource) Validate() error {
	if m.accessToken == "" {
		return domain.ErrProviderNotConfigured
	}
	return nil
}

// ListRecentPayments calls GET /v1/payments/search sorted by creation date, newest first.
func (m *MercadoPagoSource) ListRecentPayments(ctx context.Context, limit, offset int) ([]model.Transaction, error) {
	q := url.Values{}
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out struct {
		Results []mpPayment `json:"results"`
	}
	if err := m.get(ctx, "list_payments", "/v1/payments/search", q, &out); err != nil {
		return nil, err
	}
	txs := make([]model.Transaction, 0, len(out.Results))
	for _, p := range out.Results {
		txs = append(txs, p.toModel())
	}
	return txs, nil
}

// ListSubscriptions calls GET /preapproval/search.
func (m *MercadoPagoSource) ListSubscriptions(ctx context.Context, filter adapter.SubscriptionFilter) ([]model.SubscriptionRecord, error) {
	q := url.Values{}
	if filter.PayerEmail != "" {
		q.Set("payer_email", filter.PayerEmail)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	var out struct {
		Results []mpPreapproval `json:"results"`
	}
	if err := m.get(ctx, "list_subscriptions", "/preapproval/search", q, &out); err != nil {
		return nil, err
	}
	recs := make([]model.SubscriptionRecord, 0, len(out.Results))
	for _, p := range out.Results {
		recs = append(recs, p.toModel())
	}
	return recs, nil
}

// GetSubscription calls GET /preapproval/{id}. A 404 maps to domain.ErrNotFound.
func (m *MercadoPagoSource) GetSubscription(ctx context.Context, id string) (*model.SubscriptionRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out mpPreapproval
	if err := m.get(ctx, "get_subscription", "/preapproval/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	rec := out.toModel()
	return &rec, nil
}

func (m *MercadoPagoSource) get(ctx context.Context, op, path string, q url.Values, dst any) (err error) {
	if err := m.Validate(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { metrics.ObserveProviderCall(m.Name(), op, time.Since(start).Seconds(), err) }()

	u := m.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: status %d: %s", domain.ErrProviderUnavailable, op, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", domain.ErrProviderUnavailable, op, err)
	}
	return nil
}

type mpPayment struct {
	ID                json.Number    `json:"id"`
	Status            string         `json:"status"`
	TransactionAmount json.Number    `json:"transaction_amount"`
	Description       string         `json:"description"`
	DateCreated       string         `json:"date_created"`
	Metadata          map[string]any `json:"metadata"`
	Payer             struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"payer"`
	AdditionalInfo struct {
		Items []struct {
			Title string `json:"title"`
		} `json:"items"`
	} `json:"additional_info"`
}

func (p mpPayment) toModel() model.Transaction {
	amount, err := decimal.NewFromString(p.TransactionAmount.String())
	if err != nil {
		amount = decimal.Zero
	}
	t := model.Transaction{
		ID:             p.ID.String(),
		Status:         model.TransactionStatus(strings.ToLower(p.Status)),
		Amount:         amount,
		PayerEmail:     strings.TrimSpace(p.Payer.Email),
		PayerFirstName: p.Payer.FirstName,
		PayerLastName:  p.Payer.LastName,
		Description:    p.Description,
		Metadata:       model.MetadataFromMap(p.Metadata),
		CreatedAt:      parseTime(p.DateCreated),
	}
	if len(p.AdditionalInfo.Items) > 0 {
		t.ItemTitle = p.AdditionalInfo.Items[0].Title
	}
	return t
}

type mpPreapproval struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	PayerEmail        string `json:"payer_email"`
	ExternalReference string `json:"external_reference"`
	Reason            string `json:"reason"`
	DateCreated       string `json:"date_created"`
}

func (p mpPreapproval) toModel() model.SubscriptionRecord {
	return model.SubscriptionRecord{
		ID:                p.ID,
		Status:            p.Status,
		PayerEmail:        strings.TrimSpace(p.PayerEmail),
		ExternalReference: p.ExternalReference,
		Reason:            p.Reason,
		CreatedAt:         parseTime(p.DateCreated),
	}
}

// parseTime accepts the provider's RFC3339 timestamps with millisecond precision.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
