package payment

import (
	"context"
	"sort"
	"strings"
	"sync"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/adapter"
)

var _ adapter.TransactionSource = (*MemorySource)(nil)

// MemorySource is an in-memory ledger used in dev mode and tests.
type MemorySource struct {
	mu            sync.Mutex
	payments      []model.Transaction
	subscriptions map[string]model.SubscriptionRecord
	configured    bool

	// Fail, when set, is returned by every listing call.
	Fail error
	// FailEmailSearch, when set, is returned only by subscription searches filtered by payer email.
	FailEmailSearch error
}

func NewMemorySource() *MemorySource {
	return &MemorySource{subscriptions: make(map[string]model.SubscriptionRecord), configured: true}
}

// Unconfigured makes Validate report missing credentials.
func (s *MemorySource) Unconfigured() *MemorySource {
	s.configured = false
	return s
}

func (s *MemorySource) Name() string { return "memory" }

func (s *MemorySource) Validate() error {
	if !s.configured {
		return domain.ErrProviderNotConfigured
	}
	return nil
}

// AddPayment appends or replaces a payment by id.
func (s *MemorySource) AddPayment(t model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.payments {
		if s.payments[i].ID == t.ID {
			s.payments[i] = t
			return
		}
	}
	s.payments = append(s.payments, t)
}

// PutSubscription inserts or replaces a subscription record.
func (s *MemorySource) PutSubscription(r model.SubscriptionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[r.ID] = r
}

func (s *MemorySource) ListRecentPayments(ctx context.Context, limit, offset int) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	sorted := append([]model.Transaction(nil), s.payments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	return page(sorted, limit, offset), nil
}

func (s *MemorySource) ListSubscriptions(ctx context.Context, filter adapter.SubscriptionFilter) ([]model.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	if s.FailEmailSearch != nil && filter.PayerEmail != "" {
		return nil, s.FailEmailSearch
	}
	var out []model.SubscriptionRecord
	for _, r := range s.subscriptions {
		if filter.PayerEmail != "" && !strings.EqualFold(r.PayerEmail, filter.PayerEmail) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *MemorySource) GetSubscription(ctx context.Context, id string) (*model.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.subscriptions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
