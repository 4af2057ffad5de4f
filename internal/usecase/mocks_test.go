//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/adapter"
	"course-entitlements/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User

	CreateFunc      func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc    func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	FindByEmailFunc func(ctx context.Context, tx repository.Tx, email string) (*model.User, error)
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byID: map[string]*model.User{}}
}

func (r *MockUserRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.byID {
		if ex.Email == u.Email {
			return domain.ErrAlreadyExists
		}
	}
	cp := *u
	r.byID[cp.ID] = &cp
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	if r.FindByEmailFunc != nil {
		return r.FindByEmailFunc(ctx, tx, email)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// ---- Mock CatalogRepository ----

type MockCatalogRepo struct {
	mu      sync.Mutex
	courses map[string]*model.Course
	bundles map[string]*model.Bundle
	coupons map[string]*model.Coupon

	// The List hooks stand in for a listing cache that may be stale.
	ListCoursesFunc    func(ctx context.Context, tx repository.Tx) ([]*model.Course, error)
	ListBundlesFunc    func(ctx context.Context, tx repository.Tx) ([]*model.Bundle, error)
	FindCourseByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Course, error)
}

var _ repository.CatalogRepository = (*MockCatalogRepo)(nil)

func NewMockCatalogRepo() *MockCatalogRepo {
	return &MockCatalogRepo{courses: map[string]*model.Course{}, bundles: map[string]*model.Bundle{}, coupons: map[string]*model.Coupon{}}
}

func (r *MockCatalogRepo) AddCourse(id, title, price string) *model.Course {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &model.Course{ID: id, Title: title, Price: amount(price), CreatedAt: time.Now()}
	r.courses[id] = c
	return c
}

func (r *MockCatalogRepo) AddBundle(id, title, price string, courseIDs ...string) *model.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &model.Bundle{ID: id, Title: title, Price: amount(price), CourseIDs: courseIDs, CreatedAt: time.Now()}
	r.bundles[id] = b
	return b
}

func (r *MockCatalogRepo) AddCoupon(id, code string) *model.Coupon {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &model.Coupon{ID: id, Code: code, Kind: model.CouponPercentage, Value: amount("10")}
	r.coupons[id] = c
	return c
}

func (r *MockCatalogRepo) DeleteCourse(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.courses, id)
}

func (r *MockCatalogRepo) DeleteBundle(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bundles, id)
}

func (r *MockCatalogRepo) FindCourseByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	if r.FindCourseByIDFunc != nil {
		return r.FindCourseByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.courses[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockCatalogRepo) FindBundleByID(ctx context.Context, tx repository.Tx, id string) (*model.Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bundles[id]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockCatalogRepo) ListCourses(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	if r.ListCoursesFunc != nil {
		return r.ListCoursesFunc(ctx, tx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Course, 0, len(r.courses))
	for _, c := range r.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockCatalogRepo) ListBundles(ctx context.Context, tx repository.Tx) ([]*model.Bundle, error) {
	if r.ListBundlesFunc != nil {
		return r.ListBundlesFunc(ctx, tx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Bundle, 0, len(r.bundles))
	for _, b := range r.bundles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockCatalogRepo) FindCouponByID(ctx context.Context, tx repository.Tx, id string) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coupons[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

// ---- Mock PurchaseRepository ----

// MockPurchaseRepo enforces the unique transaction id like the real table does.
type MockPurchaseRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Purchase // by id
	// emails lets ListApprovedSince join buyer emails.
	emails func(userID string) string

	CreateFunc            func(ctx context.Context, tx repository.Tx, p *model.Purchase) error
	ListApprovedSinceFunc func(ctx context.Context, tx repository.Tx, since time.Time) ([]*model.SaleRow, error)
}

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func NewMockPurchaseRepo() *MockPurchaseRepo {
	return &MockPurchaseRepo{rows: map[string]*model.Purchase{}, emails: func(string) string { return "" }}
}

// Put stores p as-is, bypassing Create hooks.
func (r *MockPurchaseRepo) Put(p *model.Purchase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.rows[cp.ID] = &cp
}

func (r *MockPurchaseRepo) All() []*model.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Purchase, 0, len(r.rows))
	for _, p := range r.rows {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out
}

func (r *MockPurchaseRepo) Create(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.rows {
		if ex.TransactionID == p.TransactionID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	r.rows[cp.ID] = &cp
	return nil
}

func (r *MockPurchaseRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPurchaseRepo) UpdateLink(ctx context.Context, tx repository.Tx, id string, courseID, bundleID *string, productName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.CourseID, p.BundleID, p.ProductName = courseID, bundleID, productName
	return nil
}

func (r *MockPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	return r.filter(func(p *model.Purchase) bool { return p.UserID == userID }), nil
}

func (r *MockPurchaseRepo) ListApprovedBundlePurchases(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	return r.filter(func(p *model.Purchase) bool {
		return p.Status == model.PurchaseStatusApproved && p.BundleID != nil && (userID == "" || p.UserID == userID)
	}), nil
}

func (r *MockPurchaseRepo) FindApprovedByUserAndProduct(ctx context.Context, tx repository.Tx, userID string, courseID, bundleID *string) (*model.Purchase, error) {
	if courseID == nil && bundleID == nil {
		return nil, domain.ErrProductRequired
	}
	found := r.filter(func(p *model.Purchase) bool {
		return p.Status == model.PurchaseStatusApproved && p.UserID == userID &&
			model.StrVal(p.CourseID) == model.StrVal(courseID) && model.StrVal(p.BundleID) == model.StrVal(bundleID)
	})
	if len(found) == 0 {
		return nil, domain.ErrNotFound
	}
	return found[0], nil
}

func (r *MockPurchaseRepo) ListManualGrantsCreatedBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Purchase, error) {
	return r.filter(func(p *model.Purchase) bool {
		return p.IsManualGrant() && p.Status == model.PurchaseStatusApproved &&
			!p.CreatedAt.Before(from) && p.CreatedAt.Before(to)
	}), nil
}

func (r *MockPurchaseRepo) CancelManualGrantsCreatedBefore(ctx context.Context, tx repository.Tx, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.rows {
		if p.IsManualGrant() && p.Status == model.PurchaseStatusApproved && p.CreatedAt.Before(before) {
			p.Status = model.PurchaseStatusCancelled
			n++
		}
	}
	return n, nil
}

func (r *MockPurchaseRepo) ListApprovedSince(ctx context.Context, tx repository.Tx, since time.Time) ([]*model.SaleRow, error) {
	if r.ListApprovedSinceFunc != nil {
		return r.ListApprovedSinceFunc(ctx, tx, since)
	}
	var out []*model.SaleRow
	for _, p := range r.filter(func(p *model.Purchase) bool {
		return p.Status == model.PurchaseStatusApproved && !p.CreatedAt.Before(since)
	}) {
		out = append(out, model.NewSaleRow(p, r.emails(p.UserID)))
	}
	return out, nil
}

func (r *MockPurchaseRepo) filter(keep func(p *model.Purchase) bool) []*model.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Purchase
	for _, p := range r.rows {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Subscription // by id
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{rows: map[string]*model.Subscription{}}
}

func (r *MockSubscriptionRepo) Put(s *model.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows[cp.ID] = &cp
}

func (r *MockSubscriptionRepo) All() []*model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Subscription, 0, len(r.rows))
	for _, s := range r.rows {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

func (r *MockSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.rows {
		if ex.ExternalID == s.ExternalID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *s
	r.rows[cp.ID] = &cp
	return nil
}

func (r *MockSubscriptionRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.ExternalID == externalID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = status
	return nil
}

func (r *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	var out []*model.Subscription
	for _, s := range r.All() {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MockSubscriptionRepo) FindAuthorizedByUserAndBundle(ctx context.Context, tx repository.Tx, userID, bundleID string) (*model.Subscription, error) {
	for _, s := range r.All() {
		if s.UserID == userID && model.StrVal(s.BundleID) == bundleID && s.GrantsAccess() {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) ExpireLegacySynthesizedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.rows {
		if s.IsLegacy() && s.GrantsAccess() && s.SynthesizedAt != nil && s.SynthesizedAt.Before(cutoff) {
			s.Status = model.SubscriptionStatusCancelled
			n++
		}
	}
	return n, nil
}

// ---- Mock NotificationLogRepository ----

type MockNotificationLogRepo struct {
	mu      sync.Mutex
	claimed map[string]bool

	ClaimFunc func(ctx context.Context, tx repository.Tx, purchaseID, userID, kind string) error
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func NewMockNotificationLogRepo() *MockNotificationLogRepo {
	return &MockNotificationLogRepo{claimed: map[string]bool{}}
}

func (r *MockNotificationLogRepo) Claim(ctx context.Context, tx repository.Tx, purchaseID, userID, kind string) error {
	if r.ClaimFunc != nil {
		return r.ClaimFunc(ctx, tx, purchaseID, userID, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := purchaseID + "|" + kind
	if r.claimed[k] {
		return domain.ErrAlreadyExists
	}
	r.claimed[k] = true
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

// Hold marks key as owned by someone else.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "other"
}

func (l *MockLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return domain.ErrLockNotAcquired
}

// ---- Mock Mailer ----

type MockMailer struct {
	mu   sync.Mutex
	Sent []adapter.Message

	SendFunc func(ctx context.Context, msg adapter.Message) error
}

var _ adapter.Mailer = (*MockMailer)(nil)

func (m *MockMailer) Send(ctx context.Context, msg adapter.Message) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

func (m *MockMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// logContains reports whether any entry with outcome mentions substr.
func logContains(res *model.RunResult, outcome model.Outcome, substr string) bool {
	for _, e := range res.Log {
		if e.Outcome == outcome && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
