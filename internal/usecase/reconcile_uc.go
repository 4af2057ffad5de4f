// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/adapter"
	"course-entitlements/internal/domain/ports/repository"
	"course-entitlements/internal/infra/logging"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase pulls the provider ledger and converges the entitlement tables onto it.
// Every entrypoint returns a RunResult, also when it returns an error.
type ReconcileUseCase interface {
	// ReconcileNow processes the recent payment and subscription pages, then heals legacy bundle buyers.
	ReconcileNow(ctx context.Context, trigger model.Trigger) (*model.RunResult, error)
	// SyncForUser does the same scoped to one user, addressed by id or email.
	SyncForUser(ctx context.Context, ref string) (*model.RunResult, error)
	// HealLegacy synthesizes LEGACY- subscriptions for bundle purchases; userID "" means every user.
	// Bundle purchases created by manual grants (manual_grant_ transaction ids) are never healed.
	HealLegacy(ctx context.Context, userID string) (*model.RunResult, error)
}

// ReconcileOptions tunes provider paging and per-run concurrency.
type ReconcileOptions struct {
	PageSize           int
	MaxPages           int
	Concurrency        int
	CallTimeout        time.Duration
	LockPerTransaction bool
	LockTTL            time.Duration
}

func (o ReconcileOptions) withDefaults() ReconcileOptions {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 1
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 20 * time.Second
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Minute
	}
	return o
}

type reconcileUC struct {
	source    adapter.TransactionSource
	resolver  *EntityResolver
	users     repository.UserRepository
	purchases repository.PurchaseRepository
	subs      repository.SubscriptionRepository
	tm        repository.TransactionManager
	locker    adapter.Locker // optional
	opts      ReconcileOptions
	log       *zerolog.Logger
	now       func() time.Time
}

func NewReconcileUseCase(
	source adapter.TransactionSource,
	resolver *EntityResolver,
	users repository.UserRepository,
	purchases repository.PurchaseRepository,
	subs repository.SubscriptionRepository,
	tm repository.TransactionManager,
	locker adapter.Locker,
	opts ReconcileOptions,
	logger *zerolog.Logger,
) *reconcileUC {
	return &reconcileUC{
		source:    source,
		resolver:  resolver,
		users:     users,
		purchases: purchases,
		subs:      subs,
		tm:        tm,
		locker:    locker,
		opts:      opts.withDefaults(),
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source; used by tests.
func (u *reconcileUC) WithClock(now func() time.Time) *reconcileUC {
	u.now = now
	return u
}

func (u *reconcileUC) ReconcileNow(ctx context.Context, trigger model.Trigger) (*model.RunResult, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.ReconcileNow")()

	res, ctx := u.start(ctx, trigger)
	defer u.finish(ctx, res)

	if err := u.validate(res); err != nil {
		return res, err
	}
	release, err := u.acquire(ctx, "reconcile:"+string(trigger), res)
	if err != nil {
		return res, err
	}
	defer release()

	txs := u.fetchPayments(ctx, res, nil)
	u.processPayments(ctx, res, txs)

	records := u.fetchSubscriptions(ctx, res, adapter.SubscriptionFilter{})
	for _, rec := range records {
		res.Merge(u.processSubscription(ctx, rec))
	}

	// Must follow the transaction pass: it reads the purchases that pass wrote.
	u.healLegacy(ctx, res, "")
	return res, nil
}

func (u *reconcileUC) SyncForUser(ctx context.Context, ref string) (*model.RunResult, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.SyncForUser")()

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrInvalidArgument
	}
	user, err := u.findUser(ctx, ref)
	if err != nil {
		return nil, err
	}

	res, ctx := u.start(logging.WithUserID(ctx, user.ID), model.TriggerUser)
	defer u.finish(ctx, res)

	if err := u.validate(res); err != nil {
		return res, err
	}
	release, err := u.acquire(ctx, "reconcile:user:"+user.ID, res)
	if err != nil {
		return res, err
	}
	defer release()

	owned := func(t model.Transaction) bool {
		return t.Metadata.UserID == user.ID || (t.PayerEmail != "" && strings.EqualFold(t.PayerEmail, user.Email))
	}
	txs := u.fetchPayments(ctx, res, owned)
	u.processPayments(ctx, res, txs)

	seen := map[string]struct{}{}
	for _, rec := range u.userSubscriptions(ctx, res, user) {
		seen[rec.ID] = struct{}{}
		res.Merge(u.processSubscription(ctx, rec))
	}
	u.refreshKnownSubscriptions(ctx, res, user.ID, seen)

	u.healLegacy(ctx, res, user.ID)
	return res, nil
}

// HealLegacy runs legacy healing alone. Manual-grant bundle purchases are excluded.
func (u *reconcileUC) HealLegacy(ctx context.Context, userID string) (*model.RunResult, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.HealLegacy")()

	res, ctx := u.start(ctx, model.TriggerAdmin)
	defer u.finish(ctx, res)

	release, err := u.acquire(ctx, "reconcile:legacy", res)
	if err != nil {
		return res, err
	}
	defer release()

	u.healLegacy(ctx, res, userID)
	return res, nil
}

// -----------------------------
// Run plumbing
// -----------------------------

func (u *reconcileUC) start(ctx context.Context, trigger model.Trigger) (*model.RunResult, context.Context) {
	res := model.NewRunResult(ulid.Make().String(), trigger, u.now())
	ctx = logging.WithRunID(ctx, res.RunID)
	ctx = logging.WithTrigger(ctx, string(trigger))
	return res, ctx
}

func (u *reconcileUC) finish(ctx context.Context, res *model.RunResult) {
	res.FinishedAt = u.now()
	l := logging.With(ctx, u.log)
	for _, e := range res.Log {
		if e.Outcome == model.OutcomeFail {
			l.Warn().Str("ref", e.Ref).Msg(e.Message)
		}
	}
	l.Info().
		Int("created", res.CreatedCount).
		Int("success", res.Count(model.OutcomeSuccess)).
		Int("skip", res.Count(model.OutcomeSkip)).
		Int("warn", res.Count(model.OutcomeWarn)).
		Int("fail", res.Count(model.OutcomeFail)).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("reconciliation run finished")
}

// validate fails the whole run before any provider call when credentials are missing.
func (u *reconcileUC) validate(res *model.RunResult) error {
	if err := u.source.Validate(); err != nil {
		res.Add(model.OutcomeFail, "", "payment provider %s is not configured: %v", u.source.Name(), err)
		return err
	}
	return nil
}

// acquire takes the per-trigger run lock. A held lock rejects the run; an
// unreachable lock store only downgrades to an unlocked run, since writes stay idempotent.
func (u *reconcileUC) acquire(ctx context.Context, key string, res *model.RunResult) (func(), error) {
	if u.locker == nil {
		return func() {}, nil
	}
	token, err := u.locker.TryLock(ctx, key, u.opts.LockTTL)
	switch {
	case err == nil:
		return func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				u.log.Warn().Err(err).Str("key", key).Msg("failed to release run lock")
			}
		}, nil
	case errors.Is(err, domain.ErrLockNotAcquired):
		res.Add(model.OutcomeSkip, "", "another run holds %s", key)
		return nil, domain.ErrRunInProgress
	default:
		res.Add(model.OutcomeWarn, "", "run lock unavailable, continuing without it: %v", err)
		return func() {}, nil
	}
}

func (u *reconcileUC) findUser(ctx context.Context, ref string) (*model.User, error) {
	if strings.Contains(ref, "@") {
		return u.users.FindByEmail(ctx, repository.NoTX, ref)
	}
	return u.users.FindByID(ctx, repository.NoTX, ref)
}

// -----------------------------
// Provider reads
// -----------------------------

// fetchPayments reads up to MaxPages pages. A failed page ends paging with a
// fail entry so "no data" and "provider down" stay distinguishable.
func (u *reconcileUC) fetchPayments(ctx context.Context, res *model.RunResult, keep func(model.Transaction) bool) []model.Transaction {
	var out []model.Transaction
	for page := 0; page < u.opts.MaxPages; page++ {
		cctx, cancel := context.WithTimeout(ctx, u.opts.CallTimeout)
		batch, err := u.source.ListRecentPayments(cctx, u.opts.PageSize, page*u.opts.PageSize)
		cancel()
		if err != nil {
			res.Add(model.OutcomeFail, "", "payment search page %d failed: %v", page+1, err)
			break
		}
		for _, t := range batch {
			if keep == nil || keep(t) {
				out = append(out, t)
			}
		}
		if len(batch) < u.opts.PageSize {
			break
		}
	}
	return out
}

func (u *reconcileUC) fetchSubscriptions(ctx context.Context, res *model.RunResult, filter adapter.SubscriptionFilter) []model.SubscriptionRecord {
	var out []model.SubscriptionRecord
	for page := 0; page < u.opts.MaxPages; page++ {
		filter.Limit, filter.Offset = u.opts.PageSize, page*u.opts.PageSize
		cctx, cancel := context.WithTimeout(ctx, u.opts.CallTimeout)
		batch, err := u.source.ListSubscriptions(cctx, filter)
		cancel()
		if err != nil {
			res.Add(model.OutcomeFail, "", "subscription search page %d failed: %v", page+1, err)
			break
		}
		out = append(out, batch...)
		if len(batch) < u.opts.PageSize {
			break
		}
	}
	return out
}

// userSubscriptions searches by payer email first. When that call fails or
// finds nothing it falls back to the unfiltered listing matched on the
// external reference, which also catches checkouts paid from another email.
func (u *reconcileUC) userSubscriptions(ctx context.Context, res *model.RunResult, user *model.User) []model.SubscriptionRecord {
	cctx, cancel := context.WithTimeout(ctx, u.opts.CallTimeout)
	byEmail, err := u.source.ListSubscriptions(cctx, adapter.SubscriptionFilter{PayerEmail: user.Email, Limit: u.opts.PageSize})
	cancel()
	if err == nil && len(byEmail) > 0 {
		return byEmail
	}
	if err != nil {
		res.Add(model.OutcomeWarn, "", "subscription search by email failed, falling back to full listing: %v", err)
	}

	var out []model.SubscriptionRecord
	for _, rec := range u.fetchSubscriptions(ctx, res, adapter.SubscriptionFilter{}) {
		meta, _ := model.ParseExternalReference(rec.ExternalReference)
		if meta.UserID == user.ID || (rec.PayerEmail != "" && strings.EqualFold(rec.PayerEmail, user.Email)) {
			out = append(out, rec)
		}
	}
	return out
}

// refreshKnownSubscriptions re-reads, one by one, the user's provider
// subscriptions that no search returned, e.g. after the payer changed email.
func (u *reconcileUC) refreshKnownSubscriptions(ctx context.Context, res *model.RunResult, userID string, seen map[string]struct{}) {
	local, err := u.subs.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		res.Add(model.OutcomeFail, "", "could not list local subscriptions: %v", err)
		return
	}
	for _, s := range local {
		if s.Origin != model.OriginProvider {
			continue
		}
		if _, ok := seen[s.ExternalID]; ok {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, u.opts.CallTimeout)
		rec, err := u.source.GetSubscription(cctx, s.ExternalID)
		cancel()
		switch {
		case errors.Is(err, domain.ErrNotFound):
			res.Add(model.OutcomeWarn, s.ExternalID, "subscription is no longer known to the provider")
		case err != nil:
			res.Add(model.OutcomeFail, s.ExternalID, "subscription lookup failed: %v", err)
		default:
			res.Merge(u.processSubscription(ctx, *rec))
		}
	}
}

// -----------------------------
// One-off payments
// -----------------------------

// processPayments runs per-transaction work with bounded concurrency and merges
// the per-transaction logs back in provider order.
func (u *reconcileUC) processPayments(ctx context.Context, res *model.RunResult, txs []model.Transaction) {
	slots := make([]*model.RunResult, len(txs))
	var g errgroup.Group
	g.SetLimit(u.opts.Concurrency)
	for i, t := range txs {
		i, t := i, t
		g.Go(func() error {
			slots[i] = u.processPayment(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	for _, s := range slots {
		if s != nil {
			res.Merge(s)
		}
	}
}

func (u *reconcileUC) processPayment(ctx context.Context, t model.Transaction) *model.RunResult {
	if !t.IsApproved() {
		return nil
	}
	if strings.HasPrefix(t.ID, model.ManualGrantPrefix) {
		out := &model.RunResult{}
		out.Add(model.OutcomeSkip, t.ID, "provider id uses the manual grant prefix")
		return out
	}

	if u.opts.LockPerTransaction && u.locker != nil {
		key := "purchase-tx:" + t.ID
		token, err := u.locker.TryLock(ctx, key, u.opts.LockTTL)
		switch {
		case err == nil:
			defer func() { _ = u.locker.Unlock(context.WithoutCancel(ctx), key, token) }()
		case errors.Is(err, domain.ErrLockNotAcquired):
			out := &model.RunResult{}
			out.Add(model.OutcomeSkip, t.ID, "transaction is being processed by another run")
			return out
		default:
			u.log.Warn().Err(err).Str("transaction_id", t.ID).Msg("per-transaction lock unavailable")
		}
	}

	step, err := u.materializeTx(ctx, t, linkAll)
	if errors.Is(err, domain.ErrReferenceMissing) && t.Metadata.CouponID != "" {
		// The coupon is the weakest reference; drop it before giving up the product link.
		step, err = u.materializeTx(ctx, t, linkProductOnly)
		if err == nil {
			step.Add(model.OutcomeWarn, t.ID, "coupon %s was deleted during reconciliation, recorded without it", t.Metadata.CouponID)
		}
	}
	if errors.Is(err, domain.ErrReferenceMissing) {
		// The product vanished between lookup and insert; keep the sale, drop the link.
		step, err = u.materializeTx(ctx, t, linkNone)
		if err == nil {
			step.Add(model.OutcomeWarn, t.ID, "product was deleted during reconciliation, recorded without a link")
		}
	}
	if err != nil {
		out := &model.RunResult{}
		out.Add(model.OutcomeFail, t.ID, "could not materialize transaction: %v", err)
		return out
	}
	return step
}

// linkMode narrows which foreign keys a new purchase carries after a
// reference went missing on insert.
type linkMode int

const (
	linkAll linkMode = iota
	linkProductOnly
	linkNone
)

// materializeTx runs the check-then-create sequence in one database transaction.
// Log lines are only kept when the transaction commits.
func (u *reconcileUC) materializeTx(ctx context.Context, t model.Transaction, mode linkMode) (*model.RunResult, error) {
	var step *model.RunResult
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		step = &model.RunResult{}
		return u.materialize(ctx, tx, t, mode, step)
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

func (u *reconcileUC) materialize(ctx context.Context, tx repository.Tx, t model.Transaction, mode linkMode, step *model.RunResult) error {
	existing, err := u.purchases.FindByTransactionID(ctx, tx, t.ID)
	switch {
	case err == nil:
		return u.repair(ctx, tx, t, existing, mode == linkNone, step)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("find purchase: %w", err)
	}

	r, err := u.resolver.Resolve(ctx, tx, t)
	if err != nil {
		return err
	}
	for _, w := range r.Warnings {
		step.Add(model.OutcomeWarn, t.ID, "%s", w)
	}
	if r.User == nil {
		step.Add(model.OutcomeWarn, t.ID, "no user resolved: no valid metadata user id and no payer email")
		return nil
	}
	if r.UserCreated {
		step.Add(model.OutcomeSuccess, t.ID, "created user %s for payer", r.User.ID)
	}

	switch mode {
	case linkProductOnly:
		r.Coupon = nil
	case linkNone:
		r.Course, r.Bundle, r.Coupon = nil, nil, nil
	}
	if !r.Linked() && !t.Amount.IsPositive() {
		step.Add(model.OutcomeWarn, t.ID, "no product matched %q and amount %s is not positive, nothing recorded", t.Title(), t.Amount)
		return nil
	}

	created := t.CreatedAt
	if created.IsZero() {
		created = u.now()
	}
	p := &model.Purchase{
		ID:            uuid.NewString(),
		TransactionID: t.ID,
		UserID:        r.User.ID,
		CourseID:      r.CourseID(),
		BundleID:      r.BundleID(),
		Amount:        t.Amount,
		Status:        model.PurchaseStatusApproved,
		ProductName:   r.SnapshotName,
		CouponID:      r.CouponID(),
		CreatedAt:     created,
	}
	switch err := u.purchases.Create(ctx, tx, p); {
	case errors.Is(err, domain.ErrAlreadyExists):
		step.Add(model.OutcomeSkip, t.ID, "purchase was recorded concurrently by another run")
		return nil
	case err != nil:
		return err
	}

	step.Created(string(p.Kind()))
	if p.IsUnlinked() {
		step.Add(model.OutcomeWarn, t.ID, "recorded unlinked purchase %q for %s, needs manual linking", p.ProductName, p.Amount)
	} else {
		step.Add(model.OutcomeSuccess, t.ID, "created %s purchase %q", p.Kind(), p.ProductName)
	}
	return nil
}

// repair backfills a missing snapshot and relinks unlinked rows. It never creates.
func (u *reconcileUC) repair(ctx context.Context, tx repository.Tx, t model.Transaction, p *model.Purchase, noRelink bool, step *model.RunResult) error {
	missingName := strings.TrimSpace(p.ProductName) == ""
	if !p.IsUnlinked() && !missingName {
		step.Add(model.OutcomeSkip, t.ID, "purchase already recorded")
		return nil
	}

	courseID, bundleID, name := p.CourseID, p.BundleID, p.ProductName
	var actions []string

	if p.IsUnlinked() && !noRelink {
		r, err := u.resolver.ResolveProduct(ctx, tx, t)
		if err != nil {
			return err
		}
		if r.Linked() {
			courseID, bundleID, name = r.CourseID(), r.BundleID(), r.SnapshotName
			actions = append(actions, "relinked to "+r.SnapshotName)
		} else if missingName {
			name = r.SnapshotName
		}
	} else if missingName {
		title, err := u.resolver.ProductName(ctx, tx, p.CourseID, p.BundleID)
		if err != nil {
			return err
		}
		if title == "" {
			title = t.Title()
		}
		if title == "" {
			title = "Payment " + t.ID
		}
		name = title
	}
	if missingName && name != "" {
		actions = append(actions, "backfilled product name")
	}

	if len(actions) == 0 {
		step.Add(model.OutcomeSkip, t.ID, "purchase already recorded, still unlinked")
		return nil
	}
	if err := u.purchases.UpdateLink(ctx, tx, p.ID, courseID, bundleID, name); err != nil {
		return err
	}
	step.Add(model.OutcomeSuccess, t.ID, "repaired purchase: %s", strings.Join(actions, ", "))
	return nil
}

// -----------------------------
// Subscriptions
// -----------------------------

// processSubscription mirrors the provider status onto the local row, creating it on first sight.
func (u *reconcileUC) processSubscription(ctx context.Context, rec model.SubscriptionRecord) *model.RunResult {
	out := &model.RunResult{}
	status, ok := model.ParseSubscriptionStatus(rec.Status)
	if !ok {
		out.Add(model.OutcomeWarn, rec.ID, "unknown subscription status %q", rec.Status)
		return out
	}

	var step *model.RunResult
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		step = &model.RunResult{}
		return u.materializeSubscription(ctx, tx, rec, status, step)
	})
	if err != nil {
		out.Add(model.OutcomeFail, rec.ID, "could not reconcile subscription: %v", err)
		return out
	}
	return step
}

func (u *reconcileUC) materializeSubscription(ctx context.Context, tx repository.Tx, rec model.SubscriptionRecord, status model.SubscriptionStatus, step *model.RunResult) error {
	existing, err := u.subs.FindByExternalID(ctx, tx, rec.ID)
	switch {
	case err == nil:
		if existing.Status == status {
			step.Add(model.OutcomeSkip, rec.ID, "subscription unchanged (%s)", status)
			return nil
		}
		if err := u.subs.UpdateStatus(ctx, tx, existing.ID, status); err != nil {
			return err
		}
		step.Add(model.OutcomeSuccess, rec.ID, "subscription status %s -> %s", existing.Status, status)
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("find subscription: %w", err)
	}

	br, err := u.resolver.ResolveSubscriptionBundle(ctx, tx, rec)
	if err != nil {
		return err
	}
	for _, w := range br.Warnings {
		step.Add(model.OutcomeWarn, rec.ID, "%s", w)
	}
	if br.Bundle == nil {
		step.Add(model.OutcomeWarn, rec.ID, "no bundle resolved from reference or reason %q", rec.Reason)
		return nil
	}

	// Bundle first: an unresolvable subscription must not leave a new user behind.
	meta, _ := model.ParseExternalReference(rec.ExternalReference)
	ur, err := u.resolver.ResolveUser(ctx, tx, model.Transaction{ID: rec.ID, PayerEmail: rec.PayerEmail, Metadata: meta})
	if err != nil {
		return err
	}
	for _, w := range ur.Warnings {
		step.Add(model.OutcomeWarn, rec.ID, "%s", w)
	}
	if ur.User == nil {
		step.Add(model.OutcomeWarn, rec.ID, "no user resolved for subscription")
		return nil
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = u.now()
	}
	s := &model.Subscription{
		ID:         uuid.NewString(),
		ExternalID: rec.ID,
		UserID:     ur.User.ID,
		BundleID:   br.BundleID(),
		Status:     status,
		Origin:     model.OriginProvider,
		CreatedAt:  created,
	}
	switch err := u.subs.Create(ctx, tx, s); {
	case errors.Is(err, domain.ErrAlreadyExists):
		step.Add(model.OutcomeSkip, rec.ID, "subscription was recorded concurrently by another run")
		return nil
	case err != nil:
		return err
	}
	step.Created("subscription")
	step.Add(model.OutcomeSuccess, rec.ID, "created %s subscription to %s", status, br.Bundle.Title)
	return nil
}

// -----------------------------
// Legacy healing
// -----------------------------

// healLegacy gives every approved bundle purchase without an authorized
// subscription to that bundle a synthesized LEGACY-<purchaseId> subscription.
// Manual grants are excluded: their access ends with the grant.
func (u *reconcileUC) healLegacy(ctx context.Context, res *model.RunResult, userID string) {
	purchases, err := u.purchases.ListApprovedBundlePurchases(ctx, repository.NoTX, userID)
	if err != nil {
		res.Add(model.OutcomeFail, "", "legacy healing could not list bundle purchases: %v", err)
		return
	}
	for _, p := range purchases {
		if p.IsManualGrant() || p.BundleID == nil {
			continue
		}
		var step *model.RunResult
		err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
			step = &model.RunResult{}
			return u.healOne(ctx, tx, p, step)
		})
		if err != nil {
			res.Add(model.OutcomeFail, p.ID, "legacy healing failed: %v", err)
			continue
		}
		res.Merge(step)
	}
}

func (u *reconcileUC) healOne(ctx context.Context, tx repository.Tx, p *model.Purchase, step *model.RunResult) error {
	_, err := u.subs.FindAuthorizedByUserAndBundle(ctx, tx, p.UserID, *p.BundleID)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	extID := model.LegacyExternalID(p)
	if prev, err := u.subs.FindByExternalID(ctx, tx, extID); err == nil {
		// Synthesized once already and since expired; a new one would extend access for free.
		step.Add(model.OutcomeSkip, p.ID, "legacy subscription %s already exists (%s)", extID, prev.Status)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	now := u.now()
	s := &model.Subscription{
		ID:            uuid.NewString(),
		ExternalID:    extID,
		UserID:        p.UserID,
		BundleID:      p.BundleID,
		Status:        model.SubscriptionStatusAuthorized,
		Origin:        model.OriginSynthesizedLegacy,
		SynthesizedAt: &now,
		CreatedAt:     p.CreatedAt,
	}
	switch err := u.subs.Create(ctx, tx, s); {
	case errors.Is(err, domain.ErrAlreadyExists):
		step.Add(model.OutcomeSkip, p.ID, "legacy subscription created concurrently")
		return nil
	case err != nil:
		return err
	}
	step.Created("legacy")
	step.Add(model.OutcomeSuccess, p.ID, "synthesized legacy subscription %s", extID)
	return nil
}
