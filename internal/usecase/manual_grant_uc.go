// File: internal/usecase/manual_grant_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/domain/ports/adapter"
	"course-entitlements/internal/domain/ports/repository"
	"course-entitlements/internal/infra/logging"
)

// Compile-time check
var _ ManualGrantUseCase = (*manualGrantUC)(nil)

// NotificationExpiryWarning is the notification log kind of the day-before-expiry email.
const NotificationExpiryWarning = "manual_grant_expiry_warning"

// GrantRequest asks for administrator-issued access to exactly one product.
type GrantRequest struct {
	Email     string `json:"email"`
	CourseID  string `json:"course_id,omitempty"`
	BundleID  string `json:"bundle_id,omitempty"`
	GrantedBy string `json:"-"`
}

// ManualGrantUseCase drives administrator grants through Active -> Notified -> Expired.
type ManualGrantUseCase interface {
	// Sweep sends the one-time expiry warning and cancels grants past their lifetime.
	// It is safe to run any number of times per day.
	Sweep(ctx context.Context, now time.Time) (*model.SweepResult, error)
	// Grant returns the new purchase, or the existing approved one with created=false.
	Grant(ctx context.Context, req GrantRequest) (p *model.Purchase, created bool, err error)
	State(p *model.Purchase, now time.Time) model.ManualGrantState
}

// ManualGrantPolicy holds the lifecycle clock and mail settings.
type ManualGrantPolicy struct {
	NotifyAfterDays int
	ExpireAfterDays int
	LegacyTTLDays   int
	OperatorEmail   string
	RenewURL        string
}

type manualGrantUC struct {
	purchases repository.PurchaseRepository
	users     repository.UserRepository
	catalog   repository.CatalogRepository
	subs      repository.SubscriptionRepository
	notes     repository.NotificationLogRepository
	mailer    adapter.Mailer
	tm        repository.TransactionManager
	policy    ManualGrantPolicy
	log       *zerolog.Logger
	now       func() time.Time
}

func NewManualGrantUseCase(
	purchases repository.PurchaseRepository,
	users repository.UserRepository,
	catalog repository.CatalogRepository,
	subs repository.SubscriptionRepository,
	notes repository.NotificationLogRepository,
	mailer adapter.Mailer,
	tm repository.TransactionManager,
	policy ManualGrantPolicy,
	logger *zerolog.Logger,
) *manualGrantUC {
	if policy.NotifyAfterDays <= 0 {
		policy.NotifyAfterDays = 29
	}
	if policy.ExpireAfterDays <= 0 {
		policy.ExpireAfterDays = 30
	}
	if policy.LegacyTTLDays <= 0 {
		policy.LegacyTTLDays = 30
	}
	return &manualGrantUC{
		purchases: purchases,
		users:     users,
		catalog:   catalog,
		subs:      subs,
		notes:     notes,
		mailer:    mailer,
		tm:        tm,
		policy:    policy,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (u *manualGrantUC) State(p *model.Purchase, now time.Time) model.ManualGrantState {
	return p.GrantState(now, u.policy.NotifyAfterDays, u.policy.ExpireAfterDays)
}

func (u *manualGrantUC) Sweep(ctx context.Context, now time.Time) (*model.SweepResult, error) {
	defer logging.TraceDuration(u.log, "ManualGrantUC.Sweep")()

	res := &model.SweepResult{}
	var errs []error

	// Calendar-day bucket, not a rolling 24h window.
	from := model.DayStart(now).AddDate(0, 0, -u.policy.NotifyAfterDays)
	due, err := u.purchases.ListManualGrantsCreatedBetween(ctx, repository.NoTX, from, from.AddDate(0, 0, 1))
	if err != nil {
		errs = append(errs, fmt.Errorf("list grants to notify: %w", err))
	}
	for _, p := range due {
		sent, err := u.notify(ctx, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sent {
			res.NotifiedCount++
		}
	}

	n, err := u.purchases.CancelManualGrantsCreatedBefore(ctx, repository.NoTX, now.AddDate(0, 0, -u.policy.ExpireAfterDays))
	if err != nil {
		errs = append(errs, fmt.Errorf("expire grants: %w", err))
	}
	res.ExpiredCount = n

	n, err = u.subs.ExpireLegacySynthesizedBefore(ctx, repository.NoTX, now.AddDate(0, 0, -u.policy.LegacyTTLDays))
	if err != nil {
		errs = append(errs, fmt.Errorf("expire legacy subscriptions: %w", err))
	}
	res.LegacyExpiredCount = n

	u.log.Info().
		Int("notified", res.NotifiedCount).
		Int("expired", res.ExpiredCount).
		Int("legacy_expired", res.LegacyExpiredCount).
		Msg("manual grant sweep finished")
	return res, errors.Join(errs...)
}

// notify claims the warning in the notification log first, so a second sweep
// the same day finds the claim and stays silent.
func (u *manualGrantUC) notify(ctx context.Context, p *model.Purchase) (bool, error) {
	var user *model.User
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.notes.Claim(ctx, tx, p.ID, p.UserID, NotificationExpiryWarning); err != nil {
			return err
		}
		var err error
		user, err = u.users.FindByID(ctx, tx, p.UserID)
		return err
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim notification for purchase %s: %w", p.ID, err)
	}

	expires := p.CreatedAt.AddDate(0, 0, u.policy.ExpireAfterDays)
	msg := adapter.Message{
		To:      user.Email,
		Bcc:     u.policy.OperatorEmail,
		Subject: "Your access ends in 24 hours",
		Body:    u.warningBody(user, p, expires),
	}
	if err := u.mailer.Send(ctx, msg); err != nil {
		// Fire-and-forget: the claim stands and the next sweep will not retry.
		u.log.Warn().Err(err).Str("purchase_id", p.ID).Msg("expiry warning could not be delivered")
		return false, nil
	}
	u.log.Info().Str("purchase_id", p.ID).Str("user_id", p.UserID).Msg("expiry warning sent")
	return true, nil
}

func (u *manualGrantUC) warningBody(user *model.User, p *model.Purchase, expires time.Time) string {
	name := user.Name
	if name == "" || name == model.PlaceholderUserName {
		name = "Student"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(name))
	fmt.Fprintf(&b, "<p>Your access to <strong>%s</strong> ends on %s.</p>",
		html.EscapeString(p.ProductName), expires.Format("2006-01-02"))
	if u.policy.RenewURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Subscribe now</a> to keep learning without interruption.</p>`, html.EscapeString(u.policy.RenewURL))
	}
	b.WriteString("<p>If you already subscribed, please ignore this message.</p>")
	return b.String()
}

func (u *manualGrantUC) Grant(ctx context.Context, req GrantRequest) (*model.Purchase, bool, error) {
	defer logging.TraceDuration(u.log, "ManualGrantUC.Grant")()

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		return nil, false, domain.ErrInvalidArgument
	}
	if (req.CourseID == "") == (req.BundleID == "") {
		return nil, false, domain.ErrProductRequired
	}

	var out *model.Purchase
	var created bool
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		user, err := u.users.FindByEmail(ctx, tx, req.Email)
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}

		var title string
		var price decimal.Decimal
		if req.CourseID != "" {
			c, err := u.catalog.FindCourseByID(ctx, tx, req.CourseID)
			if err != nil {
				return fmt.Errorf("find course: %w", err)
			}
			title, price = c.Title, c.Price
		} else {
			b, err := u.catalog.FindBundleByID(ctx, tx, req.BundleID)
			if err != nil {
				return fmt.Errorf("find bundle: %w", err)
			}
			title, price = b.Title, b.Price
		}

		courseID, bundleID := model.StrPtr(req.CourseID), model.StrPtr(req.BundleID)
		existing, err := u.purchases.FindApprovedByUserAndProduct(ctx, tx, user.ID, courseID, bundleID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := u.now()
		p := &model.Purchase{
			ID:            uuid.NewString(),
			TransactionID: model.ManualGrantPrefix + ulid.Make().String(),
			UserID:        user.ID,
			CourseID:      courseID,
			BundleID:      bundleID,
			Amount:        price,
			Status:        model.PurchaseStatusApproved,
			ProductName:   title,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := u.purchases.Create(ctx, tx, p); err != nil {
			return err
		}
		out, created = p, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	ev := u.log.Info().Str("purchase_id", out.ID).Str("granted_by", req.GrantedBy)
	if created {
		ev.Msg("manual access granted")
	} else {
		ev.Msg("user already had access, no grant created")
	}
	return out, created, nil
}
