package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/infra/logging"
	"course-entitlements/internal/infra/metrics"
	red "course-entitlements/internal/infra/redis"
	"course-entitlements/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const defaultReportWindow = 30 * 24 * time.Hour

type errorBody struct {
	Error string `json:"error"`
}

// Purchase is the wire form of a purchase row.
type Purchase struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	CourseID      *string         `json:"course_id,omitempty"`
	BundleID      *string         `json:"bundle_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	ProductName   string          `json:"product_name"`
	GrantState    string          `json:"grant_state,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Entitlements struct {
	UserID    string   `json:"user_id"`
	CourseIDs []string `json:"course_ids"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrRunInProgress), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrProductRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProviderNotConfigured), errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeRun answers a reconciliation entrypoint. The run log is returned even when the run failed.
func (s *Server) writeRun(w http.ResponseWriter, r *http.Request, res *model.RunResult, err error) {
	metrics.ObserveRun(res, err)
	status := statusFor(err)
	if err != nil && status == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("reconciliation request failed")
	}
	if res == nil {
		msg := "internal error"
		if err != nil && status != http.StatusInternalServerError {
			msg = err.Error()
		}
		if err == nil {
			status = http.StatusInternalServerError
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, status, res)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconcile.ReconcileNow(r.Context(), model.TriggerAdmin)
	s.writeRun(w, r, res, err)
}

func (s *Server) handleHealLegacy(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconcile.HealLegacy(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")))
	s.writeRun(w, r, res, err)
}

func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "user reference is required")
		return
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(r.Context(), red.UserSyncKey(ref), s.syncLimit.Limit, s.syncLimit.Window)
		switch {
		case err != nil:
			// Fail open when the limiter store is down.
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("sync rate limiter unavailable")
		case !ok:
			w.Header().Set("Retry-After", retryAfter(s.syncLimit.Window))
			writeError(w, http.StatusTooManyRequests, "too many sync requests, try again later")
			return
		}
	}
	logging.With(r.Context(), s.log).Info().Str("ref", logging.Redact(ref, s.dev)).Msg("user sync requested")
	res, err := s.reconcile.SyncForUser(r.Context(), ref)
	s.writeRun(w, r, res, err)
}

func (s *Server) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	ids, err := s.entitlements.AccessibleCourses(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, Entitlements{UserID: userID, CourseIDs: ids})
}

func (s *Server) handleHasAccess(w http.ResponseWriter, r *http.Request) {
	ok, err := s.entitlements.HasAccess(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "courseID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"access": ok})
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req usecase.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.GrantedBy = Operator(r.Context())

	p, created, err := s.grants.Grant(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		metrics.IncEntitlementCreated("manual_grant")
		status = http.StatusCreated
	}
	dto := toPurchase(p)
	dto.GrantState = string(s.grants.State(p, s.now()))
	writeJSON(w, status, dto)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.grants.Sweep(r.Context(), s.now())
	metrics.ObserveSweep(res)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("manual grant sweep finished with errors")
		if res == nil {
			writeError(w, http.StatusInternalServerError, "sweep failed")
			return
		}
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	since, err := s.parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.sales.Summary(r.Context(), since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.SetSalesRevenue(sum.GrossAmount)
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSalesList(w http.ResponseWriter, r *http.Request) {
	since, err := s.parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.sales.List(r.Context(), since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []*model.SaleRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// parseSince accepts RFC3339 or a plain date; the default is the last 30 days.
func (s *Server) parseSince(r *http.Request) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get("since"))
	if v == "" {
		return s.now().Add(-defaultReportWindow), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, errors.New("since must be RFC3339 or YYYY-MM-DD")
}

func retryAfter(window time.Duration) string {
	return strconv.Itoa(int(window.Round(time.Second) / time.Second))
}

func toPurchase(p *model.Purchase) Purchase {
	return Purchase{
		ID:            p.ID,
		TransactionID: p.TransactionID,
		UserID:        p.UserID,
		CourseID:      p.CourseID,
		BundleID:      p.BundleID,
		Amount:        p.Amount,
		Status:        string(p.Status),
		ProductName:   p.ProductName,
		CreatedAt:     p.CreatedAt,
	}
}
