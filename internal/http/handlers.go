package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/ledger"
	"moneyflow/internal/log"
	"moneyflow/internal/middleware/trace"
)

// ledgerFunc handles one ledger route for an authenticated user.
type ledgerFunc func(w http.ResponseWriter, r *http.Request, userID string) error

// ledgerHandler resolves the user id and turns returned errors into JSON
// error responses.
func (s *Server) ledgerHandler(fn ledgerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFromRequest(r, s.userIDHeader)
		if userID == "" {
			s.writeError(w, r, ledger.ErrUnauthorized)
			return
		}

		err := fn(w, r, userID)
		if !isReadOnly(r) {
			s.appMetrics.recordWrite(err)
		}
		if err != nil {
			s.writeError(w, r, err)
		}
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeInternal)
	}
	ErrorResponse(status, publicMessage(status, err), trace.GetRequestID(r.Context())).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.ready == nil {
		checks["store"] = "not_checked"
	} else if err := s.ready(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()

	writes := atomic.LoadInt64(&s.appMetrics.ledgerWrites)
	rejected := atomic.LoadInt64(&s.appMetrics.rejectedCalls)
	uptime := time.Since(s.appMetrics.uptime)

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_response_time_avg_microseconds Average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_response_time_avg_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP ledger_writes_total Successful state-changing ledger calls\n")
	fmt.Fprintf(w, "# TYPE ledger_writes_total counter\n")
	fmt.Fprintf(w, "ledger_writes_total %d\n\n", writes)

	fmt.Fprintf(w, "# HELP ledger_rejections_total Ledger calls refused by a ledger rule\n")
	fmt.Fprintf(w, "# TYPE ledger_rejections_total counter\n")
	fmt.Fprintf(w, "ledger_rejections_total %d\n\n", rejected)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", uptime.Seconds())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request, userID string) error {
	l, err := s.ledger.Open(r.Context(), userID)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(l).Write(w)
	return nil
}

func (s *Server) handleGetAllInfo(w http.ResponseWriter, r *http.Request, userID string) error {
	l, err := s.ledger.GetAllInfo(r.Context(), userID)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(l).Write(w)
	return nil
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, userID string) error {
	report, err := s.ledger.Audit(r.Context(), userID)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(struct {
		ledger.AuditReport
		Consistent bool `json:"consistent"`
	}{report, report.Consistent()}).Write(w)
	return nil
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request, userID string) error {
	var req ClearRequest
	if err := DecodeJSON(w, r, &req, true); err != nil {
		return err
	}
	l, err := s.ledger.ClearAll(r.Context(), userID, req.ClearTotals)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(l).Write(w)
	return nil
}

func (s *Server) handleNewTransaction(w http.ResponseWriter, r *http.Request, userID string) error {
	var req TransactionRequest
	if err := DecodeJSON(w, r, &req, false); err != nil {
		return err
	}
	tx, err := req.ToTransaction(time.Now())
	if err != nil {
		return err
	}
	res, err := s.ledger.NewTransaction(r.Context(), userID, tx)
	if err != nil {
		return err
	}
	NewJSONResponse().Status(http.StatusCreated).Data(res).Write(w)
	return nil
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, userID string) error {
	id, err := PathID(r)
	if err != nil {
		return err
	}
	var req TransactionUpdateRequest
	if err := DecodeJSON(w, r, &req, false); err != nil {
		return err
	}
	upd, err := req.ToUpdate()
	if err != nil {
		return err
	}
	res, err := s.ledger.UpdateTransaction(r.Context(), userID, id, upd)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(res).Write(w)
	return nil
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, userID string) error {
	id, err := PathID(r)
	if err != nil {
		return err
	}
	res, err := s.ledger.DeleteTransaction(r.Context(), userID, id)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(res).Write(w)
	return nil
}

// scalarHandler adapts one of the scalar setters.
func (s *Server) scalarHandler(set func(ctx context.Context, userID string, value decimal.Decimal) error) ledgerFunc {
	return func(w http.ResponseWriter, r *http.Request, userID string) error {
		var req ValueRequest
		if err := DecodeJSON(w, r, &req, false); err != nil {
			return err
		}
		value, err := req.Amount()
		if err != nil {
			return err
		}
		if err := set(r.Context(), userID, value); err != nil {
			return err
		}
		NewJSONResponse().Status(http.StatusNoContent).Write(w)
		return nil
	}
}

func (s *Server) handleSetEssentials(w http.ResponseWriter, r *http.Request, userID string) error {
	scope, err := ParseScope(r)
	if err != nil {
		return err
	}
	var req EssentialsRequest
	if err := DecodeJSON(w, r, &req, false); err != nil {
		return err
	}
	items, err := req.ToItems()
	if err != nil {
		return err
	}
	res, err := s.ledger.SetEssentials(r.Context(), userID, scope, items)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(res).Write(w)
	return nil
}

func (s *Server) handleAddNewEssential(w http.ResponseWriter, r *http.Request, userID string) error {
	scope, err := ParseScope(r)
	if err != nil {
		return err
	}
	var req EssentialRequest
	if err := DecodeJSON(w, r, &req, false); err != nil {
		return err
	}
	item, err := req.ToItem()
	if err != nil {
		return err
	}
	res, err := s.ledger.AddNewEssential(r.Context(), userID, scope, item)
	if err != nil {
		return err
	}
	NewJSONResponse().Status(http.StatusCreated).Data(res).Write(w)
	return nil
}

func (s *Server) handleSetEssentialChecked(w http.ResponseWriter, r *http.Request, userID string) error {
	scope, err := ParseScope(r)
	if err != nil {
		return err
	}
	id, err := PathID(r)
	if err != nil {
		return err
	}
	var req CheckedRequest
	if err := DecodeJSON(w, r, &req, false); err != nil {
		return err
	}
	if req.Checked == nil {
		return badRequest("checked is required")
	}
	res, err := s.ledger.SetEssentialChecked(r.Context(), userID, scope, id, *req.Checked)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(res).Write(w)
	return nil
}

func (s *Server) handleRemoveEssential(w http.ResponseWriter, r *http.Request, userID string) error {
	scope, err := ParseScope(r)
	if err != nil {
		return err
	}
	id, err := PathID(r)
	if err != nil {
		return err
	}
	res, err := s.ledger.RemoveEssential(r.Context(), userID, scope, id)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(res).Write(w)
	return nil
}
