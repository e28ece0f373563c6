package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heritagebank/ledgercore/internal/approval"
	"github.com/heritagebank/ledgercore/internal/authgate"
	"github.com/heritagebank/ledgercore/internal/domain"
	"github.com/heritagebank/ledgercore/internal/ledger"
	"github.com/heritagebank/ledgercore/internal/recorder"
	"github.com/heritagebank/ledgercore/internal/store"
	"github.com/heritagebank/ledgercore/internal/workflow"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corebank_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "corebank_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	transfersCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corebank_transfers_committed_total",
		Help: "Transfers that reached the committed state",
	})
)

type Handler struct {
	store     store.Store
	ledger    *ledger.Ledger
	gate      *authgate.Gate
	recorder  *recorder.Recorder
	workflows *workflow.Manager
	approvals *approval.Service
}

func NewHandler(s store.Store, l *ledger.Ledger, g *authgate.Gate, r *recorder.Recorder, wm *workflow.Manager, ap *approval.Service) *Handler {
	return &Handler{store: s, ledger: l, gate: g, recorder: r, workflows: wm, approvals: ap}
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

// respondMapped translates core sentinel errors into distinct HTTP
// responses. Precondition failures stay legible to the end user:
// insufficient funds, restriction, lockout and decision races each get
// their own status and message rather than a generic failure.
func (h *Handler) respondMapped(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		h.respondError(w, http.StatusUnprocessableEntity, "Amount must be positive", method, endpoint)
	case errors.Is(err, domain.ErrMissingRecipientField):
		h.respondError(w, http.StatusUnprocessableEntity, "Missing required recipient field", method, endpoint)
	case errors.Is(err, authgate.ErrInvalidFormat):
		h.respondError(w, http.StatusUnprocessableEntity, "PIN must be exactly 4 digits", method, endpoint)
	case errors.Is(err, workflow.ErrUnknownClass):
		h.respondError(w, http.StatusUnprocessableEntity, "Unknown transfer class", method, endpoint)
	case errors.Is(err, store.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, "Insufficient funds", method, endpoint)
	case errors.Is(err, store.ErrAccountRestricted), errors.Is(err, workflow.ErrAccountBlocked):
		h.respondError(w, http.StatusForbidden, "Account is restricted", method, endpoint)
	case errors.Is(err, authgate.ErrLockedOut):
		h.respondError(w, http.StatusForbidden, "Too many failed PIN attempts", method, endpoint)
	case errors.Is(err, authgate.ErrNoSecretConfigured):
		h.respondError(w, http.StatusPreconditionFailed, "Transaction PIN not set up", method, endpoint)
	case errors.Is(err, store.ErrAccountNotFound):
		h.respondError(w, http.StatusNotFound, "Account not found", method, endpoint)
	case errors.Is(err, store.ErrApprovalNotFound):
		h.respondError(w, http.StatusNotFound, "Approval item not found", method, endpoint)
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		h.respondError(w, http.StatusNotFound, "Transfer not found or expired", method, endpoint)
	case errors.Is(err, store.ErrAlreadyDecided):
		h.respondError(w, http.StatusConflict, "Already processed by another admin", method, endpoint)
	case errors.Is(err, store.ErrDuplicateReference):
		h.respondError(w, http.StatusConflict, "Reference already processed", method, endpoint)
	case errors.Is(err, workflow.ErrInvalidTransition):
		h.respondError(w, http.StatusConflict, "Operation not valid in current state", method, endpoint)
	case errors.Is(err, authgate.ErrChallengeNotFound), errors.Is(err, authgate.ErrChallengeConsumed):
		h.respondError(w, http.StatusConflict, "Authorization ceremony is no longer valid", method, endpoint)
	default:
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}
