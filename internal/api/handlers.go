package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/creditledger/internal/models"
	"github.com/punchamoorthee/creditledger/internal/service"
	"github.com/punchamoorthee/creditledger/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	engine  *service.Engine
	history *service.History
	logger  *slog.Logger
}

func NewHandler(engine *service.Engine, history *service.History, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, history: history, logger: logger}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, r.Method, "/health")
}

func (h *Handler) PurchaseCredits(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/purchase-credits"))
	defer timer.ObserveDuration()

	var req models.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/purchase-credits")
		return
	}
	if req.UserID == 0 || req.Amount.IsZero() || req.AssetTypeID == 0 {
		respondError(w, http.StatusBadRequest, "Missing required fields: userId, amount, assetTypeId", "POST", "/purchase-credits")
		return
	}

	result, err := h.engine.Purchase(r.Context(), req.UserID, req.Amount, req.AssetTypeID)
	if err != nil {
		h.respondEngineError(w, err, "POST", "/purchase-credits")
		return
	}
	respondSuccess(w, http.StatusOK, result, "POST", "/purchase-credits")
}

func (h *Handler) SpendCredits(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/spend-credits"))
	defer timer.ObserveDuration()

	var req models.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/spend-credits")
		return
	}
	if req.UserID == 0 || req.Amount.IsZero() || req.AssetTypeID == 0 {
		respondError(w, http.StatusBadRequest, "Missing required fields: userId, amount, assetTypeId", "POST", "/spend-credits")
		return
	}

	result, err := h.engine.Spend(r.Context(), req.UserID, req.Amount, req.AssetTypeID)
	if err != nil {
		h.respondEngineError(w, err, "POST", "/spend-credits")
		return
	}
	respondSuccess(w, http.StatusOK, result, "POST", "/spend-credits")
}

func (h *Handler) Bonus(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/bonus"))
	defer timer.ObserveDuration()

	var req models.BonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/bonus")
		return
	}
	if req.UserID == 0 || req.Amount.IsZero() {
		respondError(w, http.StatusBadRequest, "Missing required fields: userId, amount", "POST", "/bonus")
		return
	}

	result, err := h.engine.Bonus(r.Context(), req.UserID, req.Amount)
	if err != nil {
		h.respondEngineError(w, err, "POST", "/bonus")
		return
	}
	respondSuccess(w, http.StatusOK, result, "POST", "/bonus")
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Missing or invalid userId parameter", "GET", "/balance")
		return
	}

	summary, err := h.history.GetBalance(r.Context(), userID)
	if err != nil {
		h.respondEngineError(w, err, "GET", "/balance")
		return
	}
	respondSuccess(w, http.StatusOK, summary, "GET", "/balance")
}

func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Missing or invalid userId parameter", "GET", "/transaction-history")
		return
	}

	history, err := h.history.GetHistory(r.Context(), userID)
	if err != nil {
		h.respondEngineError(w, err, "GET", "/transaction-history")
		return
	}
	respondSuccess(w, http.StatusOK, history, "GET", "/transaction-history")
}

func parseUserID(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("userId")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// respondEngineError maps the service error taxonomy to status codes.
// Insufficient funds stays a distinct, client-actionable 422 rather than
// being folded into a generic 500.
func (h *Handler) respondEngineError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case service.IsNotFound(err):
		respondError(w, http.StatusNotFound, notFoundMessage(err), method, endpoint)
	case service.IsInvalidArgument(err):
		respondError(w, http.StatusBadRequest, invalidArgumentMessage(err), method, endpoint)
	case errors.Is(err, service.ErrInsufficientFunds):
		respondError(w, http.StatusUnprocessableEntity, "Insufficient funds", method, endpoint)
	default:
		h.logger.Error("ledger operation failed", "error", err, "endpoint", endpoint)
		respondFailed(w, method, endpoint)
	}
}

func notFoundMessage(err error) string {
	if errors.Is(err, store.ErrAssetTypeNotFound) {
		return "Asset type not found"
	}
	return "User not found"
}

func invalidArgumentMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		return "Amount must be greater than 0"
	case errors.Is(err, service.ErrSystemAccount):
		return "System accounts cannot originate transactions"
	case errors.Is(err, service.ErrAssetNotPurchasable):
		return "Loyalty points cannot be purchased"
	case errors.Is(err, service.ErrAssetInactive):
		return "Asset type is not active"
	default:
		return "Invalid request"
	}
}

// Response envelope.

type successEnvelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func respondSuccess(w http.ResponseWriter, code int, data any, method, endpoint string) {
	respondJSON(w, code, successEnvelope{Status: "success", Data: data}, method, endpoint)
}

func respondError(w http.ResponseWriter, code int, message, method, endpoint string) {
	respondJSON(w, code, errorEnvelope{Status: "error", Message: message}, method, endpoint)
}

// respondFailed is the internal-failure response: detail is logged upstream,
// never sent to the caller.
func respondFailed(w http.ResponseWriter, method, endpoint string) {
	respondJSON(w, http.StatusInternalServerError,
		errorEnvelope{Status: "failed", Message: "Internal server error"}, method, endpoint)
}

func respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
