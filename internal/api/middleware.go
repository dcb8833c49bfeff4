package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/punchamoorthee/creditledger/internal/idempotency"
)

// IdempotencyMiddleware guards mutating endpoints. It reads the payload,
// consults the coordinator, and either replays a cached response, rejects a
// conflicting retry, or admits the request and records its outcome.
// Requests without an idempotencyKey pass straight through: deduplication is
// opt-in, not a safety net.
type IdempotencyMiddleware struct {
	coord  *idempotency.Coordinator
	logger *slog.Logger
}

func NewIdempotencyMiddleware(coord *idempotency.Coordinator, logger *slog.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{coord: coord, logger: logger}
}

func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Stream read error", r.Method, r.URL.Path)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var envelope struct {
			UserID         int64  `json:"userId"`
			IdempotencyKey string `json:"idempotencyKey"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			// Malformed body; the handler produces the 400.
			next.ServeHTTP(w, r)
			return
		}
		if envelope.IdempotencyKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if envelope.UserID == 0 {
			respondError(w, http.StatusBadRequest, "userId required", r.Method, r.URL.Path)
			return
		}

		ticket, cached, err := m.coord.Admit(r.Context(),
			envelope.UserID, r.Method, r.URL.Path, envelope.IdempotencyKey, body)
		if err != nil {
			switch {
			case errors.Is(err, idempotency.ErrMismatch):
				respondError(w, http.StatusConflict, "Idempotency key reused with different payload", r.Method, r.URL.Path)
			case errors.Is(err, idempotency.ErrConflict):
				respondError(w, http.StatusConflict, "Request already in progress, please retry later", r.Method, r.URL.Path)
			default:
				m.logger.Error("idempotency admission failed", "error", err, "key", envelope.IdempotencyKey)
				respondFailed(w, r.Method, r.URL.Path)
			}
			return
		}

		if cached != nil {
			httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(cached.Status)).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Hit", "true")
			w.WriteHeader(cached.Status)
			w.Write(cached.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if err := m.coord.Finalize(r.Context(), ticket, rec.status, rec.body.Bytes()); err != nil {
			m.logger.Error("failed to finalize idempotency record",
				"error", err, "key", envelope.IdempotencyKey, "status", rec.status)
		}
	})
}

// responseRecorder tees the handler's response so the coordinator can cache
// it for replay.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
