package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the HTTP surface. Every mutating endpoint goes through the
// idempotency middleware; reads and operational endpoints do not.
func NewRouter(h *Handler, idem *IdempotencyMiddleware) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	r.Handle("/purchase-credits", idem.Wrap(http.HandlerFunc(h.PurchaseCredits))).Methods("POST")
	r.Handle("/spend-credits", idem.Wrap(http.HandlerFunc(h.SpendCredits))).Methods("POST")
	r.Handle("/bonus", idem.Wrap(http.HandlerFunc(h.Bonus))).Methods("POST")

	r.HandleFunc("/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/transaction-history", h.GetTransactionHistory).Methods("GET")

	return r
}
