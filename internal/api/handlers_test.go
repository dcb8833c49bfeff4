package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/creditledger/internal/idempotency"
	"github.com/punchamoorthee/creditledger/internal/models"
	"github.com/punchamoorthee/creditledger/internal/service"
	"github.com/punchamoorthee/creditledger/internal/store"
)

func newTestServer(t *testing.T) (*mux.Router, *store.Memory) {
	t.Helper()

	m := store.NewMemory()
	m.SeedAccount(models.Account{ID: 1, Name: "Treasury", Email: "treasury@test.com", IsTreasury: true})
	m.SeedAccount(models.Account{ID: 2, Name: "userx", Email: "userx@test.com"})
	m.SeedAssetType(models.AssetType{ID: 1, Name: "Gold Coins", IsActive: true})
	m.SeedAssetType(models.AssetType{ID: 3, Name: "Loyalty Points", IsActive: true})
	m.SeedWallet(1, 1, decimal.NewFromInt(1_000_000))
	m.SeedWallet(1, 3, decimal.NewFromInt(1_000_000))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := service.NewEngine(m, 1, 3)
	history := service.NewHistory(m)
	coordinator := idempotency.NewCoordinator(m, 5*time.Minute, 24*time.Hour)
	handler := NewHandler(engine, history, logger)

	return NewRouter(handler, NewIdempotencyMiddleware(coordinator, logger)), m
}

func doRequest(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestPurchaseCredits_Success(t *testing.T) {
	router, m := newTestServer(t)

	rec := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":2,"amount":"500","assetTypeId":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	require.Equal(t, "success", env.Status)

	var result models.TransactionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotEmpty(t, result.TransactionID)
	require.True(t, result.Wallet.Balance.Equal(decimal.NewFromInt(500)))

	require.Len(t, m.AuditEntries(), 2)
}

func TestPurchaseCredits_AmountAsNumber(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":2,"amount":500,"assetTypeId":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPurchaseCredits_MissingFields(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "POST", "/purchase-credits", `{"userId":2}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec)
	require.Equal(t, "error", env.Status)
	require.Contains(t, env.Message, "Missing required fields")
}

func TestPurchaseCredits_MalformedJSON(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "POST", "/purchase-credits", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseCredits_UnknownUser(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":99,"amount":"10","assetTypeId":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "User not found", decodeEnvelope(t, rec).Message)
}

func TestPurchaseCredits_UnknownAsset(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":2,"amount":"10","assetTypeId":42}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Asset type not found", decodeEnvelope(t, rec).Message)
}

func TestPurchaseCredits_BonusAssetRejected(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":2,"amount":"10","assetTypeId":3}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Loyalty points cannot be purchased", decodeEnvelope(t, rec).Message)
}

func TestSpendCredits_InsufficientFunds(t *testing.T) {
	router, m := newTestServer(t)
	m.SeedWallet(2, 1, decimal.NewFromInt(100))

	rec := doRequest(t, router, "POST", "/spend-credits",
		`{"userId":2,"amount":"200","assetTypeId":1}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "Insufficient funds", decodeEnvelope(t, rec).Message)
	require.Empty(t, m.AuditEntries())
}

func TestBonus_Success(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "POST", "/bonus", `{"userId":2,"amount":"25"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var result models.TransactionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, int64(3), result.Wallet.AssetTypeID)
}

func TestIdempotentReplay_SingleMutation(t *testing.T) {
	router, m := newTestServer(t)
	body := `{"userId":2,"amount":"500","assetTypeId":1,"idempotencyKey":"key-1"}`

	first := doRequest(t, router, "POST", "/purchase-credits", body)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, router, "POST", "/purchase-credits", body)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("X-Idempotency-Hit"))

	// Identical response bodies, exactly one set of mutations.
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Len(t, m.AuditEntries(), 2)

	balances, err := m.ListBalances(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.True(t, balances[0].Balance.Equal(decimal.NewFromInt(500)))
}

func TestIdempotencyKey_ReusedWithDifferentPayload(t *testing.T) {
	router, _ := newTestServer(t)

	first := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":2,"amount":"500","assetTypeId":1,"idempotencyKey":"key-1"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":2,"amount":"999","assetTypeId":1,"idempotencyKey":"key-1"}`)
	require.Equal(t, http.StatusConflict, second.Code)
	require.Equal(t, "error", decodeEnvelope(t, second).Status)
}

func TestIdempotencyKey_FailedAttemptDoesNotPoisonKey(t *testing.T) {
	router, m := newTestServer(t)
	// First attempt fails on an unknown asset; the key must stay usable.
	bad := `{"userId":2,"amount":"10","assetTypeId":42,"idempotencyKey":"key-2"}`
	rec := doRequest(t, router, "POST", "/purchase-credits", bad)
	require.Equal(t, http.StatusNotFound, rec.Code)

	retry := doRequest(t, router, "POST", "/purchase-credits", bad)
	require.Equal(t, http.StatusNotFound, retry.Code)
	require.Empty(t, m.AuditEntries())
}

func TestGetBalance(t *testing.T) {
	router, m := newTestServer(t)
	m.SeedWallet(2, 1, decimal.NewFromInt(100))

	rec := doRequest(t, router, "GET", "/balance?userId=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var summary models.BalanceSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	require.Equal(t, "userx", summary.UserName)
	require.Len(t, summary.Balances, 1)
}

func TestGetBalance_MissingUserID(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "GET", "/balance", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBalance_UnknownUser(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "GET", "/balance?userId=99", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTransactionHistory(t *testing.T) {
	router, _ := newTestServer(t)

	purchase := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":2,"amount":"500","assetTypeId":1}`)
	require.Equal(t, http.StatusOK, purchase.Code)

	rec := doRequest(t, router, "GET", "/transaction-history?userId=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var assets []models.AssetHistory
	require.NoError(t, json.Unmarshal(env.Data, &assets))
	require.Len(t, assets, 1)
	require.Len(t, assets[0].History, 1)
	require.Equal(t, "credit", assets[0].History[0].EntryType)
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAmountSerializesAsString(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, "POST", "/purchase-credits",
		`{"userId":2,"amount":"500.25","assetTypeId":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"balance":"500.25"`)
}
