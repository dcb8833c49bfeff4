package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Account is a party to ledger movements. Exactly one account per deployment
// carries IsTreasury=true; it is the counterparty of every transaction and
// never a request originator.
type Account struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsTreasury bool      `json:"isTreasury"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AssetType is a distinct unit of value with its own wallets and balance
// invariant. The bonus asset type is transfer-only and cannot be purchased.
type AssetType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Wallet holds one account's balance in one asset type. Balance is an exact
// decimal and never goes negative; the engine enforces that before any debit.
type Wallet struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	AssetTypeID int64           `json:"assetTypeId"`
	Balance     decimal.Decimal `json:"balance"`
}

// Entry types for the audit ledger.
const (
	EntryCredit = "credit"
	EntryDebit  = "debit"
)

// AuditEntry is one leg of a double-entry movement. Entries are append-only:
// every TransactionID groups exactly one credit and one debit of equal amount
// on opposite accounts.
type AuditEntry struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transactionId"`
	UserID        int64           `json:"userId"`
	AssetTypeID   int64           `json:"assetTypeId"`
	EntryType     string          `json:"entryType"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// TransactionResult is returned by every mutating ledger operation.
type TransactionResult struct {
	Wallet        Wallet `json:"wallet"`
	TransactionID string `json:"transactionId"`
}

// CreditRequest is the payload for /purchase-credits and /spend-credits.
// Amount accepts both JSON numbers and decimal strings and always serializes
// back as a decimal string.
type CreditRequest struct {
	UserID         int64           `json:"userId"`
	Amount         decimal.Decimal `json:"amount"`
	AssetTypeID    int64           `json:"assetTypeId"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// BonusRequest is the payload for /bonus. The asset type is implied.
type BonusRequest struct {
	UserID         int64           `json:"userId"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// AssetBalance is one wallet joined with its asset type name.
type AssetBalance struct {
	AssetTypeID   int64           `json:"assetTypeId"`
	AssetTypeName string          `json:"assetTypeName"`
	Balance       decimal.Decimal `json:"balance"`
}

// BalanceSummary is the GET /balance response payload.
type BalanceSummary struct {
	UserID   int64          `json:"userId"`
	UserName string         `json:"userName"`
	Balances []AssetBalance `json:"balances"`
}

// AssetHistory is one element of the GET /transaction-history response:
// current balance plus the full audit trail for one asset type,
// most recent first.
type AssetHistory struct {
	AssetTypeID   int64           `json:"assetTypeId"`
	AssetTypeName string          `json:"assetTypeName"`
	Balance       decimal.Decimal `json:"balance"`
	History       []AuditEntry    `json:"history"`
}

// Idempotency record lifecycle states.
const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCompleted  = "completed"
)

// IdempotencyScope is the composite unique key of an idempotency record.
type IdempotencyScope struct {
	UserID int64
	Method string
	Path   string
	Key    string
}

// IdempotencyRecord tracks one idempotent attempt. A record past ExpiresAt is
// treated as absent; an in_progress record past InProgressUntil is an
// abandoned attempt that a retry may take over.
type IdempotencyRecord struct {
	Scope           IdempotencyScope
	Status          string
	PayloadHash     string
	InProgressUntil time.Time
	ExpiresAt       time.Time
	ResponseStatus  int
	ResponseBody    json.RawMessage
}

// CachedResponse is a completed attempt's stored response, replayed verbatim.
type CachedResponse struct {
	Status int
	Body   json.RawMessage
}
