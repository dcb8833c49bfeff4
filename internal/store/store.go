// Package store defines the persistence boundary of the ledger. Two
// implementations exist: Postgres (pgx, the production backend) and Memory
// (mutex-serialized, used by tests and local demos).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/creditledger/internal/models"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAssetTypeNotFound = errors.New("asset type not found")

	// ErrDuplicateIdempotencyKey is surfaced when two first-sight attempts
	// race on the composite unique key. The loser is a concurrent duplicate.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already reserved")

	// ErrStaleRecord means a compare-and-swap update observed a record that
	// changed underneath it.
	ErrStaleRecord = errors.New("idempotency record changed concurrently")
)

// LedgerTx is the set of operations available inside one atomic store
// transaction. LockWallet takes the row lock (SELECT ... FOR UPDATE or
// equivalent); lock ordering policy lives in the engine, not here.
type LedgerTx interface {
	// LockWallet locks and returns the wallet row, or (nil, nil) when no
	// wallet exists for the pair.
	LockWallet(ctx context.Context, userID, assetTypeID int64) (*models.Wallet, error)

	// DebitWallet decrements an existing wallet's balance and returns the
	// updated row. Callers must hold the row lock and have validated the
	// balance.
	DebitWallet(ctx context.Context, userID, assetTypeID int64, amount decimal.Decimal) (*models.Wallet, error)

	// CreditWallet increments a wallet's balance, creating the wallet at the
	// given amount if absent (upsert), and returns the updated row.
	CreditWallet(ctx context.Context, userID, assetTypeID int64, amount decimal.Decimal) (*models.Wallet, error)

	// InsertAuditEntry appends one immutable ledger entry.
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// Store is what the engine and the history service run against.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	GetAssetType(ctx context.Context, id int64) (*models.AssetType, error)

	// ListBalances returns all of an account's wallets joined with asset
	// type names, ordered by asset type id.
	ListBalances(ctx context.Context, userID int64) ([]models.AssetBalance, error)

	// ListAssetHistory returns, per asset type the account holds a wallet
	// in, the current balance plus all audit entries most-recent-first
	// (created_at desc, id desc). Assets without entries yield an empty
	// history.
	ListAssetHistory(ctx context.Context, userID int64) ([]models.AssetHistory, error)

	// ExecLedgerTx runs fn inside one atomic transaction. Any non-nil return
	// from fn rolls everything back; no partial writes are ever observable.
	ExecLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// IdempotencyStore persists coordinator state. All mutations rely on the
// store's own row-level atomicity: the unique-constraint-guarded insert and
// compare-and-swap updates keyed by the composite scope.
type IdempotencyStore interface {
	// Get returns the record for the scope, or (nil, nil) when absent.
	// Expiry interpretation is the coordinator's concern.
	Get(ctx context.Context, scope models.IdempotencyScope) (*models.IdempotencyRecord, error)

	// Create inserts a fresh record; the unique constraint turns a racing
	// duplicate into ErrDuplicateIdempotencyKey.
	Create(ctx context.Context, rec *models.IdempotencyRecord) error

	// Replace swaps an expired record for a fresh one in a single
	// transaction.
	Replace(ctx context.Context, rec *models.IdempotencyRecord) error

	// ExtendInProgress moves the in-progress window forward, but only if the
	// record still holds the observed deadline (CAS). A lost race returns
	// ErrStaleRecord.
	ExtendInProgress(ctx context.Context, scope models.IdempotencyScope, observed, until time.Time) error

	// Complete marks the record completed and stores the response for
	// replay.
	Complete(ctx context.Context, scope models.IdempotencyScope, status int, body []byte) error

	// Delete removes the record so the same key/payload can retry cleanly.
	Delete(ctx context.Context, scope models.IdempotencyScope) error
}
