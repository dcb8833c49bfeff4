package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/creditledger/internal/models"
)

type walletKey struct {
	userID      int64
	assetTypeID int64
}

// Memory is an in-memory Store and IdempotencyStore. A single mutex covers
// every operation, so transactions are serialized exactly the way the
// treasury row lock serializes them in Postgres. Mutations inside
// ExecLedgerTx are staged and only applied when the closure returns nil.
type Memory struct {
	mu           sync.Mutex
	accounts     map[int64]models.Account
	assetTypes   map[int64]models.AssetType
	wallets      map[walletKey]models.Wallet
	entries      []models.AuditEntry
	idem         map[models.IdempotencyScope]models.IdempotencyRecord
	nextWalletID int64
	nextEntryID  int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[int64]models.Account),
		assetTypes:   make(map[int64]models.AssetType),
		wallets:      make(map[walletKey]models.Wallet),
		idem:         make(map[models.IdempotencyScope]models.IdempotencyRecord),
		nextWalletID: 1,
		nextEntryID:  1,
	}
}

// SeedAccount registers an account. Intended for tests and demos.
func (m *Memory) SeedAccount(a models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

// SeedAssetType registers an asset type.
func (m *Memory) SeedAssetType(at models.AssetType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assetTypes[at.ID] = at
}

// SeedWallet creates a wallet at the given balance.
func (m *Memory) SeedWallet(userID, assetTypeID int64, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := walletKey{userID, assetTypeID}
	m.wallets[k] = models.Wallet{
		ID:          m.nextWalletID,
		UserID:      userID,
		AssetTypeID: assetTypeID,
		Balance:     balance,
	}
	m.nextWalletID++
}

// AuditEntries returns a snapshot of every ledger entry, in insertion order.
func (m *Memory) AuditEntries() []models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (m *Memory) GetAssetType(ctx context.Context, id int64) (*models.AssetType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.assetTypes[id]
	if !ok {
		return nil, ErrAssetTypeNotFound
	}
	return &at, nil
}

func (m *Memory) ListBalances(ctx context.Context, userID int64) ([]models.AssetBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listBalancesLocked(userID), nil
}

func (m *Memory) listBalancesLocked(userID int64) []models.AssetBalance {
	balances := []models.AssetBalance{}
	for k, w := range m.wallets {
		if k.userID != userID {
			continue
		}
		balances = append(balances, models.AssetBalance{
			AssetTypeID:   k.assetTypeID,
			AssetTypeName: m.assetTypes[k.assetTypeID].Name,
			Balance:       w.Balance,
		})
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].AssetTypeID < balances[j].AssetTypeID
	})
	return balances
}

func (m *Memory) ListAssetHistory(ctx context.Context, userID int64) ([]models.AssetHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byAsset := make(map[int64][]models.AuditEntry)
	for _, e := range m.entries {
		if e.UserID == userID {
			byAsset[e.AssetTypeID] = append(byAsset[e.AssetTypeID], e)
		}
	}

	history := []models.AssetHistory{}
	for _, b := range m.listBalancesLocked(userID) {
		entries := byAsset[b.AssetTypeID]
		if entries == nil {
			entries = []models.AuditEntry{}
		}
		sort.Slice(entries, func(i, j int) bool {
			if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
				return entries[i].CreatedAt.After(entries[j].CreatedAt)
			}
			return entries[i].ID > entries[j].ID
		})
		history = append(history, models.AssetHistory{
			AssetTypeID:   b.AssetTypeID,
			AssetTypeName: b.AssetTypeName,
			Balance:       b.Balance,
			History:       entries,
		})
	}
	return history, nil
}

func (m *Memory) ExecLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memLedgerTx{m: m, staged: make(map[walletKey]models.Wallet)}
	if err := fn(tx); err != nil {
		return err
	}

	// Commit: apply staged wallets and assign entry ids.
	for k, w := range tx.staged {
		m.wallets[k] = w
	}
	now := time.Now()
	for _, e := range tx.entries {
		e.ID = m.nextEntryID
		m.nextEntryID++
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		m.entries = append(m.entries, e)
	}
	return nil
}

type memLedgerTx struct {
	m       *Memory
	staged  map[walletKey]models.Wallet
	entries []models.AuditEntry
}

func (t *memLedgerTx) lookup(k walletKey) (models.Wallet, bool) {
	if w, ok := t.staged[k]; ok {
		return w, true
	}
	w, ok := t.m.wallets[k]
	return w, ok
}

func (t *memLedgerTx) LockWallet(ctx context.Context, userID, assetTypeID int64) (*models.Wallet, error) {
	w, ok := t.lookup(walletKey{userID, assetTypeID})
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (t *memLedgerTx) DebitWallet(ctx context.Context, userID, assetTypeID int64, amount decimal.Decimal) (*models.Wallet, error) {
	k := walletKey{userID, assetTypeID}
	w, _ := t.lookup(k)
	w.Balance = w.Balance.Sub(amount)
	t.staged[k] = w
	return &w, nil
}

func (t *memLedgerTx) CreditWallet(ctx context.Context, userID, assetTypeID int64, amount decimal.Decimal) (*models.Wallet, error) {
	k := walletKey{userID, assetTypeID}
	w, ok := t.lookup(k)
	if !ok {
		w = models.Wallet{
			ID:          t.m.nextWalletID,
			UserID:      userID,
			AssetTypeID: assetTypeID,
			Balance:     decimal.Zero,
		}
		t.m.nextWalletID++
	}
	w.Balance = w.Balance.Add(amount)
	t.staged[k] = w
	return &w, nil
}

func (t *memLedgerTx) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	t.entries = append(t.entries, *entry)
	return nil
}

// IdempotencyStore implementation.

func (m *Memory) Get(ctx context.Context, scope models.IdempotencyScope) (*models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.idem[scope]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) Create(ctx context.Context, rec *models.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idem[rec.Scope]; ok {
		return ErrDuplicateIdempotencyKey
	}
	m.idem[rec.Scope] = *rec
	return nil
}

func (m *Memory) Replace(ctx context.Context, rec *models.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idem[rec.Scope] = *rec
	return nil
}

func (m *Memory) ExtendInProgress(ctx context.Context, scope models.IdempotencyScope, observed, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.idem[scope]
	if !ok || rec.Status != models.IdempotencyInProgress || !rec.InProgressUntil.Equal(observed) {
		return ErrStaleRecord
	}
	rec.InProgressUntil = until
	m.idem[scope] = rec
	return nil
}

func (m *Memory) Complete(ctx context.Context, scope models.IdempotencyScope, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.idem[scope]
	if !ok {
		return nil
	}
	rec.Status = models.IdempotencyCompleted
	rec.ResponseStatus = status
	rec.ResponseBody = append([]byte(nil), body...)
	m.idem[scope] = rec
	return nil
}

func (m *Memory) Delete(ctx context.Context, scope models.IdempotencyScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idem, scope)
	return nil
}
