package service

import (
	"context"

	"github.com/punchamoorthee/creditledger/internal/models"
	"github.com/punchamoorthee/creditledger/internal/store"
)

// History serves read-only balance and audit queries. It never opens a
// transaction and never takes a lock.
type History struct {
	store store.Store
}

func NewHistory(s store.Store) *History {
	return &History{store: s}
}

// GetBalance returns all of a user's wallets joined with asset type names.
func (h *History) GetBalance(ctx context.Context, userID int64) (*models.BalanceSummary, error) {
	account, err := h.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	balances, err := h.store.ListBalances(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.BalanceSummary{
		UserID:   userID,
		UserName: account.Name,
		Balances: balances,
	}, nil
}

// GetHistory returns, per asset type, the current balance plus the full audit
// trail most-recent-first. Assets the user never transacted in come back with
// an empty history, not an error.
func (h *History) GetHistory(ctx context.Context, userID int64) ([]models.AssetHistory, error) {
	if _, err := h.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return h.store.ListAssetHistory(ctx, userID)
}
