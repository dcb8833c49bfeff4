package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/creditledger/internal/models"
)

func TestExecLedgerTx_CommitAppliesStagedWrites(t *testing.T) {
	m := NewMemory()
	m.SeedWallet(1, 1, decimal.NewFromInt(100))

	err := m.ExecLedgerTx(context.Background(), func(tx LedgerTx) error {
		if _, err := tx.DebitWallet(context.Background(), 1, 1, decimal.NewFromInt(40)); err != nil {
			return err
		}
		if _, err := tx.CreditWallet(context.Background(), 2, 1, decimal.NewFromInt(40)); err != nil {
			return err
		}
		return tx.InsertAuditEntry(context.Background(), &models.AuditEntry{
			UserID:      2,
			AssetTypeID: 1,
			EntryType:   models.EntryCredit,
			Amount:      decimal.NewFromInt(40),
		})
	})
	require.NoError(t, err)

	balances, err := m.ListBalances(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, balances[0].Balance.Equal(decimal.NewFromInt(60)))

	balances, err = m.ListBalances(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, balances[0].Balance.Equal(decimal.NewFromInt(40)))

	entries := m.AuditEntries()
	require.Len(t, entries, 1)
	require.NotZero(t, entries[0].ID)
	require.False(t, entries[0].CreatedAt.IsZero())
}

func TestExecLedgerTx_ErrorDiscardsStagedWrites(t *testing.T) {
	m := NewMemory()
	m.SeedWallet(1, 1, decimal.NewFromInt(100))

	boom := errors.New("boom")
	err := m.ExecLedgerTx(context.Background(), func(tx LedgerTx) error {
		if _, err := tx.DebitWallet(context.Background(), 1, 1, decimal.NewFromInt(40)); err != nil {
			return err
		}
		if _, err := tx.CreditWallet(context.Background(), 2, 1, decimal.NewFromInt(40)); err != nil {
			return err
		}
		if err := tx.InsertAuditEntry(context.Background(), &models.AuditEntry{UserID: 2, AssetTypeID: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Nothing staged inside the closure may survive the rollback.
	balances, err := m.ListBalances(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, balances[0].Balance.Equal(decimal.NewFromInt(100)))

	balances, err = m.ListBalances(context.Background(), 2)
	require.NoError(t, err)
	require.Empty(t, balances)

	require.Empty(t, m.AuditEntries())
}

func TestExecLedgerTx_StagedReadsSeeOwnWrites(t *testing.T) {
	m := NewMemory()
	m.SeedWallet(1, 1, decimal.NewFromInt(100))

	err := m.ExecLedgerTx(context.Background(), func(tx LedgerTx) error {
		if _, err := tx.DebitWallet(context.Background(), 1, 1, decimal.NewFromInt(30)); err != nil {
			return err
		}
		w, err := tx.LockWallet(context.Background(), 1, 1)
		if err != nil {
			return err
		}
		require.True(t, w.Balance.Equal(decimal.NewFromInt(70)))
		return nil
	})
	require.NoError(t, err)
}

func TestLockWallet_AbsentReturnsNil(t *testing.T) {
	m := NewMemory()

	err := m.ExecLedgerTx(context.Background(), func(tx LedgerTx) error {
		w, err := tx.LockWallet(context.Background(), 9, 9)
		require.NoError(t, err)
		require.Nil(t, w)
		return nil
	})
	require.NoError(t, err)
}

func TestCreate_DuplicateScope(t *testing.T) {
	m := NewMemory()
	rec := &models.IdempotencyRecord{
		Scope:  models.IdempotencyScope{UserID: 1, Method: "POST", Path: "/purchase-credits", Key: "k"},
		Status: models.IdempotencyInProgress,
	}
	require.NoError(t, m.Create(context.Background(), rec))
	require.ErrorIs(t, m.Create(context.Background(), rec), ErrDuplicateIdempotencyKey)
}

func TestExtendInProgress_StaleObservation(t *testing.T) {
	m := NewMemory()
	scope := models.IdempotencyScope{UserID: 1, Method: "POST", Path: "/bonus", Key: "k"}
	deadline := time.Now().Truncate(time.Second)
	require.NoError(t, m.Create(context.Background(), &models.IdempotencyRecord{
		Scope:           scope,
		Status:          models.IdempotencyInProgress,
		InProgressUntil: deadline,
	}))

	err := m.ExtendInProgress(context.Background(), scope, deadline.Add(time.Second), deadline.Add(time.Minute))
	require.ErrorIs(t, err, ErrStaleRecord)

	require.NoError(t, m.ExtendInProgress(context.Background(), scope, deadline, deadline.Add(time.Minute)))
}
