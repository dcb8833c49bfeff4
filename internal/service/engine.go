package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/creditledger/internal/models"
	"github.com/punchamoorthee/creditledger/internal/store"
)

// Engine executes purchase, spend and bonus operations as atomic double-entry
// mutations. Each operation runs inside one store transaction and takes wallet
// row locks in a fixed order: the treasury row for the asset type first, then
// the user row. Because every operation's first acquisition is the treasury
// row, contention serializes on that single row and no lock cycle can form,
// for any mix of operations on the same asset type.
type Engine struct {
	store        store.Store
	treasuryID   int64
	bonusAssetID int64
}

func NewEngine(s store.Store, treasuryID, bonusAssetID int64) *Engine {
	return &Engine{store: s, treasuryID: treasuryID, bonusAssetID: bonusAssetID}
}

// Purchase converts external payment into asset balance: debits the treasury,
// credits the user. The bonus asset type and inactive asset types cannot be
// purchased.
func (e *Engine) Purchase(ctx context.Context, userID int64, amount decimal.Decimal, assetTypeID int64) (*models.TransactionResult, error) {
	if err := e.validateSubject(ctx, userID, amount); err != nil {
		return nil, err
	}
	asset, err := e.store.GetAssetType(ctx, assetTypeID)
	if err != nil {
		return nil, err
	}
	if assetTypeID == e.bonusAssetID {
		return nil, ErrAssetNotPurchasable
	}
	if !asset.IsActive {
		return nil, ErrAssetInactive
	}

	return e.executeTransfer(ctx, userID, assetTypeID, amount, true,
		fmt.Sprintf("Purchase by user %d", userID), "Purchased credits")
}

// Spend is the mirror of Purchase: debits the user, credits the treasury.
func (e *Engine) Spend(ctx context.Context, userID int64, amount decimal.Decimal, assetTypeID int64) (*models.TransactionResult, error) {
	if err := e.validateSubject(ctx, userID, amount); err != nil {
		return nil, err
	}
	if _, err := e.store.GetAssetType(ctx, assetTypeID); err != nil {
		return nil, err
	}
	if assetTypeID == e.bonusAssetID {
		return nil, ErrAssetNotPurchasable
	}

	return e.executeTransfer(ctx, userID, assetTypeID, amount, false,
		fmt.Sprintf("Credits received from user %d", userID), "Spent credits")
}

// Bonus issues loyalty points from the treasury's bonus pool. This is the
// only legitimate source of bonus-asset credit, so the purchasable check is
// skipped; the pool is finite and must be pre-funded.
func (e *Engine) Bonus(ctx context.Context, userID int64, amount decimal.Decimal) (*models.TransactionResult, error) {
	if err := e.validateSubject(ctx, userID, amount); err != nil {
		return nil, err
	}
	if _, err := e.store.GetAssetType(ctx, e.bonusAssetID); err != nil {
		return nil, err
	}

	return e.executeTransfer(ctx, userID, e.bonusAssetID, amount, true,
		fmt.Sprintf("Bonus issued to user %d", userID), "Bonus loyalty points")
}

// validateSubject covers the preconditions shared by every operation. All of
// this happens before a transaction is opened; violations never touch a lock.
func (e *Engine) validateSubject(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	account, err := e.store.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	if account.IsTreasury {
		return ErrSystemAccount
	}
	return nil
}

// executeTransfer moves amount between the treasury and a user wallet inside
// one transaction. fromTreasury selects the direction: true debits the
// treasury and credits the user (Purchase/Bonus), false debits the user and
// credits the treasury (Spend).
func (e *Engine) executeTransfer(ctx context.Context, userID, assetTypeID int64, amount decimal.Decimal, fromTreasury bool, treasuryDesc, userDesc string) (*models.TransactionResult, error) {
	var result *models.TransactionResult

	err := e.store.ExecLedgerTx(ctx, func(tx store.LedgerTx) error {
		// Fixed lock order: treasury wallet first, then the user wallet.
		treasuryWallet, err := tx.LockWallet(ctx, e.treasuryID, assetTypeID)
		if err != nil {
			return err
		}
		userWallet, err := tx.LockWallet(ctx, userID, assetTypeID)
		if err != nil {
			return err
		}

		debited := treasuryWallet
		debitedID := e.treasuryID
		if !fromTreasury {
			debited = userWallet
			debitedID = userID
		}
		if debited == nil || debited.Balance.LessThan(amount) {
			available := decimal.Zero
			if debited != nil {
				available = debited.Balance
			}
			return &InsufficientFundsError{
				UserID:      debitedID,
				AssetTypeID: assetTypeID,
				Available:   available,
				Requested:   amount,
			}
		}

		var wallet *models.Wallet
		if fromTreasury {
			if _, err := tx.DebitWallet(ctx, e.treasuryID, assetTypeID, amount); err != nil {
				return err
			}
			wallet, err = tx.CreditWallet(ctx, userID, assetTypeID, amount)
			if err != nil {
				return err
			}
		} else {
			wallet, err = tx.DebitWallet(ctx, userID, assetTypeID, amount)
			if err != nil {
				return err
			}
			if _, err := tx.CreditWallet(ctx, e.treasuryID, assetTypeID, amount); err != nil {
				return err
			}
		}

		transactionID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("transaction id: %w", err)
		}

		creditUserID, creditDesc := userID, userDesc
		debitUserID, debitDesc := e.treasuryID, treasuryDesc
		if !fromTreasury {
			creditUserID, creditDesc = e.treasuryID, treasuryDesc
			debitUserID, debitDesc = userID, userDesc
		}

		err = tx.InsertAuditEntry(ctx, &models.AuditEntry{
			TransactionID: transactionID.String(),
			UserID:        debitUserID,
			AssetTypeID:   assetTypeID,
			EntryType:     models.EntryDebit,
			Amount:        amount,
			Description:   debitDesc,
		})
		if err != nil {
			return err
		}
		err = tx.InsertAuditEntry(ctx, &models.AuditEntry{
			TransactionID: transactionID.String(),
			UserID:        creditUserID,
			AssetTypeID:   assetTypeID,
			EntryType:     models.EntryCredit,
			Amount:        amount,
			Description:   creditDesc,
		})
		if err != nil {
			return err
		}

		result = &models.TransactionResult{
			Wallet:        *wallet,
			TransactionID: transactionID.String(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
