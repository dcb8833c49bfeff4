package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/creditledger/internal/store"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrSystemAccount       = errors.New("system accounts cannot originate transactions")
	ErrAssetNotPurchasable = errors.New("loyalty points cannot be purchased")
	ErrAssetInactive       = errors.New("asset type is not active")

	// ErrInsufficientFunds is a business-rule failure detected inside the
	// transaction; it always forces a rollback.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// InsufficientFundsError reports which wallet fell short.
type InsufficientFundsError struct {
	UserID      int64
	AssetTypeID int64
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for account %d asset %d: available %s, requested %s",
		e.UserID, e.AssetTypeID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsInvalidArgument reports whether err is a precondition violation detected
// before any lock is taken.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSystemAccount) ||
		errors.Is(err, ErrAssetNotPurchasable) ||
		errors.Is(err, ErrAssetInactive)
}

// IsNotFound reports whether err means an unknown account or asset type.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrAccountNotFound) ||
		errors.Is(err, store.ErrAssetTypeNotFound)
}
