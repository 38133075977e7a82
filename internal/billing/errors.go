package billing

import (
	"errors"
	"fmt"

	"token_ledger/internal/store"
)

var (
	ErrInsufficientFunds      = errors.New("billing: insufficient funds")
	ErrConcurrentModification = errors.New("billing: concurrent modification, retry")
	ErrDuplicateTicket        = errors.New("billing: ticket already purchased")
	ErrLedgerIntegrity        = errors.New("billing: ledger integrity violation")
	ErrWalletFrozen           = fmt.Errorf("billing: wallet frozen pending review: %w", ErrLedgerIntegrity)

	ErrInvalidAmount    = errors.New("billing: amount must be positive")
	ErrSelfTransfer     = errors.New("billing: cannot transfer to the same wallet")
	ErrUnknownKind      = errors.New("billing: unknown or disallowed entry kind")
	ErrMissingWallet    = errors.New("billing: wallet id required")
	ErrMissingEvent     = errors.New("billing: event id required")
	ErrTransferNotFound = errors.New("billing: transfer not found")
	ErrNotRefundable    = errors.New("billing: transfer cannot be refunded")
	ErrAlreadyRefunded  = errors.New("billing: transfer already refunded")
)

// InsufficientFundsError carries what a "top up" prompt needs.
type InsufficientFundsError struct {
	WalletID  string
	Required  int64
	Current   int64
	Shortfall int64
}

// NewInsufficientFunds builds the error for a wallet holding current tokens
// when required were needed.
func NewInsufficientFunds(walletID string, required, current int64) *InsufficientFundsError {
	return &InsufficientFundsError{
		WalletID:  walletID,
		Required:  required,
		Current:   current,
		Shortfall: required - current,
	}
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("billing: insufficient funds in wallet %s: required %d, current %d, shortfall %d",
		e.WalletID, e.Required, e.Current, e.Shortfall)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// FromStore converts store errors into the billing taxonomy.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrLockConflict) {
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	}
	return err
}
