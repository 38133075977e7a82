// Package store defines persistence for wallets, the ledger, calls and
// tickets. All balance mutation goes through Tx so that the row locks, the
// balance update and the ledger append share one transaction.
package store

import (
	"context"
	"errors"
	"time"

	"token_ledger/internal/domain"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrDuplicate    = errors.New("store: duplicate")
	ErrLockConflict = errors.New("store: lock wait timeout or deadlock")
)

// EntryFilter narrows a ledger listing. Zero values mean "no filter".
type EntryFilter struct {
	Kinds  []domain.EntryKind
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// EntryTotals aggregates a wallet's ledger by kind and sign.
type EntryTotals struct {
	Earned   int64 // credits of earning kinds
	PaidOut  int64 // absolute value of payout debits
	Refunded int64 // net refund movement
}

// Tx is a unit of work holding row locks until it commits or rolls back.
type Tx interface {
	// LockWallet creates the wallet if absent and takes an exclusive row lock.
	LockWallet(ctx context.Context, walletID string) (*domain.Wallet, error)
	SaveWallet(ctx context.Context, w *domain.Wallet) error
	AppendEntries(ctx context.Context, entries ...*domain.LedgerEntry) error
	// SumEntries replays the wallet's ledger as seen by this transaction.
	SumEntries(ctx context.Context, walletID string) (int64, error)
	// EarnedSince sums earning credits created at or after since, as seen by
	// this transaction.
	EarnedSince(ctx context.Context, walletID string, since time.Time) (int64, error)
	// TransferEntries returns the entries of one transfer.
	TransferEntries(ctx context.Context, transferID string) ([]domain.LedgerEntry, error)
	// RefundOf returns the refund transfer id recorded for transferID, if any.
	RefundOf(ctx context.Context, transferID string) (string, error)

	LockCall(ctx context.Context, callID string) (*domain.Call, error)
	SaveCall(ctx context.Context, c *domain.Call) error

	HasTicket(ctx context.Context, walletID, eventID string) (bool, error)
	CreateTicket(ctx context.Context, t *domain.Ticket) error
}

// Store is the non-transactional surface plus the transaction entry point.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetWallet(ctx context.Context, walletID string) (*domain.Wallet, error)
	ListWalletIDs(ctx context.Context) ([]string, error)
	SetFrozen(ctx context.Context, walletID string, frozen bool, reason string) error

	ListEntries(ctx context.Context, walletID string, f EntryFilter) ([]domain.LedgerEntry, int64, error)
	SumEntries(ctx context.Context, walletID string) (int64, error)
	Totals(ctx context.Context, walletID string) (EntryTotals, error)
	// EarnedSince sums earning credits created at or after since.
	EarnedSince(ctx context.Context, walletID string, since time.Time) (int64, error)

	CreateCall(ctx context.Context, c *domain.Call) error
	GetCall(ctx context.Context, callID string) (*domain.Call, error)
	ListCallIDs(ctx context.Context, status domain.CallStatus) ([]string, error)
	ListRingingBefore(ctx context.Context, before time.Time) ([]string, error)

	GetTicket(ctx context.Context, walletID, eventID string) (*domain.Ticket, error)
}
