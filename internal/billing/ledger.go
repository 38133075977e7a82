package billing

import (
	"context"
	"time"

	"token_ledger/internal/domain"
	"token_ledger/internal/store"
)

// Ledger answers read-side questions about a wallet's history.
type Ledger struct {
	store store.Store
	hold  time.Duration
	now   func() time.Time
}

// NewLedger builds the read side. hold is the chargeback protection window:
// earnings younger than hold are reported as held rather than available.
func NewLedger(st store.Store, hold time.Duration) *Ledger {
	return &Ledger{store: st, hold: hold, now: time.Now}
}

// Wallet returns the current wallet row (a zero wallet if never used).
func (l *Ledger) Wallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	if walletID == "" {
		return nil, ErrMissingWallet
	}
	return l.store.GetWallet(ctx, walletID)
}

// History lists a wallet's entries, newest first, with the total match count.
func (l *Ledger) History(ctx context.Context, walletID string, f store.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	if walletID == "" {
		return nil, 0, ErrMissingWallet
	}
	for _, k := range f.Kinds {
		if !k.Valid() {
			return nil, 0, ErrUnknownKind
		}
	}
	return l.store.ListEntries(ctx, walletID, f)
}

// EarningsSummary is the creator-facing aggregate.
type EarningsSummary struct {
	WalletID       string `json:"wallet_id"`
	TotalEarned    int64  `json:"total_earned"`
	TotalPaidOut   int64  `json:"total_paid_out"`
	TotalRefunded  int64  `json:"total_refunded"`
	Balance        int64  `json:"balance"`
	Held           int64  `json:"held"`
	Available      int64  `json:"available"`
	LifetimeEarned int64  `json:"lifetime_earned"`
	LifetimeSpent  int64  `json:"lifetime_spent"`
}

func (l *Ledger) EarningsSummary(ctx context.Context, walletID string) (*EarningsSummary, error) {
	w, err := l.Wallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	totals, err := l.store.Totals(ctx, walletID)
	if err != nil {
		return nil, err
	}
	sum := &EarningsSummary{
		WalletID:       walletID,
		TotalEarned:    totals.Earned,
		TotalPaidOut:   totals.PaidOut,
		TotalRefunded:  totals.Refunded,
		Balance:        w.Balance,
		Available:      w.Balance,
		LifetimeEarned: w.LifetimeEarned,
		LifetimeSpent:  w.LifetimeSpent,
	}
	if l.hold > 0 {
		recent, err := l.store.EarnedSince(ctx, walletID, l.now().Add(-l.hold))
		if err != nil {
			return nil, err
		}
		sum.Held = min(recent, w.Balance)
		sum.Available = w.Balance - sum.Held
	}
	return sum, nil
}
