// Package billing moves tokens between wallets. Every balance mutation in
// the system goes through Engine so that each one is paired with ledger
// entries in the same transaction.
package billing

import (
	"context"
	"errors"
	"sort"
	"time"

	"token_ledger/internal/domain"
	"token_ledger/internal/id"
	"token_ledger/internal/metrics"
	"token_ledger/internal/notify"
	"token_ledger/internal/store"

	"github.com/sirupsen/logrus"
)

// BalanceCache is invalidated after every commit that touches a wallet.
type BalanceCache interface {
	Invalidate(ctx context.Context, walletIDs ...string) error
}

// TransferRequest describes one value movement. An empty To is an external
// debit (payout).
type TransferRequest struct {
	From    string
	To      string
	Amount  int64
	Kind    domain.EntryKind
	Context domain.EntryContext

	// reverses is set by Refund only.
	reverses string
}

// TransferResult is returned on commit.
type TransferResult struct {
	TransferID  string `json:"transfer_id"`
	FromBalance int64  `json:"from_balance"`
	ToBalance   int64  `json:"to_balance"`
}

// Engine is the only writer of wallet balances.
type Engine struct {
	store    store.Store
	cache    BalanceCache
	notifier notify.Notifier
	hold     time.Duration
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithCache(c BalanceCache) Option       { return func(e *Engine) { e.cache = c } }
func WithNotifier(n notify.Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithEarningsHold keeps earnings younger than hold out of payouts.
func WithEarningsHold(hold time.Duration) Option { return func(e *Engine) { e.hold = hold } }

// NewEngine creates an engine over st. Without options it has no cache and
// drops notifications.
func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		notifier: notify.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the underlying store to collaborators that need to share a
// transaction with a transfer.
func (e *Engine) Store() store.Store { return e.store }

func validate(req TransferRequest) error {
	if req.From == "" {
		return ErrMissingWallet
	}
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	if req.From == req.To {
		return ErrSelfTransfer
	}
	if !req.Kind.Valid() {
		return ErrUnknownKind
	}
	switch req.Kind {
	case domain.KindPayout:
		if req.To != "" {
			return ErrUnknownKind
		}
	case domain.KindTokenPurchase:
		// external credits go through Credit
		return ErrUnknownKind
	default:
		if req.To == "" {
			return ErrMissingWallet
		}
	}
	return nil
}

// Transfer debits From and credits To atomically, appending the ledger pair.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	var res *TransferResult
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		res, err = e.TransferInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		err = FromStore(err)
		e.logFailure(req, err)
		return nil, err
	}
	e.Committed(ctx, req, res)
	return res, nil
}

// TransferInTx runs the locked read-check-mutate-append sequence inside the
// caller's transaction. On error nothing has been mutated.
func (e *Engine) TransferInTx(ctx context.Context, tx store.Tx, req TransferRequest) (*TransferResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	wallets, err := lockWallets(ctx, tx, req.From, req.To)
	if err != nil {
		return nil, err
	}
	from := wallets[req.From]
	to := wallets[req.To]

	for _, w := range wallets {
		if w.Frozen {
			return nil, ErrWalletFrozen
		}
	}
	if !from.CanAfford(req.Amount) {
		return nil, NewInsufficientFunds(from.ID, req.Amount, from.Balance)
	}

	now := e.now()
	transferID := id.NewTransfer()
	from.Balance -= req.Amount
	debit := &domain.LedgerEntry{
		ID:         id.NewEntry(),
		TransferID: transferID,
		WalletID:   from.ID,
		Amount:     -req.Amount,
		Kind:       req.Kind,
		Context:    req.Context,
		Reverses:   req.reverses,
		CreatedAt:  now,
	}
	entries := []*domain.LedgerEntry{debit}

	if to != nil {
		to.Balance += req.Amount
		if req.Kind != domain.KindRefund {
			from.LifetimeSpent += req.Amount
			to.LifetimeEarned += req.Amount
		}
		debit.CounterpartyWalletID = &to.ID
		entries = append(entries, &domain.LedgerEntry{
			ID:                   id.NewEntry(),
			TransferID:           transferID,
			WalletID:             to.ID,
			CounterpartyWalletID: &from.ID,
			Amount:               req.Amount,
			Kind:                 req.Kind,
			Context:              req.Context,
			Reverses:             req.reverses,
			CreatedAt:            now,
		})
		if err := tx.SaveWallet(ctx, to); err != nil {
			return nil, err
		}
	}
	if err := tx.SaveWallet(ctx, from); err != nil {
		return nil, err
	}
	if err := tx.AppendEntries(ctx, entries...); err != nil {
		return nil, err
	}

	res := &TransferResult{TransferID: transferID, FromBalance: from.Balance}
	if to != nil {
		res.ToBalance = to.Balance
	}
	return res, nil
}

// lockWallets locks the given wallets in lexicographic id order so that two
// transfers over the same pair can never wait on each other in a cycle.
func lockWallets(ctx context.Context, tx store.Tx, ids ...string) (map[string]*domain.Wallet, error) {
	ordered := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, walletID := range ids {
		if walletID == "" || seen[walletID] {
			continue
		}
		seen[walletID] = true
		ordered = append(ordered, walletID)
	}
	sort.Strings(ordered)

	wallets := make(map[string]*domain.Wallet, len(ordered))
	for _, walletID := range ordered {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return nil, err
		}
		wallets[walletID] = w
	}
	return wallets, nil
}

// Credit records an external credit (tokens bought, or a refund coming from
// outside the platform). There is no counterparty wallet.
func (e *Engine) Credit(ctx context.Context, walletID string, amount int64, kind domain.EntryKind, meta domain.EntryContext) (*TransferResult, error) {
	if walletID == "" {
		return nil, ErrMissingWallet
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if kind != domain.KindTokenPurchase && kind != domain.KindRefund {
		return nil, ErrUnknownKind
	}
	req := TransferRequest{To: walletID, Amount: amount, Kind: kind, Context: meta}

	var res *TransferResult
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		if w.Frozen {
			return ErrWalletFrozen
		}
		w.Balance += amount
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		transferID := id.NewTransfer()
		if err := tx.AppendEntries(ctx, &domain.LedgerEntry{
			ID:         id.NewEntry(),
			TransferID: transferID,
			WalletID:   walletID,
			Amount:     amount,
			Kind:       kind,
			Context:    meta,
			CreatedAt:  e.now(),
		}); err != nil {
			return err
		}
		res = &TransferResult{TransferID: transferID, ToBalance: w.Balance}
		return nil
	})
	if err != nil {
		err = FromStore(err)
		e.logFailure(req, err)
		return nil, err
	}
	e.Committed(ctx, req, res)
	return res, nil
}

// Payout debits a creator's wallet for a cash-out handled outside the ledger.
// Only the available part of the balance can leave: earnings still inside
// the hold window are checked under the wallet lock.
func (e *Engine) Payout(ctx context.Context, walletID string, amount int64, meta domain.EntryContext) (*TransferResult, error) {
	req := TransferRequest{From: walletID, Amount: amount, Kind: domain.KindPayout, Context: meta}
	if err := validate(req); err != nil {
		return nil, err
	}
	var res *TransferResult
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		if w.Frozen {
			return ErrWalletFrozen
		}
		available := w.Balance
		if e.hold > 0 {
			recent, err := tx.EarnedSince(ctx, walletID, e.now().Add(-e.hold))
			if err != nil {
				return err
			}
			available -= min(recent, w.Balance)
		}
		if amount > available {
			return NewInsufficientFunds(walletID, amount, available)
		}
		res, err = e.TransferInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		err = FromStore(err)
		e.logFailure(req, err)
		return nil, err
	}
	e.Committed(ctx, req, res)
	return res, nil
}

// Refund writes an offsetting transfer for a prior wallet-to-wallet transfer.
// A transfer can be refunded once; the original recipient must still hold
// the amount.
func (e *Engine) Refund(ctx context.Context, transferID, note string) (*TransferResult, error) {
	var (
		res *TransferResult
		req TransferRequest
	)
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		entries, err := tx.TransferEntries(ctx, transferID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrTransferNotFound
		}
		var debit, credit *domain.LedgerEntry
		for i := range entries {
			if entries[i].Amount < 0 {
				debit = &entries[i]
			} else {
				credit = &entries[i]
			}
		}
		if debit == nil || credit == nil || debit.Kind == domain.KindRefund {
			return ErrNotRefundable
		}
		// Both wallets are locked before the already-refunded check so two
		// concurrent refunds of one transfer serialize here.
		if _, err := lockWallets(ctx, tx, debit.WalletID, credit.WalletID); err != nil {
			return err
		}
		if _, err := tx.RefundOf(ctx, transferID); err == nil {
			return ErrAlreadyRefunded
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		meta := debit.Context
		meta.Note = note
		req = TransferRequest{
			From:     credit.WalletID,
			To:       debit.WalletID,
			Amount:   credit.Amount,
			Kind:     domain.KindRefund,
			Context:  meta,
			reverses: transferID,
		}
		res, err = e.TransferInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		err = FromStore(err)
		e.logFailure(req, err)
		return nil, err
	}
	e.Committed(ctx, req, res)
	return res, nil
}

// Committed runs the post-commit side effects of a transfer: cache
// invalidation, metrics and notifications. None of them can undo the commit.
func (e *Engine) Committed(ctx context.Context, req TransferRequest, res *TransferResult) {
	metrics.RecordTransfer(string(req.Kind), "ok", req.Amount)
	logrus.WithFields(logrus.Fields{
		"from_wallet_id": req.From,
		"to_wallet_id":   req.To,
		"amount":         req.Amount,
		"kind":           req.Kind,
		"transfer_id":    res.TransferID,
	}).Info("Transfer committed")

	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, req.From, req.To); err != nil {
			logrus.WithFields(logrus.Fields{
				"from_wallet_id": req.From,
				"to_wallet_id":   req.To,
				"error":          err.Error(),
			}).Warn("Balance cache invalidation failed")
		}
	}

	now := e.now()
	if req.From != "" {
		e.notifier.Notify(notify.Notification{
			UserID: req.From,
			Event:  notify.EventBalanceChanged,
			Data:   map[string]any{"balance": res.FromBalance, "delta": -req.Amount, "kind": string(req.Kind)},
			At:     now,
		})
	}
	if req.To != "" {
		e.notifier.Notify(notify.Notification{
			UserID: req.To,
			Event:  notify.EventBalanceChanged,
			Data:   map[string]any{"balance": res.ToBalance, "delta": req.Amount, "kind": string(req.Kind)},
			At:     now,
		})
	}
}

func (e *Engine) logFailure(req TransferRequest, err error) {
	outcome := "error"
	level := logrus.ErrorLevel
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		outcome, level = "insufficient_funds", logrus.InfoLevel
	case errors.Is(err, ErrConcurrentModification):
		outcome, level = "conflict", logrus.WarnLevel
	case errors.Is(err, ErrLedgerIntegrity):
		outcome, level = "frozen", logrus.WarnLevel
	case errors.Is(err, ErrDuplicateTicket):
		outcome, level = "duplicate", logrus.InfoLevel
	}
	metrics.RecordTransfer(string(req.Kind), outcome, req.Amount)
	logrus.WithFields(logrus.Fields{
		"from_wallet_id": req.From,
		"to_wallet_id":   req.To,
		"amount":         req.Amount,
		"kind":           req.Kind,
		"error":          err.Error(),
	}).Log(level, "Transfer failed")
}
