package memory

import (
	"context"
	"time"

	"token_ledger/internal/domain"
	"token_ledger/internal/store"
)

type memTx struct {
	s    *Store
	held map[string]chan struct{}

	wallets map[string]*domain.Wallet
	entries []domain.LedgerEntry
	calls   map[string]*domain.Call
	tickets []domain.Ticket
}

func (tx *memTx) acquire(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	ch := tx.s.rowLock(key)
	timer := time.NewTimer(tx.s.lockTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		tx.held[key] = ch
		return nil
	case <-timer.C:
		return store.ErrLockConflict
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tx *memTx) release() {
	for key, ch := range tx.held {
		<-ch
		delete(tx.held, key)
	}
}

func (tx *memTx) commit() {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, w := range tx.wallets {
		w.UpdatedAt = now
		s.wallets[id] = *w
	}
	s.entries = append(s.entries, tx.entries...)
	for id, c := range tx.calls {
		c.UpdatedAt = now
		s.calls[id] = *c
	}
	for _, t := range tx.tickets {
		s.tickets[ticketKey(t.WalletID, t.EventID)] = t
	}
}

func (tx *memTx) LockWallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	if err := tx.acquire(ctx, "wallet:"+walletID); err != nil {
		return nil, err
	}
	if w, ok := tx.wallets[walletID]; ok {
		cp := *w
		return &cp, nil
	}
	tx.s.mu.RLock()
	w, ok := tx.s.wallets[walletID]
	tx.s.mu.RUnlock()
	if !ok {
		now := time.Now()
		w = domain.Wallet{ID: walletID, CreatedAt: now, UpdatedAt: now}
	}
	tx.wallets[walletID] = &w
	cp := w
	return &cp, nil
}

func (tx *memTx) SaveWallet(_ context.Context, w *domain.Wallet) error {
	if _, ok := tx.held["wallet:"+w.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *w
	tx.wallets[w.ID] = &cp
	return nil
}

func (tx *memTx) AppendEntries(_ context.Context, entries ...*domain.LedgerEntry) error {
	tx.s.mu.Lock()
	failErr := tx.s.failAppend
	tx.s.failAppend = nil
	tx.s.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	for _, e := range entries {
		tx.entries = append(tx.entries, *e)
	}
	return nil
}

func (tx *memTx) SumEntries(ctx context.Context, walletID string) (int64, error) {
	sum, err := tx.s.SumEntries(ctx, walletID)
	if err != nil {
		return 0, err
	}
	for _, e := range tx.entries {
		if e.WalletID == walletID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (tx *memTx) EarnedSince(ctx context.Context, walletID string, since time.Time) (int64, error) {
	sum, err := tx.s.EarnedSince(ctx, walletID, since)
	if err != nil {
		return 0, err
	}
	for _, e := range tx.entries {
		if e.WalletID == walletID && e.Kind.Earning() && e.Amount > 0 && !e.CreatedAt.Before(since) {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (tx *memTx) TransferEntries(_ context.Context, transferID string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	tx.s.mu.RLock()
	for _, e := range tx.s.entries {
		if e.TransferID == transferID {
			out = append(out, e)
		}
	}
	tx.s.mu.RUnlock()
	for _, e := range tx.entries {
		if e.TransferID == transferID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memTx) RefundOf(_ context.Context, transferID string) (string, error) {
	for _, e := range tx.entries {
		if e.Reverses == transferID {
			return e.TransferID, nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for _, e := range tx.s.entries {
		if e.Reverses == transferID {
			return e.TransferID, nil
		}
	}
	return "", store.ErrNotFound
}

func (tx *memTx) LockCall(ctx context.Context, callID string) (*domain.Call, error) {
	if err := tx.acquire(ctx, "call:"+callID); err != nil {
		return nil, err
	}
	if c, ok := tx.calls[callID]; ok {
		cp := *c
		return &cp, nil
	}
	tx.s.mu.RLock()
	c, ok := tx.s.calls[callID]
	tx.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	tx.calls[callID] = &c
	cp := c
	return &cp, nil
}

func (tx *memTx) SaveCall(_ context.Context, c *domain.Call) error {
	if _, ok := tx.held["call:"+c.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *c
	tx.calls[c.ID] = &cp
	return nil
}

func (tx *memTx) HasTicket(_ context.Context, walletID, eventID string) (bool, error) {
	for _, t := range tx.tickets {
		if t.WalletID == walletID && t.EventID == eventID {
			return true, nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	_, ok := tx.s.tickets[ticketKey(walletID, eventID)]
	return ok, nil
}

func (tx *memTx) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	exists, err := tx.HasTicket(ctx, t.WalletID, t.EventID)
	if err != nil {
		return err
	}
	if exists {
		return store.ErrDuplicate
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	tx.tickets = append(tx.tickets, *t)
	return nil
}
