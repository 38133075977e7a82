// Package memory is an in-process Store. Row locks are per-key semaphores and
// writes are staged on the transaction and applied on commit, so a failed
// transaction leaves no trace. Used by tests and by DB_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"token_ledger/internal/domain"
	"token_ledger/internal/store"
)

// DefaultLockTimeout bounds how long a transaction waits for a row lock.
const DefaultLockTimeout = 5 * time.Second

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	wallets map[string]domain.Wallet
	entries []domain.LedgerEntry
	calls   map[string]domain.Call
	tickets map[string]domain.Ticket

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	lockTimeout time.Duration
	failAppend  error
}

func New() *Store {
	return &Store{
		wallets:     make(map[string]domain.Wallet),
		calls:       make(map[string]domain.Call),
		tickets:     make(map[string]domain.Ticket),
		locks:       make(map[string]chan struct{}),
		lockTimeout: DefaultLockTimeout,
	}
}

// SetLockTimeout changes the row lock wait bound.
func (s *Store) SetLockTimeout(d time.Duration) { s.lockTimeout = d }

// FailNextAppend makes the next AppendEntries call return err.
func (s *Store) FailNextAppend(err error) {
	s.mu.Lock()
	s.failAppend = err
	s.mu.Unlock()
}

func (s *Store) rowLock(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx := &memTx{
		s:       s,
		held:    make(map[string]chan struct{}),
		wallets: make(map[string]*domain.Wallet),
		calls:   make(map[string]*domain.Call),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetWallet(_ context.Context, walletID string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return &domain.Wallet{ID: walletID}, nil
	}
	return &w, nil
}

func (s *Store) ListWalletIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.wallets))
	for id := range s.wallets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetFrozen takes the wallet's row lock like any other writer.
func (s *Store) SetFrozen(ctx context.Context, walletID string, frozen bool, reason string) error {
	s.mu.RLock()
	_, ok := s.wallets[walletID]
	s.mu.RUnlock()
	if !ok {
		return store.ErrNotFound
	}
	return s.WithinTx(ctx, func(t store.Tx) error {
		w, err := t.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		w.Frozen = frozen
		w.FrozenReason = reason
		if !frozen {
			w.FrozenReason = ""
		}
		return t.SaveWallet(ctx, w)
	})
}

func (s *Store) ListEntries(_ context.Context, walletID string, f store.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.WalletID != walletID || !matches(e, f) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return []domain.LedgerEntry{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func matches(e domain.LedgerEntry, f store.EntryFilter) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if e.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func (s *Store) SumEntries(_ context.Context, walletID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, e := range s.entries {
		if e.WalletID == walletID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (s *Store) Totals(_ context.Context, walletID string) (store.EntryTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t store.EntryTotals
	for _, e := range s.entries {
		if e.WalletID != walletID {
			continue
		}
		switch {
		case e.Kind.Earning() && e.Amount > 0:
			t.Earned += e.Amount
		case e.Kind == domain.KindPayout:
			t.PaidOut -= e.Amount
		case e.Kind == domain.KindRefund:
			t.Refunded += e.Amount
		}
	}
	return t, nil
}

func (s *Store) EarnedSince(_ context.Context, walletID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, e := range s.entries {
		if e.WalletID == walletID && e.Kind.Earning() && e.Amount > 0 && !e.CreatedAt.Before(since) {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (s *Store) CreateCall(_ context.Context, c *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[c.ID]; ok {
		return store.ErrDuplicate
	}
	c.UpdatedAt = time.Now()
	s.calls[c.ID] = *c
	return nil
}

func (s *Store) GetCall(_ context.Context, callID string) (*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[callID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListCallIDs(_ context.Context, status domain.CallStatus) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, c := range s.calls {
		if c.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListRingingBefore(_ context.Context, before time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, c := range s.calls {
		if c.Status == domain.CallRinging && c.RingingAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetTicket(_ context.Context, walletID, eventID string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketKey(walletID, eventID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func ticketKey(walletID, eventID string) string {
	return walletID + "\x00" + eventID
}

// ForceWallet overwrites a wallet row without a ledger entry. It exists to
// simulate corruption when exercising the reconciliation audit.
func (s *Store) ForceWallet(w domain.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = w
}
