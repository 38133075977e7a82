package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"token_ledger/internal/billing"
	"token_ledger/internal/domain"
	"token_ledger/internal/notify"
	"token_ledger/internal/store/memory"

	"github.com/stretchr/testify/require"
)

// recorder is a Notifier that keeps everything it is given.
type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recorder) events(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		if n.UserID == userID {
			out = append(out, n.Event)
		}
	}
	return out
}

type fixture struct {
	store    *memory.Store
	engine   *billing.Engine
	notifier *recorder
	now      time.Time
}

func newFixture(t *testing.T, opts ...billing.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		notifier: &recorder{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	opts = append([]billing.Option{
		billing.WithNotifier(f.notifier),
		billing.WithClock(func() time.Time { return f.now }),
	}, opts...)
	f.engine = billing.NewEngine(f.store, opts...)
	return f
}

// fund buys tokens for a wallet through the ledger.
func (f *fixture) fund(t *testing.T, walletID string, amount int64) {
	t.Helper()
	_, err := f.engine.Credit(context.Background(), walletID, amount, domain.KindTokenPurchase, domain.EntryContext{Note: "test purchase"})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, walletID string) int64 {
	t.Helper()
	w, err := f.store.GetWallet(context.Background(), walletID)
	require.NoError(t, err)
	return w.Balance
}

// reconciled asserts balance == sum of entries for each wallet.
func (f *fixture) reconciled(t *testing.T, walletIDs ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range walletIDs {
		w, err := f.store.GetWallet(ctx, id)
		require.NoError(t, err)
		sum, err := f.store.SumEntries(ctx, id)
		require.NoError(t, err)
		require.Equal(t, w.Balance, sum, "wallet %s", id)
	}
}
