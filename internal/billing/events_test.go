package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"token_ledger/internal/billing"
	"token_ledger/internal/domain"
	"token_ledger/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTip(t *testing.T) {
	f := newFixture(t)
	events := billing.NewEvents(f.engine, f.notifier)
	f.fund(t, "fan", 50)

	res, err := events.SendTip(context.Background(), "fan", "creator", 20, domain.EntryContext{StreamID: "live-9"})
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.FromBalance)
	assert.Contains(t, f.notifier.events("creator"), notify.EventTipReceived)

	_, err = events.SendTip(context.Background(), "fan", "creator", 31, domain.EntryContext{})
	assert.ErrorIs(t, err, billing.ErrInsufficientFunds)
}

func TestPurchaseTicket(t *testing.T) {
	f := newFixture(t)
	events := billing.NewEvents(f.engine, f.notifier)
	ctx := context.Background()
	f.fund(t, "fan", 100)

	ticket, res, err := events.PurchaseTicket(ctx, billing.TicketRequest{
		Buyer: "fan", Seller: "creator", EventID: "show-1", Price: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "show-1", ticket.EventID)
	assert.Equal(t, res.TransferID, ticket.TransferID)
	assert.Equal(t, int64(40), f.balance(t, "fan"))
	assert.Equal(t, int64(60), f.balance(t, "creator"))
	assert.Contains(t, f.notifier.events("creator"), notify.EventTicketSold)

	got, ok, err := events.Ticket(ctx, "fan", "show-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, got.ID)

	_, ok, err = events.Ticket(ctx, "fan", "show-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = events.PurchaseTicket(ctx, billing.TicketRequest{
		Buyer: "fan", Seller: "creator", EventID: "show-1", Price: 10,
	})
	assert.ErrorIs(t, err, billing.ErrDuplicateTicket)
	assert.Equal(t, int64(40), f.balance(t, "fan"), "a duplicate purchase charges nothing")
	f.reconciled(t, "fan", "creator")
}

func TestPurchaseTicket_InsufficientFundsCreatesNoTicket(t *testing.T) {
	f := newFixture(t)
	events := billing.NewEvents(f.engine, f.notifier)
	f.fund(t, "fan", 10)

	_, _, err := events.PurchaseTicket(context.Background(), billing.TicketRequest{
		Buyer: "fan", Seller: "creator", EventID: "show-1", Price: 60,
	})
	require.ErrorIs(t, err, billing.ErrInsufficientFunds)

	_, ok, err := events.Ticket(context.Background(), "fan", "show-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurchaseTicket_MissingEvent(t *testing.T) {
	f := newFixture(t)
	events := billing.NewEvents(f.engine, nil)
	_, _, err := events.PurchaseTicket(context.Background(), billing.TicketRequest{Buyer: "fan", Seller: "creator", Price: 5})
	assert.ErrorIs(t, err, billing.ErrMissingEvent)
}

func TestPurchaseTicket_ConcurrentDuplicate(t *testing.T) {
	f := newFixture(t)
	events := billing.NewEvents(f.engine, f.notifier)
	f.fund(t, "fan", 1000)

	const attempts = 2
	var (
		wg         sync.WaitGroup
		start      = make(chan struct{})
		mu         sync.Mutex
		succeeded  int
		duplicates int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := events.PurchaseTicket(context.Background(), billing.TicketRequest{
				Buyer: "fan", Seller: "creator", EventID: "show-42", Price: 100,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, billing.ErrDuplicateTicket):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, duplicates)
	assert.Equal(t, int64(900), f.balance(t, "fan"))
	f.reconciled(t, "fan", "creator")
}
