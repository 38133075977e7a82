package meter_test

import (
	"context"
	"testing"
	"time"

	"token_ledger/internal/billing"
	"token_ledger/internal/calls"
	"token_ledger/internal/domain"
	"token_ledger/internal/meter"
	"token_ledger/internal/store"
	"token_ledger/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const block = 30 * time.Second

type harness struct {
	store   *memory.Store
	engine  *billing.Engine
	service *calls.Service
	meter   *meter.Meter
	now     time.Time
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.engine = billing.NewEngine(h.store, billing.WithClock(clock))
	h.service = calls.NewService(h.store, block, 90*time.Second, calls.WithClock(clock))
	h.meter = meter.New(h.store, h.engine, h.service, meter.Config{
		Interval: block,
		Epsilon:  2 * time.Second,
		Workers:  workers,
	})
	return h
}

func (h *harness) fund(t *testing.T, walletID string, amount int64) {
	t.Helper()
	_, err := h.engine.Credit(context.Background(), walletID, amount, domain.KindTokenPurchase, domain.EntryContext{})
	require.NoError(t, err)
}

// activeCall starts and accepts a call at h.now.
func (h *harness) activeCall(t *testing.T, fan, creator string, rate int64) *domain.Call {
	t.Helper()
	ctx := context.Background()
	c, err := h.service.Start(ctx, fan, creator, rate)
	require.NoError(t, err)
	c, err = h.service.Accept(ctx, c.ID, creator)
	require.NoError(t, err)
	return c
}

func (h *harness) balance(t *testing.T, walletID string) int64 {
	t.Helper()
	w, err := h.store.GetWallet(context.Background(), walletID)
	require.NoError(t, err)
	return w.Balance
}

func (h *harness) call(t *testing.T, callID string) *domain.Call {
	t.Helper()
	c, err := h.store.GetCall(context.Background(), callID)
	require.NoError(t, err)
	return c
}

func TestTick_ChargesOneBlock(t *testing.T) {
	h := newHarness(t, 1)
	h.fund(t, "fan", 1000)
	c := h.activeCall(t, "fan", "creator", 100)

	h.now = h.now.Add(block)
	report := h.meter.Tick(context.Background(), h.now)

	assert.Equal(t, meter.TickReport{Charged: 1}, report)
	assert.Equal(t, int64(950), h.balance(t, "fan"))
	assert.Equal(t, int64(50), h.balance(t, "creator"))

	got := h.call(t, c.ID)
	assert.Equal(t, int64(1), got.BlocksCharged)
	assert.Equal(t, int64(50), got.TotalCharged)
	assert.Equal(t, h.now, *got.LastMeteredAt)

	entries, _, err := h.store.ListEntries(context.Background(), "creator", store.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.KindCallBlock, entries[0].Kind)
	assert.Equal(t, c.ID, entries[0].Context.CallID)
}

func TestTick_EndsCallOnInsufficientFunds(t *testing.T) {
	h := newHarness(t, 1)
	h.fund(t, "fan", 70)
	c := h.activeCall(t, "fan", "creator", 100)

	h.now = h.now.Add(block)
	require.Equal(t, 1, h.meter.Tick(context.Background(), h.now).Charged)
	require.Equal(t, int64(20), h.balance(t, "fan"))

	h.now = h.now.Add(block)
	report := h.meter.Tick(context.Background(), h.now)
	assert.Equal(t, 1, report.Ended)
	assert.Zero(t, report.Charged)

	got := h.call(t, c.ID)
	assert.Equal(t, domain.CallEnded, got.Status)
	assert.Equal(t, domain.EndInsufficientFunds, got.EndReason)
	assert.Equal(t, int64(20), h.balance(t, "fan"), "no partial charge")
	assert.Equal(t, int64(50), h.balance(t, "creator"))
}

func TestTick_SameBlockChargedOnce(t *testing.T) {
	h := newHarness(t, 1)
	h.fund(t, "fan", 1000)
	c := h.activeCall(t, "fan", "creator", 100)

	h.now = h.now.Add(block)
	first := h.meter.Tick(context.Background(), h.now)
	second := h.meter.Tick(context.Background(), h.now.Add(time.Second))

	assert.Equal(t, 1, first.Charged)
	assert.Equal(t, 0, second.Charged)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, int64(1), h.call(t, c.ID).BlocksCharged)
	assert.Equal(t, int64(950), h.balance(t, "fan"))
}

func TestTick_ToleratesEarlyTick(t *testing.T) {
	h := newHarness(t, 1)
	h.fund(t, "fan", 1000)
	h.activeCall(t, "fan", "creator", 100)

	report := h.meter.Tick(context.Background(), h.now.Add(block-time.Second))
	assert.Equal(t, 1, report.Charged, "within epsilon of a full block")

	report = h.meter.Tick(context.Background(), h.now.Add(block+20*time.Second))
	assert.Equal(t, 1, report.Skipped, "no catch-up inside the next block")
}

func TestTick_ConcurrentMetersChargeOnce(t *testing.T) {
	h := newHarness(t, 4)
	h.fund(t, "fan", 1000)
	c := h.activeCall(t, "fan", "creator", 100)
	other := meter.New(h.store, h.engine, h.service, meter.Config{Interval: block, Epsilon: 2 * time.Second, Workers: 4})

	h.now = h.now.Add(block)
	done := make(chan meter.TickReport, 2)
	go func() { done <- h.meter.Tick(context.Background(), h.now) }()
	go func() { done <- other.Tick(context.Background(), h.now) }()
	a, b := <-done, <-done

	assert.Equal(t, 1, a.Charged+b.Charged)
	assert.Equal(t, int64(1), h.call(t, c.ID).BlocksCharged)
	assert.Equal(t, int64(950), h.balance(t, "fan"))
}

func TestTick_PausedTimeNotBilled(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.fund(t, "fan", 1000)
	c := h.activeCall(t, "fan", "creator", 100)
	start := h.now

	h.now = start.Add(20 * time.Second)
	_, err := h.service.Pause(ctx, c.ID, "fan")
	require.NoError(t, err)

	// paused calls are not metered at all
	report := h.meter.Tick(ctx, start.Add(block))
	assert.Zero(t, report.Charged)

	h.now = start.Add(10 * time.Minute)
	_, err = h.service.Resume(ctx, c.ID, "fan")
	require.NoError(t, err)

	// 20s were already used before the pause; 10s more complete the block
	report = h.meter.Tick(ctx, h.now.Add(5*time.Second))
	assert.Equal(t, 1, report.Skipped)
	report = h.meter.Tick(ctx, h.now.Add(10*time.Second))
	assert.Equal(t, 1, report.Charged)
	assert.Equal(t, int64(950), h.balance(t, "fan"))
}

func TestTick_IsolatesFailures(t *testing.T) {
	h := newHarness(t, 2)
	h.fund(t, "fan-a", 1000)
	h.fund(t, "fan-b", 60)
	a := h.activeCall(t, "fan-a", "creator", 100)
	b := h.activeCall(t, "fan-b", "creator", 100)
	h.fund(t, "fan-c", 1000)
	cc := h.activeCall(t, "fan-c", "creator", 100)
	// fan-b spends down below one block before the tick
	_, err := h.engine.Transfer(context.Background(), billing.TransferRequest{From: "fan-b", To: "creator", Amount: 30, Kind: domain.KindTip})
	require.NoError(t, err)

	h.now = h.now.Add(block)
	report := h.meter.Tick(context.Background(), h.now)

	assert.Equal(t, 2, report.Charged)
	assert.Equal(t, 1, report.Ended)
	assert.Equal(t, domain.CallActive, h.call(t, a.ID).Status)
	assert.Equal(t, domain.CallEnded, h.call(t, b.ID).Status)
	assert.Equal(t, domain.CallActive, h.call(t, cc.ID).Status)
}

func TestTick_FrozenWalletEndsCall(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.fund(t, "fan", 1000)
	c := h.activeCall(t, "fan", "creator", 100)
	require.NoError(t, h.store.SetFrozen(ctx, "fan", true, "review"))

	h.now = h.now.Add(block)
	report := h.meter.Tick(ctx, h.now)

	assert.Equal(t, 1, report.Ended)
	got := h.call(t, c.ID)
	assert.Equal(t, domain.EndWalletFrozen, got.EndReason)
	assert.Equal(t, int64(1000), h.balance(t, "fan"))
}

func TestTick_ExpiresRingingCalls(t *testing.T) {
	h := newHarness(t, 1)
	c, err := h.service.Start(context.Background(), "fan", "creator", 100)
	require.NoError(t, err)

	report := h.meter.Tick(context.Background(), h.now.Add(91*time.Second))
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, domain.EndMissed, h.call(t, c.ID).EndReason)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.meter.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("meter did not stop")
	}
}
