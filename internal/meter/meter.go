// Package meter charges active calls one block per tick.
//
// Every charge re-checks the call under its row lock, so overlapping ticks
// or several meter processes bill each block at most once. A tick never
// catches up on missed blocks.
package meter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"token_ledger/internal/billing"
	"token_ledger/internal/calls"
	"token_ledger/internal/domain"
	"token_ledger/internal/metrics"
	"token_ledger/internal/store"

	"github.com/sirupsen/logrus"
)

// Per-call outcomes.
const (
	OutcomeCharged = "charged"
	OutcomeSkipped = "skipped"
	OutcomeEnded   = "ended"
	OutcomeFailed  = "failed"
)

// TickReport counts what one tick did.
type TickReport struct {
	Charged int `json:"charged"`
	Skipped int `json:"skipped"`
	Ended   int `json:"ended"`
	Failed  int `json:"failed"`
	Expired int `json:"expired"`
}

// Config tunes the meter.
type Config struct {
	Interval time.Duration // block length and tick period
	Epsilon  time.Duration // scheduling jitter tolerated by the block re-check
	Workers  int
}

// Meter bills active calls block by block.
type Meter struct {
	store  store.Store
	engine *billing.Engine
	calls  *calls.Service
	cfg    Config
	now    func() time.Time
}

// New creates a meter; fewer than one worker means one.
func New(st store.Store, engine *billing.Engine, svc *calls.Service, cfg Config) *Meter {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Meter{store: st, engine: engine, calls: svc, cfg: cfg, now: time.Now}
}

// Run ticks until ctx is done.
func (m *Meter) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"interval": m.cfg.Interval.String(),
		"workers":  m.cfg.Workers,
	}).Info("Session meter started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Session meter stopped")
			return
		case <-ticker.C:
			m.Tick(ctx, m.now())
		}
	}
}

// Tick expires stale ringing calls, then charges each active call once.
// One call failing never stops the others.
func (m *Meter) Tick(ctx context.Context, now time.Time) TickReport {
	started := time.Now()
	var report TickReport

	expired, err := m.calls.ExpireRinging(ctx, now)
	if err != nil {
		logrus.WithError(err).Warn("Failed to list ringing calls")
	}
	report.Expired = expired

	ids, err := m.store.ListCallIDs(ctx, domain.CallActive)
	if err != nil {
		logrus.WithError(err).Error("Failed to list active calls")
		return report
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan string)
	)
	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for callID := range jobs {
				outcome := m.Charge(ctx, callID, now)
				mu.Lock()
				switch outcome {
				case OutcomeCharged:
					report.Charged++
				case OutcomeSkipped:
					report.Skipped++
				case OutcomeEnded:
					report.Ended++
				default:
					report.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	for _, callID := range ids {
		jobs <- callID
	}
	close(jobs)
	wg.Wait()

	metrics.RecordMeterTick(time.Since(started).Seconds())
	logrus.WithFields(logrus.Fields{
		"charged": report.Charged,
		"skipped": report.Skipped,
		"ended":   report.Ended,
		"failed":  report.Failed,
		"expired": report.Expired,
	}).Info("Meter tick completed")
	return report
}

// Charge bills one block of one call, or ends the call when the fan can no
// longer pay. It returns one of the Outcome constants.
func (m *Meter) Charge(ctx context.Context, callID string, now time.Time) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"call_id": callID,
				"panic":   fmt.Sprint(r),
			}).Error("Meter panic recovered")
			outcome = OutcomeFailed
		}
		metrics.RecordMeterCall(outcome)
	}()

	var (
		req    billing.TransferRequest
		res    *billing.TransferResult
		result *domain.Call
	)
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockCall(ctx, callID)
		if err != nil {
			return err
		}
		if !m.due(c, now) {
			outcome = OutcomeSkipped
			return nil
		}

		req = billing.TransferRequest{
			From:    c.FanWalletID,
			To:      c.CreatorWalletID,
			Amount:  calls.BlockCost(c.RatePerMinute, m.cfg.Interval),
			Kind:    domain.KindCallBlock,
			Context: domain.EntryContext{CallID: c.ID},
		}
		res, err = m.engine.TransferInTx(ctx, tx, req)
		switch {
		case errors.Is(err, billing.ErrInsufficientFunds):
			outcome, result = OutcomeEnded, c
			return calls.EndInTx(ctx, tx, c, calls.EventInsufficientFunds, now)
		case errors.Is(err, billing.ErrWalletFrozen):
			outcome, result = OutcomeEnded, c
			return calls.EndInTx(ctx, tx, c, calls.EventWalletFrozen, now)
		case err != nil:
			return err
		}

		metered := now
		c.LastMeteredAt = &metered
		c.BlocksCharged++
		c.TotalCharged += req.Amount
		outcome, result = OutcomeCharged, c
		return tx.SaveCall(ctx, c)
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"call_id": callID,
			"error":   billing.FromStore(err).Error(),
		}).Warn("Meter charge failed, retrying next tick")
		return OutcomeFailed
	}

	switch outcome {
	case OutcomeCharged:
		m.engine.Committed(ctx, req, res)
	case OutcomeEnded:
		m.calls.Announce(result)
	}
	return outcome
}

// due reports whether a full block has elapsed since the last charge.
func (m *Meter) due(c *domain.Call, now time.Time) bool {
	if c.Status != domain.CallActive || c.LastMeteredAt == nil {
		return false
	}
	return now.Sub(*c.LastMeteredAt) >= m.cfg.Interval-m.cfg.Epsilon
}
