package billing

import (
	"context"
	"fmt"
	"time"

	"token_ledger/internal/metrics"
	"token_ledger/internal/notify"
	"token_ledger/internal/store"

	"github.com/sirupsen/logrus"
)

// Mismatch is one wallet whose balance differs from its ledger replay.
type Mismatch struct {
	WalletID  string `json:"wallet_id"`
	Balance   int64  `json:"balance"`
	LedgerSum int64  `json:"ledger_sum"`
}

// AuditReport summarizes one reconciliation run.
type AuditReport struct {
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
	Errors     int        `json:"errors"`
}

// Auditor replays the ledger against wallet balances. A mismatch freezes the
// wallet; nothing is corrected automatically.
type Auditor struct {
	store    store.Store
	notifier notify.Notifier
}

func NewAuditor(st store.Store, notifier notify.Notifier) *Auditor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Auditor{store: st, notifier: notifier}
}

// Reconcile checks one wallet under its row lock, so no transfer can commit
// between reading the balance and summing the entries.
func (a *Auditor) Reconcile(ctx context.Context, walletID string) (*Mismatch, error) {
	var (
		found       *Mismatch
		newlyFrozen bool
	)
	err := a.store.WithinTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		sum, err := tx.SumEntries(ctx, walletID)
		if err != nil {
			return err
		}
		if sum == w.Balance {
			return nil
		}
		found = &Mismatch{WalletID: walletID, Balance: w.Balance, LedgerSum: sum}
		if w.Frozen {
			return nil
		}
		newlyFrozen = true
		w.Frozen = true
		w.FrozenReason = fmt.Sprintf("reconciliation mismatch: balance %d, ledger %d", w.Balance, sum)
		return tx.SaveWallet(ctx, w)
	})
	if err != nil {
		return nil, FromStore(err)
	}
	if newlyFrozen {
		metrics.RecordAuditMismatch()
		logrus.WithFields(logrus.Fields{
			"wallet_id":  found.WalletID,
			"balance":    found.Balance,
			"ledger_sum": found.LedgerSum,
		}).Error("Ledger integrity violation, wallet frozen")
		a.notifier.Notify(notify.Notification{UserID: walletID, Event: notify.EventWalletFrozen})
	}
	return found, nil
}

// Run reconciles every wallet. Per-wallet errors are counted, not fatal.
func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{StartedAt: time.Now(), Mismatches: []Mismatch{}}
	ids, err := a.store.ListWalletIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, walletID := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		m, err := a.Reconcile(ctx, walletID)
		report.Checked++
		if err != nil {
			report.Errors++
			logrus.WithFields(logrus.Fields{
				"wallet_id": walletID,
				"error":     err.Error(),
			}).Warn("Reconciliation failed")
			continue
		}
		if m != nil {
			report.Mismatches = append(report.Mismatches, *m)
		}
	}
	report.FinishedAt = time.Now()
	logrus.WithFields(logrus.Fields{
		"checked":    report.Checked,
		"mismatches": len(report.Mismatches),
		"errors":     report.Errors,
	}).Info("Ledger audit completed")
	return report, nil
}

// Unfreeze lifts an audit hold after manual review.
func (a *Auditor) Unfreeze(ctx context.Context, walletID string) error {
	if err := a.store.SetFrozen(ctx, walletID, false, ""); err != nil {
		return FromStore(err)
	}
	logrus.WithField("wallet_id", walletID).Warn("Wallet unfrozen after review")
	return nil
}
