// Command audit replays the ledger against every wallet balance and freezes
// wallets that disagree. It exits non-zero when any mismatch is found.
package main

import (
	"context"
	"os"

	"token_ledger/internal/billing"
	"token_ledger/internal/config"
	"token_ledger/internal/db"
	"token_ledger/internal/notify"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	st, err := db.NewStore(cfg)
	if err != nil {
		logrus.Fatalf("failed to open store: %v", err)
	}

	dispatcher := notify.NewDispatcher(notify.LogSender{}, cfg.NotifyQueueSize, 1)
	dispatcher.Start()
	defer dispatcher.Close()

	report, err := billing.NewAuditor(st, dispatcher).Run(context.Background())
	if err != nil {
		logrus.Fatalf("audit failed: %v", err)
	}
	for _, m := range report.Mismatches {
		logrus.WithFields(logrus.Fields{
			"wallet_id":  m.WalletID,
			"balance":    m.Balance,
			"ledger_sum": m.LedgerSum,
		}).Error("Mismatch")
	}
	if len(report.Mismatches) > 0 || report.Errors > 0 {
		dispatcher.Close()
		os.Exit(1)
	}
}
