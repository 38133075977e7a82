package mysql

import (
	"context"
	"errors"
	"time"

	"token_ledger/internal/domain"
	"token_ledger/internal/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormTx struct {
	db *gorm.DB
}

// LockWallet inserts the wallet row if it is missing (no-op on conflict, so
// two first-use transactions cannot both create it) and then reads it
// back under SELECT ... FOR UPDATE.
func (t *gormTx) LockWallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	db := t.db.WithContext(ctx)
	seed := domain.Wallet{ID: walletID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, translate(err)
	}
	var w domain.Wallet
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID).
		Take(&w).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (t *gormTx) SaveWallet(ctx context.Context, w *domain.Wallet) error {
	err := t.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("id = ?", w.ID).
		Updates(map[string]any{
			"balance":         w.Balance,
			"lifetime_earned": w.LifetimeEarned,
			"lifetime_spent":  w.LifetimeSpent,
			"frozen":          w.Frozen,
			"frozen_reason":   w.FrozenReason,
		}).Error
	return translate(err)
}

func (t *gormTx) AppendEntries(ctx context.Context, entries ...*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return translate(t.db.WithContext(ctx).Create(entries).Error)
}

func (t *gormTx) SumEntries(ctx context.Context, walletID string) (int64, error) {
	var sum int64
	err := t.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("wallet_id = ?", walletID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, translate(err)
}

func (t *gormTx) EarnedSince(ctx context.Context, walletID string, since time.Time) (int64, error) {
	var sum int64
	err := t.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("wallet_id = ? AND kind IN ? AND amount > 0 AND created_at >= ?", walletID, earningKinds, since).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, translate(err)
}

func (t *gormTx) TransferEntries(ctx context.Context, transferID string) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := t.db.WithContext(ctx).Where("transfer_id = ?", transferID).Order("amount").Find(&entries).Error
	return entries, translate(err)
}

func (t *gormTx) RefundOf(ctx context.Context, transferID string) (string, error) {
	var e domain.LedgerEntry
	err := t.db.WithContext(ctx).Where("reverses = ?", transferID).Take(&e).Error
	if err != nil {
		return "", translate(err)
	}
	return e.TransferID, nil
}

func (t *gormTx) LockCall(ctx context.Context, callID string) (*domain.Call, error) {
	var c domain.Call
	err := t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", callID).
		Take(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (t *gormTx) SaveCall(ctx context.Context, c *domain.Call) error {
	return translate(t.db.WithContext(ctx).Save(c).Error)
}

func (t *gormTx) HasTicket(ctx context.Context, walletID, eventID string) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("wallet_id = ? AND event_id = ?", walletID, eventID).
		Count(&count).Error
	return count > 0, translate(err)
}

func (t *gormTx) CreateTicket(ctx context.Context, tk *domain.Ticket) error {
	err := translate(t.db.WithContext(ctx).Create(tk).Error)
	if errors.Is(err, store.ErrDuplicate) {
		return store.ErrDuplicate
	}
	return err
}
