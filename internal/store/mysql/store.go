// Package mysql implements store.Store on GORM and MySQL (InnoDB row locks).
package mysql

import (
	"context"
	"errors"
	"time"

	"token_ledger/internal/domain"
	"token_ledger/internal/store"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL server error numbers mapped onto store errors.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// translate maps driver errors onto the store error set.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errDuplicateEntry:
			return errors.Join(store.ErrDuplicate, err)
		case errLockWaitTimeout, errDeadlock:
			return errors.Join(store.ErrLockConflict, err)
		}
	}
	return err
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&gormTx{db: gtx})
	})
	return translate(err)
}

func (s *Store) GetWallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.db.WithContext(ctx).Where("id = ?", walletID).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.Wallet{ID: walletID}, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (s *Store) ListWalletIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&domain.Wallet{}).Order("id").Pluck("id", &ids).Error
	return ids, translate(err)
}

func (s *Store) SetFrozen(ctx context.Context, walletID string, frozen bool, reason string) error {
	if !frozen {
		reason = ""
	}
	res := s.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{"frozen": frozen, "frozen_reason": reason})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) entryQuery(ctx context.Context, walletID string, f store.EntryFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).Where("wallet_id = ?", walletID)
	if len(f.Kinds) > 0 {
		q = q.Where("kind IN ?", f.Kinds)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}
	return q
}

func (s *Store) ListEntries(ctx context.Context, walletID string, f store.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	var total int64
	if err := s.entryQuery(ctx, walletID, f).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	q := s.entryQuery(ctx, walletID, f).Order("created_at desc").Order("id desc").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var entries []domain.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, 0, translate(err)
	}
	return entries, total, nil
}

func (s *Store) SumEntries(ctx context.Context, walletID string) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("wallet_id = ?", walletID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, translate(err)
}

func (s *Store) Totals(ctx context.Context, walletID string) (store.EntryTotals, error) {
	var row struct {
		Earned   int64
		PaidOut  int64
		Refunded int64
	}
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("wallet_id = ?", walletID).
		Select(
			"COALESCE(SUM(CASE WHEN kind IN ? AND amount > 0 THEN amount ELSE 0 END), 0) AS earned, "+
				"COALESCE(SUM(CASE WHEN kind = ? THEN -amount ELSE 0 END), 0) AS paid_out, "+
				"COALESCE(SUM(CASE WHEN kind = ? THEN amount ELSE 0 END), 0) AS refunded",
			earningKinds, domain.KindPayout, domain.KindRefund,
		).
		Scan(&row).Error
	if err != nil {
		return store.EntryTotals{}, translate(err)
	}
	return store.EntryTotals{Earned: row.Earned, PaidOut: row.PaidOut, Refunded: row.Refunded}, nil
}

var earningKinds = []domain.EntryKind{domain.KindTip, domain.KindCallBlock, domain.KindTicketPurchase}

func (s *Store) EarnedSince(ctx context.Context, walletID string, since time.Time) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("wallet_id = ? AND kind IN ? AND amount > 0 AND created_at >= ?", walletID, earningKinds, since).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, translate(err)
}

func (s *Store) CreateCall(ctx context.Context, c *domain.Call) error {
	return translate(s.db.WithContext(ctx).Create(c).Error)
}

func (s *Store) GetCall(ctx context.Context, callID string) (*domain.Call, error) {
	var c domain.Call
	if err := s.db.WithContext(ctx).Where("id = ?", callID).Take(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) ListCallIDs(ctx context.Context, status domain.CallStatus) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&domain.Call{}).
		Where("status = ?", status).
		Order("id").
		Pluck("id", &ids).Error
	return ids, translate(err)
}

func (s *Store) ListRingingBefore(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&domain.Call{}).
		Where("status = ? AND ringing_at < ?", domain.CallRinging, before).
		Order("id").
		Pluck("id", &ids).Error
	return ids, translate(err)
}

func (s *Store) GetTicket(ctx context.Context, walletID, eventID string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := s.db.WithContext(ctx).Where("wallet_id = ? AND event_id = ?", walletID, eventID).Take(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}
