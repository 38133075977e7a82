package calls

import (
	"context"
	"errors"
	"time"

	"token_ledger/internal/billing"
	"token_ledger/internal/domain"
	"token_ledger/internal/id"
	"token_ledger/internal/metrics"
	"token_ledger/internal/notify"
	"token_ledger/internal/store"

	"github.com/sirupsen/logrus"
)

// Service drives calls through their lifecycle and announces every change.
// Each transition locks the call row, so it serializes with the meter
// charging the same call.
type Service struct {
	store       store.Store
	notifier    notify.Notifier
	interval    time.Duration
	ringTimeout time.Duration
	now         func() time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a service; interval is the billing block used for the
// accept pre-flight.
func NewService(st store.Store, interval, ringTimeout time.Duration, opts ...Option) *Service {
	s := &Service{
		store:       st,
		notifier:    notify.Nop{},
		interval:    interval,
		ringTimeout: ringTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a ringing call from fan to creator.
func (s *Service) Start(ctx context.Context, fanID, creatorID string, ratePerMinute int64) (*domain.Call, error) {
	if fanID == "" || creatorID == "" {
		return nil, billing.ErrMissingWallet
	}
	if fanID == creatorID {
		return nil, ErrSelfCall
	}
	if ratePerMinute <= 0 {
		return nil, ErrInvalidRate
	}
	c := &domain.Call{
		ID:              id.NewCall(),
		CreatorWalletID: creatorID,
		FanWalletID:     fanID,
		RatePerMinute:   ratePerMinute,
		Status:          domain.CallRinging,
		RingingAt:       s.now(),
	}
	if err := s.store.CreateCall(ctx, c); err != nil {
		return nil, err
	}
	metrics.RecordCallTransition(string(domain.CallRinging), "")
	logrus.WithFields(logrus.Fields{
		"call_id":           c.ID,
		"fan_wallet_id":     fanID,
		"creator_wallet_id": creatorID,
		"rate_per_minute":   ratePerMinute,
	}).Info("Call ringing")
	s.notifier.Notify(notify.Notification{
		UserID: creatorID,
		Event:  notify.EventCallRinging,
		Data:   map[string]any{"call_id": c.ID, "fan_id": fanID, "rate_per_minute": ratePerMinute},
		At:     c.RingingAt,
	})
	return c, nil
}

// Get returns the call if actor takes part in it.
func (s *Service) Get(ctx context.Context, callID, actor string) (*domain.Call, error) {
	c, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !c.IsParticipant(actor) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// Accept connects a ringing call. Only the creator being called can accept,
// and the fan must be able to pay for one block up front; otherwise the call
// keeps ringing.
func (s *Service) Accept(ctx context.Context, callID, actor string) (*domain.Call, error) {
	c, err := s.Get(ctx, callID, actor)
	if err != nil {
		return nil, err
	}
	if actor != c.CreatorWalletID {
		return nil, ErrNotRecipient
	}
	if !Can(c, EventAccept) {
		return nil, ErrInvalidTransition
	}
	fan, err := s.store.GetWallet(ctx, c.FanWalletID)
	if err != nil {
		return nil, err
	}
	if fan.Frozen {
		return nil, billing.ErrWalletFrozen
	}
	if cost := BlockCost(c.RatePerMinute, s.interval); !fan.CanAfford(cost) {
		return nil, billing.NewInsufficientFunds(fan.ID, cost, fan.Balance)
	}
	return s.fire(ctx, callID, actor, EventAccept)
}

// Pause stops metering until Resume.
func (s *Service) Pause(ctx context.Context, callID, actor string) (*domain.Call, error) {
	return s.fire(ctx, callID, actor, EventPause)
}

// Resume restarts metering; the paused time is never billed.
func (s *Service) Resume(ctx context.Context, callID, actor string) (*domain.Call, error) {
	return s.fire(ctx, callID, actor, EventResume)
}

// End hangs up. A creator ending a call that is still ringing declines it.
func (s *Service) End(ctx context.Context, callID, actor string) (*domain.Call, error) {
	c, err := s.Get(ctx, callID, actor)
	if err != nil {
		return nil, err
	}
	ev := EventHangup
	if c.Status == domain.CallRinging && actor == c.CreatorWalletID {
		ev = EventDecline
	}
	return s.fire(ctx, callID, actor, ev)
}

// ExpireRinging ends every call that rang longer than the ring timeout.
func (s *Service) ExpireRinging(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.store.ListRingingBefore(ctx, now.Add(-s.ringTimeout))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, callID := range ids {
		c, err := s.apply(ctx, callID, "", EventTimeout, now)
		if err != nil {
			if !errors.Is(err, ErrInvalidTransition) {
				logrus.WithFields(logrus.Fields{
					"call_id": callID,
					"error":   err.Error(),
				}).Warn("Failed to expire ringing call")
			}
			continue
		}
		s.announce(c)
		expired++
	}
	return expired, nil
}

// EndInTx ends an active call from inside a caller's transaction that
// already holds the call lock. The caller announces after commit.
func EndInTx(ctx context.Context, tx store.Tx, c *domain.Call, ev Event, now time.Time) error {
	if err := Transition(c, ev, now); err != nil {
		return err
	}
	return tx.SaveCall(ctx, c)
}

func (s *Service) fire(ctx context.Context, callID, actor string, ev Event) (*domain.Call, error) {
	c, err := s.apply(ctx, callID, actor, ev, s.now())
	if err != nil {
		return nil, err
	}
	s.announce(c)
	return c, nil
}

// apply runs one transition under the call lock. An empty actor is the
// system itself (ring timeout).
func (s *Service) apply(ctx context.Context, callID, actor string, ev Event, now time.Time) (*domain.Call, error) {
	var out *domain.Call
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockCall(ctx, callID)
		if err != nil {
			return err
		}
		if actor != "" && !c.IsParticipant(actor) {
			return ErrNotParticipant
		}
		if ev == EventAccept && actor != c.CreatorWalletID {
			return ErrNotRecipient
		}
		if err := Transition(c, ev, now); err != nil {
			return err
		}
		if err := tx.SaveCall(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, billing.FromStore(err)
	}
	return out, nil
}

// Announce records and publishes a committed transition to both parties.
func (s *Service) Announce(c *domain.Call) { s.announce(c) }

func (s *Service) announce(c *domain.Call) {
	metrics.RecordCallTransition(string(c.Status), string(c.EndReason))
	fields := logrus.Fields{
		"call_id":        c.ID,
		"status":         c.Status,
		"blocks_charged": c.BlocksCharged,
		"total_charged":  c.TotalCharged,
	}
	if c.EndReason != "" {
		fields["end_reason"] = c.EndReason
	}
	logrus.WithFields(fields).Info("Call state changed")

	event := notify.EventCallState
	if c.Status == domain.CallEnded {
		event = notify.EventCallEnded
	}
	data := map[string]any{
		"call_id":        c.ID,
		"status":         string(c.Status),
		"end_reason":     string(c.EndReason),
		"blocks_charged": c.BlocksCharged,
		"total_charged":  c.TotalCharged,
	}
	at := s.now()
	for _, user := range []string{c.FanWalletID, c.CreatorWalletID} {
		s.notifier.Notify(notify.Notification{UserID: user, Event: event, Data: data, At: at})
	}
}
