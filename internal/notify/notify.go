// Package notify delivers fire-and-forget realtime notifications. Delivery
// failures are logged and counted; they never reach the caller.
package notify

import (
	"context"
	"errors"
	"time"
)

// Event names published on a user's channel.
const (
	EventBalanceChanged = "balance_changed"
	EventTipReceived    = "tip_received"
	EventTicketSold     = "ticket_sold"
	EventCallRinging    = "call_ringing"
	EventCallState      = "call_state_changed"
	EventCallEnded      = "call_ended"
	EventWalletFrozen   = "wallet_frozen"
)

// Notification is one message for one user.
type Notification struct {
	UserID string         `json:"user_id"`
	Event  string         `json:"event"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

// Notifier accepts notifications without blocking.
type Notifier interface {
	Notify(n Notification)
}

// Sender performs the actual delivery.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Nop drops everything.
type Nop struct{}

func (Nop) Notify(Notification) {}

// Multi fans a notification out to several senders.
type Multi []Sender

func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
