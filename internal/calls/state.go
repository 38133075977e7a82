// Package calls tracks the lifecycle of pay-per-minute calls and is the only
// gate the session meter consults before charging.
package calls

import (
	"errors"
	"fmt"
	"time"

	"token_ledger/internal/domain"
)

var (
	ErrInvalidTransition = errors.New("calls: invalid state transition")
	ErrNotParticipant    = errors.New("calls: not a participant of this call")
	ErrNotRecipient      = errors.New("calls: only the called creator can accept")
	ErrInvalidRate       = errors.New("calls: rate per minute must be positive")
	ErrSelfCall          = errors.New("calls: creator and fan must differ")
)

// Event drives a transition.
type Event string

const (
	EventAccept            Event = "accept"
	EventDecline           Event = "decline"
	EventPause             Event = "pause"
	EventResume            Event = "resume"
	EventHangup            Event = "hangup"
	EventTimeout           Event = "timeout"
	EventInsufficientFunds Event = "insufficient_funds"
	EventWalletFrozen      Event = "wallet_frozen"
)

// transitions lists, per event, the states it may fire from.
var transitions = map[Event][]domain.CallStatus{
	EventAccept:            {domain.CallRinging},
	EventDecline:           {domain.CallRinging},
	EventPause:             {domain.CallActive},
	EventResume:            {domain.CallPaused},
	EventHangup:            {domain.CallRinging, domain.CallActive, domain.CallPaused},
	EventTimeout:           {domain.CallRinging},
	EventInsufficientFunds: {domain.CallActive},
	EventWalletFrozen:      {domain.CallActive, domain.CallPaused},
}

var endReasons = map[Event]domain.EndReason{
	EventDecline:           domain.EndDeclined,
	EventHangup:            domain.EndHangup,
	EventTimeout:           domain.EndMissed,
	EventInsufficientFunds: domain.EndInsufficientFunds,
	EventWalletFrozen:      domain.EndWalletFrozen,
}

// Can reports whether ev may fire from the call's current state.
func Can(c *domain.Call, ev Event) bool {
	for _, from := range transitions[ev] {
		if c.Status == from {
			return true
		}
	}
	return false
}

// Transition applies ev to c at now. It mutates c only on success.
func Transition(c *domain.Call, ev Event, now time.Time) error {
	if !Can(c, ev) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, c.Status)
	}
	switch ev {
	case EventAccept:
		c.Status = domain.CallActive
		c.StartedAt = &now
		c.LastMeteredAt = &now
	case EventPause:
		c.Status = domain.CallPaused
		c.PausedAt = &now
	case EventResume:
		// paused time is never billed: the running block resumes where it stopped
		if c.PausedAt != nil && c.LastMeteredAt != nil {
			shifted := c.LastMeteredAt.Add(now.Sub(*c.PausedAt))
			c.LastMeteredAt = &shifted
		}
		c.Status = domain.CallActive
		c.PausedAt = nil
	default:
		c.Status = domain.CallEnded
		c.EndReason = endReasons[ev]
		c.EndedAt = &now
		c.PausedAt = nil
	}
	return nil
}

// BlockCost is the price of one metering block: ceil(rate * block / 60s).
func BlockCost(ratePerMinute int64, block time.Duration) int64 {
	if ratePerMinute <= 0 || block <= 0 {
		return 0
	}
	ms := block.Milliseconds()
	return (ratePerMinute*ms + 59999) / 60000
}
