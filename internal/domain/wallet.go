package domain

import "time" // Timestamps

// Wallet Model. ID is the opaque user id handed over by the identity provider.
type Wallet struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`              // Owner user id
	Balance        int64     `gorm:"not null;default:0" json:"balance"`         // Current balance in tokens, never negative
	LifetimeEarned int64     `gorm:"not null;default:0" json:"lifetime_earned"` // Total received from other wallets
	LifetimeSpent  int64     `gorm:"not null;default:0" json:"lifetime_spent"`  // Total sent to other wallets
	Frozen         bool      `gorm:"not null;default:false" json:"frozen"`      // Set by the audit job on a reconciliation mismatch
	FrozenReason   string    `gorm:"size:255" json:"frozen_reason,omitempty"`   // Why the wallet was frozen
	CreatedAt      time.Time `json:"created_at"`                                // Provisioning time
	UpdatedAt      time.Time `json:"updated_at"`                                // Last mutation time
}

// CanAfford reports whether the wallet holds at least amount tokens
func (w *Wallet) CanAfford(amount int64) bool {
	return w.Balance >= amount
}
