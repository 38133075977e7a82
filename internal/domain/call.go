package domain

import "time" // Timestamps

// CallStatus is the lifecycle state of a call
type CallStatus string

// Call states
const (
	CallRinging CallStatus = "ringing" // Waiting for the creator to pick up
	CallActive  CallStatus = "active"  // Connected and metered
	CallPaused  CallStatus = "paused"  // Connected, not metered
	CallEnded   CallStatus = "ended"   // Terminal
)

// EndReason records why a call ended
type EndReason string

// End reasons
const (
	EndHangup            EndReason = "hangup"
	EndDeclined          EndReason = "declined"
	EndMissed            EndReason = "missed"
	EndInsufficientFunds EndReason = "insufficient_funds"
	EndWalletFrozen      EndReason = "wallet_frozen"
)

// Call Model
type Call struct {
	ID              string     `gorm:"primaryKey;size:40" json:"id"`                    // Call id
	CreatorWalletID string     `gorm:"size:64;index;not null" json:"creator_wallet_id"` // Paid party
	FanWalletID     string     `gorm:"size:64;index;not null" json:"fan_wallet_id"`     // Paying party
	RatePerMinute   int64      `gorm:"not null" json:"rate_per_minute"`                 // Tokens per 60s
	Status          CallStatus `gorm:"size:16;index;not null" json:"status"`            // Lifecycle state
	EndReason       EndReason  `gorm:"size:32" json:"end_reason,omitempty"`             // Set once ended
	RingingAt       time.Time  `gorm:"not null" json:"ringing_at"`                      // Creation time
	StartedAt       *time.Time `json:"started_at,omitempty"`                            // Accepted at
	PausedAt        *time.Time `json:"paused_at,omitempty"`                             // Current pause start
	EndedAt         *time.Time `json:"ended_at,omitempty"`                              // Terminal time
	LastMeteredAt   *time.Time `json:"last_metered_at,omitempty"`                       // Start of the block currently running
	BlocksCharged   int64      `gorm:"not null;default:0" json:"blocks_charged"`        // Number of blocks billed
	TotalCharged    int64      `gorm:"not null;default:0" json:"total_charged"`         // Tokens billed so far
	UpdatedAt       time.Time  `json:"updated_at"`                                      // Last transition
}

// IsParticipant reports whether walletID is one of the two parties
func (c *Call) IsParticipant(walletID string) bool {
	return walletID == c.CreatorWalletID || walletID == c.FanWalletID
}
