package domain

import "time" // Timestamps

// EntryKind classifies a ledger entry
type EntryKind string

// Ledger entry kinds
const (
	KindTip            EntryKind = "tip"             // One-shot tip between wallets
	KindCallBlock      EntryKind = "call_block"      // One metered block of a call
	KindTicketPurchase EntryKind = "ticket_purchase" // Ticketed access purchase
	KindTokenPurchase  EntryKind = "token_purchase"  // Tokens bought with real currency (external credit)
	KindPayout         EntryKind = "payout"          // Creator cash-out (external debit)
	KindRefund         EntryKind = "refund"          // Offsetting correction
)

// Valid reports whether k is a known kind
func (k EntryKind) Valid() bool {
	switch k {
	case KindTip, KindCallBlock, KindTicketPurchase, KindTokenPurchase, KindPayout, KindRefund:
		return true
	}
	return false
}

// Earning reports whether credits of this kind count as creator earnings
func (k EntryKind) Earning() bool {
	return k == KindTip || k == KindCallBlock || k == KindTicketPurchase
}

// EntryContext is opaque metadata attached to an entry
type EntryContext struct {
	ChannelID string            `json:"channel_id,omitempty"` // Chat or stream channel
	CallID    string            `json:"call_id,omitempty"`    // Metered call
	StreamID  string            `json:"stream_id,omitempty"`  // Live stream
	EventID   string            `json:"event_id,omitempty"`   // Ticketed event
	Note      string            `json:"note,omitempty"`       // Free text
	Extra     map[string]string `json:"extra,omitempty"`      // Anything else the caller wants recorded
}

// LedgerEntry Model. Rows are insert-only.
type LedgerEntry struct {
	ID                   string       `gorm:"primaryKey;size:40" json:"id"`                                               // Entry id
	TransferID           string       `gorm:"size:40;index;not null" json:"transfer_id"`                                  // Shared by the debit and credit of one transfer
	WalletID             string       `gorm:"size:64;index:idx_entries_wallet_time,priority:1;not null" json:"wallet_id"` // Wallet whose balance changed
	CounterpartyWalletID *string      `gorm:"size:64" json:"counterparty_wallet_id,omitempty"`                            // Nil for external events
	Amount               int64        `gorm:"not null" json:"amount"`                                                     // Positive credit, negative debit
	Kind                 EntryKind    `gorm:"size:32;index;not null" json:"kind"`                                         // Entry kind
	Context              EntryContext `gorm:"serializer:json;type:text" json:"context"`                                   // Opaque metadata
	Reverses             string       `gorm:"size:40;index" json:"reverses,omitempty"`                                    // Transfer offset by this refund
	CreatedAt            time.Time    `gorm:"index:idx_entries_wallet_time,priority:2;not null" json:"created_at"`        // Immutable timestamp
}
