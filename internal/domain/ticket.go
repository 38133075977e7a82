package domain

import "time" // Timestamps

// Ticket Model. One ticket per wallet per event.
type Ticket struct {
	ID             string    `gorm:"primaryKey;size:40" json:"id"`                                          // Ticket id
	WalletID       string    `gorm:"size:64;not null;uniqueIndex:idx_ticket_wallet_event" json:"wallet_id"` // Buyer
	EventID        string    `gorm:"size:64;not null;uniqueIndex:idx_ticket_wallet_event" json:"event_id"`  // Ticketed show or stream
	SellerWalletID string    `gorm:"size:64;not null" json:"seller_wallet_id"`                              // Host
	Price          int64     `gorm:"not null" json:"price"`                                                 // Tokens paid
	TransferID     string    `gorm:"size:40;not null" json:"transfer_id"`                                   // Ledger correlation
	CreatedAt      time.Time `json:"created_at"`                                                            // Purchase time
}
