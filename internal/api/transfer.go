package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes

	"token_ledger/internal/billing"    // Ledger engine and handlers
	"token_ledger/internal/domain"     // Domain models
	"token_ledger/internal/middleware" // Authenticated user

	"github.com/gin-gonic/gin" // Gin web framework
)

// TransferRequest is a user-initiated wallet to wallet payment
type TransferRequest struct {
	ToWalletID string              `json:"to_wallet_id" binding:"required,walletid"`
	Amount     int64               `json:"amount" binding:"required,gt=0"`
	Kind       string              `json:"kind" binding:"required,oneof=tip ticket_purchase"`
	EventID    string              `json:"event_id" binding:"required_if=Kind ticket_purchase"`
	Context    domain.EntryContext `json:"context"`
}

// TipRequest is a one-shot tip
type TipRequest struct {
	ToWalletID string              `json:"to_wallet_id" binding:"required,walletid"`
	Amount     int64               `json:"amount" binding:"required,gt=0"`
	Context    domain.EntryContext `json:"context"`
}

// TicketRequest buys access to one event
type TicketRequest struct {
	SellerWalletID string              `json:"seller_wallet_id" binding:"required,walletid"`
	EventID        string              `json:"event_id" binding:"required,max=128"`
	Price          int64               `json:"price" binding:"required,gt=0"`
	Context        domain.EntryContext `json:"context"`
}

// TransferHandler runs a tip or ticket purchase from the caller's wallet
func TransferHandler(events *billing.Events) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		from := middleware.UserID(c)
		if domain.EntryKind(req.Kind) == domain.KindTicketPurchase {
			purchaseTicket(c, events, billing.TicketRequest{
				Buyer:   from,
				Seller:  req.ToWalletID,
				EventID: req.EventID,
				Price:   req.Amount,
				Context: req.Context,
			})
			return
		}
		sendTip(c, events, from, req.ToWalletID, req.Amount, req.Context)
	}
}

// TipHandler sends a tip from the caller's wallet
func TipHandler(events *billing.Events) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		sendTip(c, events, middleware.UserID(c), req.ToWalletID, req.Amount, req.Context)
	}
}

// TicketHandler buys a ticket with the caller's wallet
func TicketHandler(events *billing.Events) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		purchaseTicket(c, events, billing.TicketRequest{
			Buyer:   middleware.UserID(c),
			Seller:  req.SellerWalletID,
			EventID: req.EventID,
			Price:   req.Price,
			Context: req.Context,
		})
	}
}

// TicketStatusHandler tells the caller whether they hold a ticket for an event
func TicketStatusHandler(events *billing.Events) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok, err := events.Ticket(c.Request.Context(), middleware.UserID(c), c.Param("event_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"has_ticket": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"has_ticket": true, "purchased_at": t.CreatedAt, "price": t.Price})
	}
}

func sendTip(c *gin.Context, events *billing.Events, from, to string, amount int64, meta domain.EntryContext) {
	res, err := events.SendTip(c.Request.Context(), from, to, amount, meta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transferBody(res))
}

func purchaseTicket(c *gin.Context, events *billing.Events, req billing.TicketRequest) {
	_, res, err := events.PurchaseTicket(c.Request.Context(), req)
	if errors.Is(err, billing.ErrDuplicateTicket) {
		c.JSON(http.StatusOK, gin.H{"success": false, "already_purchased": true})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transferBody(res))
}

func transferBody(res *billing.TransferResult) gin.H {
	return gin.H{
		"success":      true,
		"transfer_id":  res.TransferID,
		"from_balance": res.FromBalance,
		"to_balance":   res.ToBalance,
	}
}
