package api

import (
	"net/http" // HTTP status codes

	"token_ledger/internal/billing"    // Ledger engine, read side and audit
	"token_ledger/internal/domain"     // Domain models
	"token_ledger/internal/id"         // Path id validation
	"token_ledger/internal/middleware" // Authenticated admin

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// CreditRequest is an external credit granted by the payment boundary
type CreditRequest struct {
	Amount  int64               `json:"amount" binding:"required,gt=0"`
	Kind    string              `json:"kind" binding:"omitempty,oneof=token_purchase refund"`
	Context domain.EntryContext `json:"context"`
}

// PayoutRequest is a creator cash-out
type PayoutRequest struct {
	Amount  int64               `json:"amount" binding:"required,gt=0"`
	Context domain.EntryContext `json:"context"`
}

// RefundRequest reverses a prior transfer
type RefundRequest struct {
	Note string `json:"note" binding:"max=512"`
}

// CreditHandler credits a wallet from outside the ledger (token purchase)
func CreditHandler(engine *billing.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		kind := domain.KindTokenPurchase // Default kind
		if req.Kind != "" {
			kind = domain.EntryKind(req.Kind)
		}
		res, err := engine.Credit(c.Request.Context(), c.Param("id"), req.Amount, kind, req.Context)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transfer_id": res.TransferID, "balance": res.ToBalance})
	}
}

// PayoutHandler debits a creator's available earnings for a cash-out. Earnings
// still inside the hold window cannot be paid out.
func PayoutHandler(engine *billing.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PayoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		res, err := engine.Payout(c.Request.Context(), c.Param("id"), req.Amount, req.Context)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transfer_id": res.TransferID, "balance": res.FromBalance})
	}
}

// RefundHandler writes the offsetting transfer for a tip or ticket purchase
func RefundHandler(engine *billing.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefundRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondBindError(c, err)
				return
			}
		}
		transferID, ok := pathID(c, id.PrefixTransfer)
		if !ok {
			return
		}
		res, err := engine.Refund(c.Request.Context(), transferID, req.Note)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, transferBody(res))
	}
}

// AuditHandler reconciles every wallet against its ledger
func AuditHandler(auditor *billing.Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := auditor.Run(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// UnfreezeHandler lifts an audit hold after manual review
func UnfreezeHandler(auditor *billing.Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletID := c.Param("id")
		if err := auditor.Unfreeze(c.Request.Context(), walletID); err != nil {
			respondError(c, err)
			return
		}
		logrus.WithFields(logrus.Fields{
			"wallet_id": walletID,
			"admin_id":  middleware.UserID(c),
		}).Info("Admin unfroze wallet")
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// AdminLedgerHandler lists any wallet's ledger entries
func AdminLedgerHandler(ledger *billing.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletID := c.Query("wallet_id")
		if walletID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": CodeInvalidRequest, "message": "wallet_id is required"})
			return
		}
		listEntries(c, ledger, walletID)
	}
}
