package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes

	"token_ledger/internal/billing" // Ledger errors
	"token_ledger/internal/calls"   // Call errors
	"token_ledger/internal/store"   // Store errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// Machine-readable error codes
const (
	CodeInsufficientTokens = "INSUFFICIENT_TOKENS"
	CodeTransientConflict  = "TRANSIENT_CONFLICT"
	CodeWalletFrozen       = "WALLET_FROZEN"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeAlreadyRefunded    = "ALREADY_REFUNDED"
	CodeNotRefundable      = "NOT_REFUNDABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// respondError maps a service error to a status and JSON body. Bodies carry
// no internal ids.
func respondError(c *gin.Context, err error) {
	var insufficient *billing.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     CodeInsufficientTokens,
			"required":  insufficient.Required,
			"current":   insufficient.Current,
			"shortfall": insufficient.Shortfall,
		})
	case errors.Is(err, billing.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": CodeTransientConflict})
	case errors.Is(err, billing.ErrLedgerIntegrity):
		c.JSON(http.StatusLocked, gin.H{"error": CodeWalletFrozen})
	case errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, billing.ErrSelfTransfer),
		errors.Is(err, billing.ErrUnknownKind),
		errors.Is(err, billing.ErrMissingWallet),
		errors.Is(err, billing.ErrMissingEvent),
		errors.Is(err, calls.ErrInvalidRate),
		errors.Is(err, calls.ErrSelfCall):
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeInvalidRequest, "message": err.Error()})
	case errors.Is(err, billing.ErrTransferNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": CodeNotFound})
	case errors.Is(err, calls.ErrNotParticipant), errors.Is(err, calls.ErrNotRecipient):
		c.JSON(http.StatusForbidden, gin.H{"error": CodeForbidden})
	case errors.Is(err, calls.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": CodeInvalidTransition})
	case errors.Is(err, billing.ErrAlreadyRefunded):
		c.JSON(http.StatusConflict, gin.H{"error": CodeAlreadyRefunded})
	case errors.Is(err, billing.ErrNotRefundable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": CodeNotRefundable})
	default:
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("Unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": CodeInternal})
	}
}
