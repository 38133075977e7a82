package api

import (
	"context"
	"net/http"

	"token_ledger/internal/calls"
	"token_ledger/internal/domain"
	"token_ledger/internal/id"
	"token_ledger/internal/middleware"

	"github.com/gin-gonic/gin"
)

// StartCallRequest is a fan calling a creator
type StartCallRequest struct {
	CreatorWalletID string `json:"creator_wallet_id" binding:"required,walletid"`
	RatePerMinute   int64  `json:"rate_per_minute" binding:"required,gt=0"`
}

// StartCallHandler opens a ringing call from the caller to a creator
func StartCallHandler(svc *calls.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartCallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		call, err := svc.Start(c.Request.Context(), middleware.UserID(c), req.CreatorWalletID, req.RatePerMinute)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"call": call})
	}
}

// GetCallHandler returns a call to one of its participants
func GetCallHandler(svc *calls.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		callID, ok := pathID(c, id.PrefixCall)
		if !ok {
			return
		}
		call, err := svc.Get(c.Request.Context(), callID, middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"call": call})
	}
}

type callAction func(ctx context.Context, callID, actor string) (*domain.Call, error)

// CallActionHandler runs one transition (accept, pause, resume, end)
func CallActionHandler(action callAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		callID, ok := pathID(c, id.PrefixCall)
		if !ok {
			return
		}
		call, err := action(c.Request.Context(), callID, middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"call": call})
	}
}

// pathID returns the :id parameter when it is an id of the given type and
// writes a 404 otherwise
func pathID(c *gin.Context, prefix id.Prefix) (string, bool) {
	v := c.Param("id")
	if !id.HasPrefix(v, prefix) {
		c.JSON(http.StatusNotFound, gin.H{"error": CodeNotFound})
		return "", false
	}
	return v, true
}
