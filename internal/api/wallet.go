package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // Query parsing
	"time"     // Time filters

	"token_ledger/internal/billing"    // Ledger read side
	"token_ledger/internal/domain"     // Domain models
	"token_ledger/internal/middleware" // Authenticated user
	"token_ledger/internal/store"      // Entry filters
	"token_ledger/internal/utils"      // Balance cache

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// WalletResponse is the wallet view returned to its owner
type WalletResponse struct {
	WalletID       string    `json:"wallet_id"`       // Wallet id
	Balance        int64     `json:"balance"`         // Spendable tokens
	LifetimeEarned int64     `json:"lifetime_earned"` // Tokens received from other wallets
	LifetimeSpent  int64     `json:"lifetime_spent"`  // Tokens paid to other wallets
	Frozen         bool      `json:"frozen"`          // Held for integrity review
	UpdatedAt      time.Time `json:"updated_at"`      // Last balance change
}

func walletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		WalletID:       w.ID,
		Balance:        w.Balance,
		LifetimeEarned: w.LifetimeEarned,
		LifetimeSpent:  w.LifetimeSpent,
		Frozen:         w.Frozen,
		UpdatedAt:      w.UpdatedAt,
	}
}

// GetWalletHandler returns the caller's wallet, cache-aside through Redis.
// cache may be nil.
func GetWalletHandler(ledger *billing.Ledger, cache *utils.BalanceCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		walletID := middleware.UserID(c)

		var (
			version    string
			versionErr error
		)
		if cache != nil {
			var cached WalletResponse
			found, err := cache.Get(ctx, walletID, &cached)
			if err == nil && found {
				c.JSON(http.StatusOK, gin.H{"wallet": cached, "cached": true})
				return
			}
			version, versionErr = cache.Version(ctx, walletID) // Taken before the store read
		}

		w, err := ledger.Wallet(ctx, walletID)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := walletResponse(w)
		if cache != nil && versionErr == nil {
			if _, err := cache.SetIfVersion(ctx, walletID, version, resp); err != nil {
				logrus.WithFields(logrus.Fields{
					"wallet_id": walletID,
					"error":     err.Error(),
				}).Warn("Failed to cache wallet")
			}
		}
		c.JSON(http.StatusOK, gin.H{"wallet": resp, "cached": false})
	}
}

// LedgerHistoryHandler returns the caller's ledger entries, newest first
func LedgerHistoryHandler(ledger *billing.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		listEntries(c, ledger, middleware.UserID(c))
	}
}

// EarningsHandler returns the caller's earnings summary
func EarningsHandler(ledger *billing.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := ledger.EarningsSummary(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// listEntries serves a paginated ledger page for walletID
func listEntries(c *gin.Context, ledger *billing.Ledger, walletID string) {
	filter, page, pageSize, ok := parseEntryFilter(c)
	if !ok {
		return
	}
	entries, total, err := ledger.History(c.Request.Context(), walletID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize)) // Calculate total pages
	c.JSON(http.StatusOK, gin.H{
		"entries":     entries,
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": totalPages,
	})
}

// parseEntryFilter reads kind, from, to, page and page_size. It writes the
// 400 itself and returns ok=false on bad input.
func parseEntryFilter(c *gin.Context) (store.EntryFilter, int, int, bool) {
	page := 1      // Default page number
	pageSize := 20 // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	f := store.EntryFilter{Limit: pageSize, Offset: (page - 1) * pageSize}

	if kinds := c.Query("kind"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			kind := domain.EntryKind(strings.TrimSpace(k))
			if !kind.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": CodeInvalidRequest, "message": "Unknown kind " + string(kind)})
				return f, 0, 0, false
			}
			f.Kinds = append(f.Kinds, kind)
		}
	}
	for _, bound := range []struct {
		param string
		dst   *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.Query(bound.param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": CodeInvalidRequest, "message": bound.param + " must be RFC3339"})
			return f, 0, 0, false
		}
		*bound.dst = t
	}
	return f, page, pageSize, true
}
