package api

import (
	"net/http"

	"token_ledger/internal/billing"
	"token_ledger/internal/calls"
	"token_ledger/internal/middleware"
	"token_ledger/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Engine    *billing.Engine
	Events    *billing.Events
	Ledger    *billing.Ledger
	Auditor   *billing.Auditor
	Calls     *calls.Service
	Cache     *utils.BalanceCache // optional
	JWTSecret string

	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLoggingMiddleware(), middleware.MetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.JWTAuthMiddleware(d.JWTSecret)
	limit := middleware.RateLimitMiddleware(d.RateLimitRPS, d.RateLimitBurst)

	// Money-moving routes (JWT + per-user rate limit)
	user := r.Group("")
	user.Use(auth, limit)
	user.POST("/transfers", TransferHandler(d.Events))
	user.POST("/tips", TipHandler(d.Events))
	user.POST("/tickets", TicketHandler(d.Events))
	user.GET("/tickets/:event_id", TicketStatusHandler(d.Events))

	user.GET("/wallet", GetWalletHandler(d.Ledger, d.Cache))
	user.GET("/wallet/ledger", LedgerHistoryHandler(d.Ledger))
	user.GET("/wallet/earnings", EarningsHandler(d.Ledger))

	user.POST("/calls", StartCallHandler(d.Calls))
	user.GET("/calls/:id", GetCallHandler(d.Calls))
	user.POST("/calls/:id/accept", CallActionHandler(d.Calls.Accept))
	user.POST("/calls/:id/pause", CallActionHandler(d.Calls.Pause))
	user.POST("/calls/:id/resume", CallActionHandler(d.Calls.Resume))
	user.POST("/calls/:id/end", CallActionHandler(d.Calls.End))

	// Admin routes (JWT + admin role)
	admin := r.Group("/admin")
	admin.Use(auth, middleware.AdminOnlyMiddleware())
	admin.POST("/wallets/:id/credit", CreditHandler(d.Engine))
	admin.POST("/wallets/:id/payout", PayoutHandler(d.Engine))
	admin.POST("/wallets/:id/unfreeze", UnfreezeHandler(d.Auditor))
	admin.POST("/transfers/:id/refund", RefundHandler(d.Engine))
	admin.POST("/audit", AuditHandler(d.Auditor))
	admin.GET("/ledger", AdminLedgerHandler(d.Ledger))

	return r
}
