package main

import (
	"context"   // Lifecycle contexts
	"errors"    // Error inspection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal handling
	"syscall"   // SIGTERM
	"time"      // Shutdown timeout

	"token_ledger/internal/api"     // HTTP handlers
	"token_ledger/internal/billing" // Ledger engine
	"token_ledger/internal/calls"   // Call lifecycle
	"token_ledger/internal/config"  // Configuration
	"token_ledger/internal/db"      // Store selection
	"token_ledger/internal/meter"   // Session meter
	"token_ledger/internal/notify"  // Realtime notifications
	"token_ledger/internal/utils"   // Balance cache

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	st, err := db.NewStore(cfg)
	if err != nil {
		logrus.Fatalf("failed to open store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notification senders: log always, Redis Pub/Sub and FCM when configured
	senders := notify.Multi{notify.LogSender{}}
	var cache *utils.BalanceCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		cache = utils.NewBalanceCache(redisClient, utils.BalanceTTL)
		senders = append(senders, notify.NewRedisSender(redisClient))
	}
	if cfg.FCMCredentialsFile != "" {
		fcm, err := notify.NewFCMSender(ctx, cfg.FCMCredentialsFile)
		if err != nil {
			logrus.Fatalf("failed to initialize FCM: %v", err)
		}
		senders = append(senders, fcm)
	}
	dispatcher := notify.NewDispatcher(senders, cfg.NotifyQueueSize, cfg.NotifyWorkers)
	dispatcher.Start()

	engineOpts := []billing.Option{billing.WithNotifier(dispatcher), billing.WithEarningsHold(cfg.EarningsHold)}
	if cache != nil {
		engineOpts = append(engineOpts, billing.WithCache(cache))
	}
	engine := billing.NewEngine(st, engineOpts...)
	callService := calls.NewService(st, cfg.MeterInterval, cfg.CallRingTimeout, calls.WithNotifier(dispatcher))
	sessionMeter := meter.New(st, engine, callService, meter.Config{
		Interval: cfg.MeterInterval,
		Epsilon:  cfg.MeterEpsilon,
		Workers:  cfg.MeterWorkers,
	})

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Engine:         engine,
		Events:         billing.NewEvents(engine, dispatcher),
		Ledger:         billing.NewLedger(st, cfg.EarningsHold),
		Auditor:        billing.NewAuditor(st, dispatcher),
		Calls:          callService,
		Cache:          cache,
		JWTSecret:      cfg.JWTSecret,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	meterDone := make(chan struct{})
	go func() {
		defer close(meterDone)
		sessionMeter.Run(ctx)
	}()

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: router}
	go func() {
		logrus.WithField("port", cfg.AppPort).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP shutdown failed")
	}
	<-meterDone
	dispatcher.Close() // Flush queued notifications
	logrus.Info("Server stopped")
}

func setupLogger(cfg *config.Config) {
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
