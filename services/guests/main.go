package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/http/handlers"
	"github.com/diagnosis/baywheel-hotline/internal/http/handlers/guest"
	httpmw "github.com/diagnosis/baywheel-hotline/internal/http/middleware"
	"github.com/diagnosis/baywheel-hotline/internal/platform/awsconf"
	"github.com/diagnosis/baywheel-hotline/internal/platform/mailer"
	"github.com/diagnosis/baywheel-hotline/internal/platform/sms"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/internal/service/cleanup"
	guestsvc "github.com/diagnosis/baywheel-hotline/internal/service/guest"
	"github.com/diagnosis/baywheel-hotline/pkg/config"
	"github.com/diagnosis/baywheel-hotline/pkg/database"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	mw "github.com/diagnosis/baywheel-hotline/pkg/middleware"
)

func main() {
	cfg := config.Load()
	if err := cfg.Require("TABLE_NAME", "JWT_SECRET", "ADMIN_PASSWORD_HASH", "APP_BASE_URL", "REDIS_URL", "NATS_URL"); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		logger.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "guests-api")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	var smsSender sms.Sender = sms.DevSender{}
	if !cfg.SMS.DevMode {
		smsSender = sms.NewSNSSender(clients.SNS, cfg.SMS.SenderID)
	}

	repo := dynamo.NewGuestRepo(clients.DynamoDB, dynamo.TableConfig{
		TableName:          cfg.Registry.TableName,
		BookingIndex:       cfg.Registry.BookingIndex,
		StatusExpiresIndex: cfg.Registry.StatusExpiresIndex,
	})
	guests := guestsvc.NewGuestService(repo, mailer.FromConfig(cfg.Email), smsSender, eventBus, guestsvc.Options{
		AppBaseURL: cfg.Property.AppBaseURL,
	})
	sweeper := cleanup.NewSweeper(repo, eventBus)

	verifyLimit := httpmw.NewRateLimiter(httpmw.NewRedisCounter(rdb), httpmw.RateLimitConfig{
		Requests: cfg.Auth.VerifyRateLimit,
		Window:   cfg.Auth.VerifyRateWindow,
	})

	accessHandler := guest.NewAccessHandler(guests, verifyLimit.Middleware())
	adminHandler := handlers.NewAdminHandler(guests, sweeper, handlers.AdminCredentials{
		User:         cfg.Auth.AdminUser,
		PasswordHash: cfg.Auth.AdminPasswordHash,
		JWTSecret:    cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.AdminTokenTTL,
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("guests"))
	r.Use(mw.Logging)
	r.Use(mw.CORS(cfg.Property.CORSOrigins))
	r.Use(mw.Health)
	r.Use(mw.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.With(mw.IdempotencyMiddleware(mw.NewRedisIdempotencyStore(rdb))).
			Mount("/guest", accessHandler.Routes())
		r.Mount("/admin", adminHandler.Routes())
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down guests service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Guests service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting guests service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Guests service error", "error", err)
		os.Exit(1)
	}
}
