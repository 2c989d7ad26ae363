package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/hotline/flow"
	"github.com/diagnosis/baywheel-hotline/internal/http/handlers"
	"github.com/diagnosis/baywheel-hotline/internal/platform/awsconf"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/pkg/config"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	mw "github.com/diagnosis/baywheel-hotline/pkg/middleware"
)

func main() {
	cfg := config.Load()
	if err := cfg.Require("TABLE_NAME", "TWILIO_WEBHOOK_URL", "OPERATOR_PHONE_NUMBER", "NATS_URL"); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		logger.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "hotline-webhook")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	repo := dynamo.NewGuestRepo(clients.DynamoDB, dynamo.TableConfig{
		TableName:          cfg.Registry.TableName,
		BookingIndex:       cfg.Registry.BookingIndex,
		StatusExpiresIndex: cfg.Registry.StatusExpiresIndex,
	})
	controller := flow.NewController(flow.NewAuthenticator(repo), eventBus, cfg.Telephony.WebhookURL, cfg.Telephony.OperatorNumber)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("hotline"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(mw.EdgeSecret(cfg.Telephony.CloudFrontSecret))
		r.Mount("/voice", handlers.NewVoiceHandler(controller).Routes())
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

		logger.Info("Shutting down hotline service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Hotline service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting hotline service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Hotline service error", "error", err)
		os.Exit(1)
	}
}
