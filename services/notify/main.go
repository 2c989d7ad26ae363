package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/service/alerts"
	"github.com/diagnosis/baywheel-hotline/pkg/config"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	mw "github.com/diagnosis/baywheel-hotline/pkg/middleware"
)

func main() {
	cfg := config.Load()
	if err := cfg.Require("NATS_URL", "SLACK_WEBHOOK_URL"); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "notify")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}

	relay := alerts.NewRelay(alerts.NewSlackSender(cfg.Alerts.SlackWebhookURL))
	if err := eventBus.QueueSubscribe("guest.>", "notify", relay.Handle); err != nil {
		logger.Error("Failed to subscribe to guest events", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Health)
	r.Use(mw.Metrics)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Notify service error", "error", err)
		}
	}()

	logger.Info("Starting notify service", "port", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down notify service...")
	if err := eventBus.Close(); err != nil {
		logger.Error("NATS drain error", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Notify service shutdown error", "error", err)
	}
}
