package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sashabaranov/go-openai"

	"github.com/diagnosis/baywheel-hotline/internal/hotline/classifier"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/processor"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/retrieval"
	"github.com/diagnosis/baywheel-hotline/internal/platform/telephony"
	"github.com/diagnosis/baywheel-hotline/pkg/config"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	mw "github.com/diagnosis/baywheel-hotline/pkg/middleware"
)

func main() {
	cfg := config.Load()
	if err := cfg.Require(
		"OPENAI_API_KEY", "OPENAI_VECTOR_STORE_ID",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_WEBHOOK_URL", "OPERATOR_PHONE_NUMBER",
		"NATS_URL",
	); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	oaCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		oaCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	oa := openai.NewClientWithConfig(oaCfg)

	twilio := telephony.NewTwilioClient(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken)
	proc := processor.New(
		classifier.New(oa, cfg.OpenAI.ClassifierModel, cfg.OpenAI.ClassifyTimeout),
		retrieval.New(oa, retrieval.Config{
			Model:         cfg.OpenAI.AssistantModel,
			AssistantID:   cfg.OpenAI.AssistantID,
			VectorStoreID: cfg.OpenAI.VectorStoreID,
			Timeout:       cfg.OpenAI.RetrievalTimeout,
			PollInterval:  cfg.OpenAI.RunPollInterval,
		}),
		telephony.NewTwilioUpdater(twilio.Api, cfg.Telephony.UpdateTimeout),
		cfg.Telephony.WebhookURL,
		cfg.Telephony.OperatorNumber,
	).WithLatencyBudget(cfg.OpenAI.RetrievalTimeout, cfg.Telephony.UpdateTimeout)
	// classification, announcement and retrieval all fit inside one job
	jobTimeout := cfg.OpenAI.ClassifyTimeout + cfg.OpenAI.RetrievalTimeout + 2*cfg.Telephony.UpdateTimeout
	worker := processor.NewWorker(proc, jobTimeout)

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "hotline-ai-worker")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	if err := eventBus.QueueSubscribe(events.AIProcessRequested, cfg.NATS.QueueGroup, worker.Handle); err != nil {
		logger.Error("Failed to subscribe", "subject", events.AIProcessRequested, "error", err)
		os.Exit(1)
	}

	// health and metrics only
	r := chi.NewRouter()
	r.Use(mw.ServiceName("aiworker"))
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
			logger.Error("AI worker http error", "error", err)
		}
	}()

	logger.Info("Starting AI worker", "subject", events.AIProcessRequested, "queue", cfg.NATS.QueueGroup)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down AI worker...")
	// drain lets in-flight jobs finish their call updates
	if err := eventBus.Close(); err != nil {
		logger.Error("NATS drain error", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("AI worker shutdown error", "error", err)
	}
}
