package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/diagnosis/baywheel-hotline/internal/platform/awsconf"
	"github.com/diagnosis/baywheel-hotline/internal/platform/mailer"
	"github.com/diagnosis/baywheel-hotline/internal/platform/sms"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/internal/service/alerts"
	guestsvc "github.com/diagnosis/baywheel-hotline/internal/service/guest"
	"github.com/diagnosis/baywheel-hotline/internal/service/stream"
	"github.com/diagnosis/baywheel-hotline/pkg/config"
	"github.com/diagnosis/baywheel-hotline/pkg/database"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

func main() {
	cfg := config.Load()
	if err := cfg.Require("TABLE_NAME", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID"); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := logger.WithService(context.Background(), "registry-stream")
	clients, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		logger.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	repo := dynamo.NewGuestRepo(clients.DynamoDB, dynamo.TableConfig{
		TableName:          cfg.Registry.TableName,
		BookingIndex:       cfg.Registry.BookingIndex,
		StatusExpiresIndex: cfg.Registry.StatusExpiresIndex,
	})
	// stream reactions never send access links; dev senders keep the
	// service complete without delivery credentials
	guests := guestsvc.NewGuestService(repo, mailer.NewDevMailer(), sms.DevSender{}, nil, guestsvc.Options{
		AppBaseURL: cfg.Property.AppBaseURL,
	})

	tg, err := alerts.NewTelegramBot(cfg.Alerts.TelegramToken)
	if err != nil {
		logger.Error("Failed to create Telegram bot", "error", err)
		os.Exit(1)
	}

	var dedupe alerts.Deduper
	if rdb, err := database.ConnectRedis(ctx, cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, alerts will not be deduplicated", "error", err)
	} else {
		dedupe = alerts.NewRedisDeduper(rdb, cfg.Alerts.DedupeTTL)
	}

	var mirrors []alerts.Sender
	if cfg.Alerts.SlackWebhookURL != "" {
		mirrors = append(mirrors, alerts.NewSlackSender(cfg.Alerts.SlackWebhookURL))
	}
	notifier := alerts.NewNotifier(alerts.NewTelegramSender(tg, cfg.Alerts.TelegramChatID), dedupe, cfg.Alerts.AdminBaseURL, mirrors...)

	consumer := stream.NewConsumer(guests, notifier)
	logger.Info("Starting registry stream consumer", "table", cfg.Registry.TableName)
	lambda.Start(consumer.Handle)
}
