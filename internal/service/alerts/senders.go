package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
)

const sendTimeout = 10 * time.Second

// BotClient is the part of the Telegram bot API the notifier needs.
type BotClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type TelegramSender struct {
	bot    BotClient
	chatID int64
}

func NewTelegramSender(client BotClient, chatID int64) *TelegramSender {
	return &TelegramSender{bot: client, chatID: chatID}
}

// NewTelegramBot connects a bot for token. It checks the token with the API.
func NewTelegramBot(token string) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	return bot.New(token)
}

func (t *TelegramSender) Name() string { return "telegram" }

func (t *TelegramSender) Send(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	})
	return err
}

// SlackSender posts to an incoming webhook.
type SlackSender struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{webhookURL: webhookURL, post: slack.PostWebhookContext}
}

func (s *SlackSender) Name() string { return "slack" }

func (s *SlackSender) Send(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.post(ctx, s.webhookURL, &slack.WebhookMessage{Text: text})
}

// RedisDeduper claims event ids with SETNX so each is alerted once per TTL.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(id string) string { return "alerts:pending:" + id }

func (d *RedisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	return d.client.SetNX(ctx, dedupeKey(id), "1", d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	return d.client.Del(ctx, dedupeKey(id)).Err()
}
