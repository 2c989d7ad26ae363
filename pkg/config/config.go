package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	AWS       AWSConfig
	Registry  RegistryConfig
	Telephony TelephonyConfig
	OpenAI    OpenAIConfig
	NATS      NATSConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Email     EmailConfig
	SMS       SMSConfig
	Alerts    AlertsConfig
	Property  PropertyConfig
	Schedules ScheduleConfig
	Archive   ArchiveConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AWSConfig struct {
	Region          string
	Endpoint        string // local emulators
	AccessKeyID     string
	SecretAccessKey string
}

type RegistryConfig struct {
	TableName          string
	BookingIndex       string
	StatusExpiresIndex string
}

type TelephonyConfig struct {
	AccountSID       string
	AuthToken        string
	WebhookURL       string
	OperatorNumber   string
	CloudFrontSecret string
	UpdateTimeout    time.Duration
}

type OpenAIConfig struct {
	APIKey           string
	BaseURL          string
	ClassifierModel  string
	AssistantModel   string
	AssistantID      string
	VectorStoreID    string
	ClassifyTimeout  time.Duration
	RetrievalTimeout time.Duration
	RunPollInterval  time.Duration
}

type NATSConfig struct {
	URL        string
	QueueGroup string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string // argon2id encoded
	AdminTokenTTL     time.Duration
	VerifyRateLimit   int
	VerifyRateWindow  time.Duration
}

type EmailConfig struct {
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	SMTPFrom      string
	FromName      string
	MailerSendKey string
	DevMode       bool // print emails to logs instead of sending
}

type SMSConfig struct {
	SenderID string
	DevMode  bool
}

type AlertsConfig struct {
	TelegramToken   string
	TelegramChatID  int64
	SlackWebhookURL string
	AdminBaseURL    string
	DedupeTTL       time.Duration
}

type PropertyConfig struct {
	AppBaseURL  string
	CORSOrigins []string
}

type ScheduleConfig struct {
	Cleanup string
	Archive string
}

type ArchiveConfig struct {
	Bucket string
	Prefix string
}

func Load() *Config {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ap-northeast-1"),
			Endpoint:        getEnv("AWS_ENDPOINT_URL", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Registry: RegistryConfig{
			TableName:          getEnv("TABLE_NAME", ""),
			BookingIndex:       getEnv("BOOKING_INDEX_NAME", "BookingIndex"),
			StatusExpiresIndex: getEnv("STATUS_EXPIRES_INDEX_NAME", "ApprovalStatusExpiresIndex"),
		},
		Telephony: TelephonyConfig{
			AccountSID:       getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
			WebhookURL:       getEnv("TWILIO_WEBHOOK_URL", ""),
			OperatorNumber:   getEnv("OPERATOR_PHONE_NUMBER", ""),
			CloudFrontSecret: getEnv("CLOUDFRONT_SECRET", ""),
			UpdateTimeout:    getDuration("TWILIO_UPDATE_TIMEOUT", 5*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:           getEnv("OPENAI_API_KEY", ""),
			BaseURL:          getEnv("OPENAI_BASE_URL", ""),
			ClassifierModel:  getEnv("OPENAI_CLASSIFIER_MODEL", "gpt-4.1-mini"),
			AssistantModel:   getEnv("OPENAI_ASSISTANT_MODEL", "gpt-4.1-mini"),
			AssistantID:      getEnv("OPENAI_ASSISTANT_ID", ""),
			VectorStoreID:    getEnv("OPENAI_VECTOR_STORE_ID", ""),
			ClassifyTimeout:  getDuration("OPENAI_CLASSIFY_TIMEOUT", 8*time.Second),
			RetrievalTimeout: getDuration("OPENAI_RETRIEVAL_TIMEOUT", 25*time.Second),
			RunPollInterval:  getDuration("OPENAI_RUN_POLL_INTERVAL", 500*time.Millisecond),
		},
		NATS: NATSConfig{
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			QueueGroup: getEnv("NATS_QUEUE_GROUP", "ai-workers"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", "dev-only-secret-change-in-prod"),
			AdminUser:         getEnv("ADMIN_USER", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			AdminTokenTTL:     getDuration("ADMIN_TOKEN_TTL", 8*time.Hour),
			VerifyRateLimit:   getInt("VERIFY_RATE_LIMIT", 10),
			VerifyRateWindow:  getDuration("VERIFY_RATE_WINDOW", 15*time.Minute),
		},
		Email: EmailConfig{
			SMTPHost:      getEnv("SMTP_HOST", "localhost"),
			SMTPPort:      getInt("SMTP_PORT", 1025),
			SMTPUser:      getEnv("SMTP_USER", ""),
			SMTPPass:      getEnv("SMTP_PASS", ""),
			SMTPFrom:      getEnv("SMTP_FROM", "noreply@osakabaywheel.com"),
			FromName:      getEnv("EMAIL_FROM_NAME", "Osaka Bay Wheel"),
			MailerSendKey: getEnv("MAILERSEND_API_KEY", ""),
			DevMode:       getBool("EMAIL_DEV_MODE", true),
		},
		SMS: SMSConfig{
			SenderID: getEnv("SMS_SENDER_ID", "BayWheel"),
			DevMode:  getBool("SMS_DEV_MODE", true),
		},
		Alerts: AlertsConfig{
			TelegramToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:  getInt64("TELEGRAM_CHAT_ID", 0),
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			AdminBaseURL:    strings.TrimRight(getEnv("ADMIN_BASE_URL", "https://app.osakabaywheel.com/admin"), "/"),
			DedupeTTL:       getDuration("ALERT_DEDUPE_TTL", 7*24*time.Hour),
		},
		Property: PropertyConfig{
			AppBaseURL:  strings.TrimRight(getEnv("APP_BASE_URL", "https://app.osakabaywheel.com"), "/"),
			CORSOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"https://app.osakabaywheel.com"}),
		},
		Schedules: ScheduleConfig{
			Cleanup: getEnv("CLEANUP_SCHEDULE", "0 0 3 * * *"),
			Archive: getEnv("ARCHIVE_SCHEDULE", "0 30 3 * * *"),
		},
		Archive: ArchiveConfig{
			Bucket: getEnv("ARCHIVE_BUCKET", ""),
			Prefix: getEnv("ARCHIVE_PREFIX", "backups"),
		},
	}
}

// Require reports every named setting that is empty. Each service passes the
// settings it cannot run without.
func (c *Config) Require(keys ...string) error {
	values := map[string]string{
		"TABLE_NAME":             c.Registry.TableName,
		"TWILIO_ACCOUNT_SID":     c.Telephony.AccountSID,
		"TWILIO_AUTH_TOKEN":      c.Telephony.AuthToken,
		"TWILIO_WEBHOOK_URL":     c.Telephony.WebhookURL,
		"OPERATOR_PHONE_NUMBER":  c.Telephony.OperatorNumber,
		"OPENAI_API_KEY":         c.OpenAI.APIKey,
		"OPENAI_VECTOR_STORE_ID": c.OpenAI.VectorStoreID,
		"NATS_URL":               c.NATS.URL,
		"REDIS_URL":              c.Redis.URL,
		"JWT_SECRET":             c.Auth.JWTSecret,
		"ADMIN_PASSWORD_HASH":    c.Auth.AdminPasswordHash,
		"TELEGRAM_BOT_TOKEN":     c.Alerts.TelegramToken,
		"ARCHIVE_BUCKET":         c.Archive.Bucket,
		"APP_BASE_URL":           c.Property.AppBaseURL,
	}
	if c.Alerts.TelegramChatID == 0 {
		values["TELEGRAM_CHAT_ID"] = ""
	} else {
		values["TELEGRAM_CHAT_ID"] = strconv.FormatInt(c.Alerts.TelegramChatID, 10)
	}

	var missing []string
	for _, k := range keys {
		v, known := values[k]
		if !known {
			v = os.Getenv(k)
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
