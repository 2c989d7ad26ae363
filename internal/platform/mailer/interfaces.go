package mailer

import (
	"context"

	"github.com/diagnosis/baywheel-hotline/pkg/config"
)

// Service delivers one message and returns the provider's message id when
// it reports one.
type Service interface {
	Send(ctx context.Context, toEmail, toName, subject, text, html string) (string, error)
}

// FromConfig picks MailerSend when a key is configured, the log-only mailer
// in dev mode, and SMTP otherwise.
func FromConfig(cfg config.EmailConfig) Service {
	switch {
	case cfg.MailerSendKey != "":
		return NewMailer(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	case cfg.DevMode:
		return NewDevMailer()
	default:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPPort == 465)
	}
}
