package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

// ErrMailerDisabled is returned when no API key or sender address is set.
var ErrMailerDisabled = errors.New("mailersend: missing api key or from address")

const sendTimeout = 10 * time.Second

// Mailer sends guest access links and room-transfer notices through
// MailerSend. Every message is tagged so the dashboard can split guest
// traffic from anything else on the account.
type Mailer struct {
	client *mailersend.Mailersend
	sender mailersend.From
	tags   []string
}

func NewMailer(apiKey, fromName, fromEmail string) *Mailer {
	m := &Mailer{
		sender: mailersend.From{Name: fromName, Email: fromEmail},
		tags:   []string{"guest-hotline"},
	}
	if apiKey != "" && fromEmail != "" {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *Mailer) Enabled() bool { return m.client != nil }

func (m *Mailer) Send(ctx context.Context, toEmail, toName, subject, text, html string) (string, error) {
	if !m.Enabled() {
		return "", ErrMailerDisabled
	}
	if strings.TrimSpace(text) == "" && strings.TrimSpace(html) == "" {
		return "", fmt.Errorf("mailersend: empty body for %q", subject)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.sender)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)
	msg.SetTags(m.tags)
	if text != "" {
		msg.SetText(text)
	}
	if html != "" {
		msg.SetHTML(html)
	}

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("mailersend send to %s: %w", toEmail, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("mailersend: status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return res.Header.Get("X-Message-Id"), nil
}
