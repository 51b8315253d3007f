package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/textproto"

	"github.com/jordan-wright/email"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Notification struct {
	Channels []Channel
	Email    string
	Phone    string
	Subject  string
	Body     string
}

// Notifier delivers a reminder. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	// sms is delivered through a carrier email-to-sms gateway, e.g.
	// "%s@sms.gateway.example"; empty disables the sms channel
	SMSGateway string `json:"sms_gateway"`
}

// SMTPNotifier sends email over plain SMTP, and sms through an
// email-to-sms gateway when one is configured.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (s *SMTPNotifier) Notify(ctx context.Context, n Notification) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	for _, ch := range n.Channels {
		var to string
		switch ch {
		case ChannelEmail:
			to = n.Email
		case ChannelSMS:
			if s.cfg.SMSGateway == "" || n.Phone == "" {
				continue
			}
			to = fmt.Sprintf(s.cfg.SMSGateway, n.Phone)
		default:
			continue
		}
		if to == "" {
			continue
		}

		msg := &email.Email{
			From:    s.cfg.From,
			To:      []string{to},
			Subject: n.Subject,
			Text:    []byte(n.Body),
			Headers: textproto.MIMEHeader{},
		}
		err := msg.Send(addr, auth)
		if err != nil {
			return fmt.Errorf("send %s notification: %w", ch, err)
		}
	}
	return nil
}

// LogNotifier is the dev/test sink, reminders go to the log instead of
// a mailbox.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) error {
	slog.InfoContext(ctx, "notification",
		"channels", n.Channels,
		"email", n.Email,
		"subject", n.Subject,
		"body", n.Body,
	)
	return nil
}
