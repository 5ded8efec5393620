package mail

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/env"
)

// Mailer delivers a named template to a user.
type Mailer interface {
	Send(ctx context.Context, template string, user *models.User, data map[string]interface{}) error
}

// Message is a rendered email ready for a transport.
type Message struct {
	To      string
	Subject string
	Text    string
}

// NewFromEnv picks the transport from MAIL_PROVIDER (log, resend or smtp).
func NewFromEnv() Mailer {
	from := env.GetEnv("MAIL_FROM", "CaptionFox <no-reply@captionfox.app>")
	switch env.GetEnv("MAIL_PROVIDER", "log") {
	case "resend":
		apiKey := env.GetEnv("RESEND_API_KEY", "")
		if apiKey == "" {
			log.Warn("[Mail] RESEND_API_KEY not set, falling back to log mailer")
			return NewLogMailer()
		}
		return NewResendMailer(apiKey, from)
	case "smtp":
		return NewSMTPMailer(SMTPConfig{
			Host:     env.GetEnv("SMTP_HOST", ""),
			Port:     env.GetEnv("SMTP_PORT", "587"),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			Sender:   from,
		})
	default:
		return NewLogMailer()
	}
}

func render(template string, user *models.User, data map[string]interface{}) (*Message, error) {
	tpl, ok := templates[template]
	if !ok {
		return nil, fmt.Errorf("unknown mail template %q", template)
	}
	if user == nil || user.Email == "" {
		return nil, fmt.Errorf("mail template %q: recipient has no email", template)
	}
	subject, body := tpl(user, data)
	return &Message{To: user.Email, Subject: subject, Text: body}, nil
}
