package mail

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/resend/resend-go/v2"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

func (m *ResendMailer) Send(ctx context.Context, template string, user *models.User, data map[string]interface{}) error {
	msg, err := render(template, user, data)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
		Tags:    []resend.Tag{{Name: "template", Value: template}},
	}
	if _, err := m.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend %s: %w", template, err)
	}
	log.Infof("[Mail] Sent %s to user %d", template, user.ID)
	return nil
}
