package mail

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

// LogMailer renders mails and writes them to the log instead of sending (dev mode).
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) Send(_ context.Context, template string, user *models.User, data map[string]interface{}) error {
	msg, err := render(template, user, data)
	if err != nil {
		return err
	}
	log.Infof("[Mail] (dev) template=%s to=%s subject=%q", template, msg.To, msg.Subject)
	return nil
}
