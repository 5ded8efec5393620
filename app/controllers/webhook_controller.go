package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/billing"
)

const stripeSignatureHeader = "Stripe-Signature"

type WebhookController struct {
	billing *billing.Service
}

func NewWebhookController(svc *billing.Service) *WebhookController {
	return &WebhookController{billing: svc}
}

// HandleStripe verifies and applies one Stripe event. Verification and decode
// failures are 400 so Stripe stops retrying; processing failures are 500 so it
// retries.
func (wc *WebhookController) HandleStripe(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	out, err := wc.billing.HandleWebhook(c.UserContext(), payload, c.Get(stripeSignatureHeader))
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		fiberlog.Warnf("[Billing] Rejected webhook: %v", err)
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "signature verification failed")
	case errors.Is(err, billing.ErrInvalidPayload):
		fiberlog.Warnf("[Billing] Rejected webhook: %v", err)
		return jsonError(c, fiber.StatusBadRequest, "invalid_payload", err.Error())
	case err != nil:
		fiberlog.Errorf("[Billing] Webhook %s (%s) failed: %v", out.EventID, out.EventType, err)
		return jsonError(c, fiber.StatusInternalServerError, "processing_failed", "webhook processing failed")
	}

	return c.JSON(fiber.Map{
		"received":  true,
		"duplicate": out.Duplicate,
		"handled":   out.Handled,
	})
}
