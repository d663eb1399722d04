package controllers

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/AndriyMelnyk/FinTrack/internal/pkg/subscription"
)

var callbackService *subscription.CallbackService

// SetCallbackService injects the callback service used by the webhook
// handlers. Called once during application startup.
func SetCallbackService(svc *subscription.CallbackService) {
	callbackService = svc
}

// HandlePaymentWebhookProbe answers the provider's reachability checks. The
// provider probes the webhook URL with GET/HEAD before sending callbacks.
func HandlePaymentWebhookProbe(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// HandlePaymentWebhook processes a signed provider callback. The response
// body tells the provider what happened, always with HTTP 200 unless the
// failure is on our side: invalid requests must not be retried, but a
// transient internal error should be.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	if callbackService == nil {
		fiberlog.Errorf("[PaymentWebhook] callback service not configured")
		return c.Status(fiber.StatusInternalServerError).SendString("error")
	}

	data := c.FormValue("data")
	signature := c.FormValue("signature")

	result, err := callbackService.ProcessCallback(c.Context(), data, signature)
	if err != nil {
		switch {
		case subscription.IsProtocolError(err):
			fiberlog.Infof("[PaymentWebhook] rejected callback: %v", err)
			return c.SendString("invalid")
		case subscription.IsIgnorableError(err):
			fiberlog.Infof("[PaymentWebhook] ignored callback: %v", err)
			return c.SendString("ignored")
		default:
			fiberlog.Errorf("[PaymentWebhook] processing failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).SendString("error")
		}
	}

	fiberlog.Infof("[PaymentWebhook] processed order=%s user=%s status=%s", result.OrderID, result.UserID, result.ProviderStatus)
	return c.SendString("ok")
}
