package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

type checkoutRequest struct {
	CourseID uint `json:"courseId" validate:"required,gt=0"`
}

// HandleCheckout opens a pending payment for a course and returns the client
// secret of the provider intent.
func HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}
	result, err := deps.Billing.OpenPayment(c.UserContext(), usercontext.GetUserID(c), req.CourseID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// HandleEnrollFree enrolls the caller in a course priced at zero.
func HandleEnrollFree(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}
	enrollment, err := deps.Billing.EnrollFree(c.UserContext(), usercontext.GetUserID(c), req.CourseID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"enrollment": enrollment})
}

// HandleVerifyPayment settles the caller's payment from the provider's view of
// the intent when the webhook is late or was lost.
func HandleVerifyPayment(c *fiber.Ctx) error {
	var req struct {
		PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	}
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}
	result, err := deps.Billing.VerifyPayment(c.UserContext(), usercontext.GetUserID(c), req.PaymentIntentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payment": result.Payment, "enrollment": result.Enrollment, "outcome": result.Outcome})
}

func HandleListMyPayments(c *fiber.Ctx) error {
	payments, err := deps.Billing.ListPayments(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

// HandleGetPayment returns a payment to its owner or an admin. Anyone else
// gets NotFound so payment ids cannot be enumerated.
func HandleGetPayment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	payment, err := deps.Billing.GetPayment(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if !entitlements.CanViewPayment(usercontext.Principal(c), payment) {
		return respondError(c, apperror.NotFound("Payment not found"))
	}
	return c.JSON(fiber.Map{"payment": payment})
}

// HandleStripeWebhook verifies, records and settles a provider event. Once an
// event is recorded the provider always gets 200; settlement failures are kept
// on the event row and internal ones are settled again on redelivery.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, "Stripe-Signature")

	if err := billing.VerifyStripeWebhookSignature(rawBody, signature, deps.WebhookSecret, deps.WebhookTolerance, time.Now()); err != nil {
		log.Warnf("[Webhook] Rejected stripe event: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature", "message": "Invalid webhook signature"})
	}

	event, parseErr := billing.ParseStripeEvent(rawBody)
	input := billing.WebhookEventInput{
		Provider:       models.PaymentProviderStripe,
		PayloadJSON:    string(rawBody),
		SignatureValid: true,
	}
	if event != nil {
		input.ProviderEventID = event.ID
		input.EventType = event.Type
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := deps.Billing.RecordWebhookEvent(ctx, input)
	if err != nil {
		log.Errorf("[Webhook] Failed to persist stripe event: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed", "message": "Event could not be recorded"})
	}
	if !created {
		if !billing.NeedsProcessing(stored) {
			return c.JSON(fiber.Map{"ok": true, "duplicate": true})
		}
		log.Infof("[Webhook] Retrying stripe event %s (previous outcome %q)", stored.ProviderEventID, stored.Outcome)
	}
	if parseErr != nil {
		markWebhook(ctx, stored.ID, billing.OutcomeRejected, parseErr)
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	}

	result, err := deps.Billing.Settle(ctx, *event)
	if err != nil {
		log.Errorf("[Webhook] Settlement of event %s (%s) failed: %v", event.ID, event.Type, err)
		outcome := billing.OutcomeRejected
		if apperror.KindOf(err) == apperror.KindInternal {
			outcome = billing.OutcomeError
		}
		markWebhook(ctx, stored.ID, outcome, err)
		return c.JSON(fiber.Map{"ok": true, "settled": false})
	}
	markWebhook(ctx, stored.ID, result.Outcome, nil)
	return c.JSON(fiber.Map{"ok": true, "outcome": result.Outcome})
}

func markWebhook(ctx context.Context, id uint, outcome billing.Outcome, cause error) {
	if err := deps.Billing.MarkWebhookProcessed(ctx, id, outcome, cause); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnf("[Webhook] Failed to mark event %d processed: %v", id, err)
	}
}
