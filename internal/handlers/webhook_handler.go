package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/forgeapps/licensing-backend/internal/dto"
	"github.com/forgeapps/licensing-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

type WebhookHandler struct {
	entitlementService *services.EntitlementService
	signingSecret      string
}

func NewWebhookHandler(entitlementService *services.EntitlementService, signingSecret string) *WebhookHandler {
	return &WebhookHandler{
		entitlementService: entitlementService,
		signingSecret:      signingSecret,
	}
}

// HandleStripe verifies the Stripe signature over the raw body, normalizes
// payment-confirmation events and hands them to the reconciler. Processing
// failures return 500 so Stripe redelivers; replays are absorbed by the
// reconciler's event-id check.
func (h *WebhookHandler) HandleStripe(c *fiber.Ctx) error {
	event, err := webhook.ConstructEvent(c.Body(), c.Get("Stripe-Signature"), h.signingSecret)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid webhook signature",
		})
	}

	paymentEvent, err := normalizeStripeEvent(&event)
	if err != nil {
		slog.Error("failed to parse webhook payload", "event_id", event.ID, "type", event.Type, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid webhook payload",
		})
	}
	if paymentEvent == nil {
		// Not a payment confirmation; acknowledge and move on.
		return c.JSON(fiber.Map{"received": true})
	}

	if err := h.entitlementService.OnPaymentConfirmed(paymentEvent); err != nil {
		if errors.Is(err, services.ErrCustomerNotFound) || errors.Is(err, services.ErrUnknownPrice) {
			slog.Error("webhook event not reconcilable", "event_id", event.ID, "error", err)
		} else {
			slog.Error("webhook processing failed", "event_id", event.ID, "error", err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to process webhook event",
		})
	}

	slog.Info("webhook processed", "event_id", event.ID, "type", event.Type)
	return c.JSON(fiber.Map{"received": true})
}

// normalizeStripeEvent maps supported Stripe event types onto the
// reconciler's PaymentEvent. Unsupported types return (nil, nil).
func normalizeStripeEvent(event *stripe.Event) (*services.PaymentEvent, error) {
	switch string(event.Type) {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, err
		}
		out := &services.PaymentEvent{
			EventID:    event.ID,
			Type:       string(event.Type),
			PurchaseID: session.ID,
			PriceID:    session.Metadata["price_id"],
		}
		if session.CustomerDetails != nil {
			out.CustomerEmail = session.CustomerDetails.Email
		}
		if session.Customer != nil {
			out.StripeCustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			out.SubscriptionID = session.Subscription.ID
		}
		return out, nil

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, err
		}
		out := &services.PaymentEvent{
			EventID:       event.ID,
			Type:          string(event.Type),
			PurchaseID:    invoice.ID,
			CustomerEmail: invoice.CustomerEmail,
		}
		if invoice.Customer != nil {
			out.StripeCustomerID = invoice.Customer.ID
		}
		if invoice.Subscription != nil {
			out.SubscriptionID = invoice.Subscription.ID
		}
		if invoice.Lines != nil && len(invoice.Lines.Data) > 0 {
			line := invoice.Lines.Data[0]
			if line.Price != nil {
				out.PriceID = line.Price.ID
			}
			if line.Period != nil && line.Period.End > 0 {
				end := time.Unix(line.Period.End, 0).UTC()
				out.PeriodEnd = &end
			}
		}
		return out, nil

	default:
		return nil, nil
	}
}
