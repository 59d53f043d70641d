package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/ListingHub/app/models"
	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
)

// WebhookService persists and applies provider events.
type WebhookService interface {
	RecordWebhookEvent(ctx context.Context, ev stripe.Event) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error
	HandleEvent(ctx context.Context, ev stripe.Event, activate func(ctx context.Context, recordID uint) error) error
}

// StatusSetter flips business rows between pending_payment and active.
type StatusSetter interface {
	SetStatus(ids []uint, status string) error
}

// BillingController receives Stripe webhooks. A subscription that becomes
// live out of band activates the business it is tagged with.
type BillingController struct {
	billing       WebhookService
	businesses    StatusSetter
	webhookSecret string
}

func NewBillingController(svc WebhookService, businesses StatusSetter, webhookSecret string) *BillingController {
	return &BillingController{billing: svc, businesses: businesses, webhookSecret: webhookSecret}
}

func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	ev, err := billing.VerifyStripeEvent(rawBody, c.Get("Stripe-Signature"), bc.webhookSecret)
	if err != nil {
		if errors.Is(err, billing.ErrWebhookSecretMissing) {
			log.Error("[Billing] Stripe webhook received but STRIPE_WEBHOOK_SECRET is not configured")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhook_not_configured"})
		}
		log.Warnf("[Billing] Rejected Stripe webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := bc.billing.RecordWebhookEvent(ctx, ev)
	if err != nil {
		log.Errorf("[Billing] Persist webhook %s failed: %v", ev.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	handleErr := bc.billing.HandleEvent(ctx, ev, bc.activate)
	if err := bc.billing.MarkWebhookProcessed(ctx, stored.ID, handleErr); err != nil {
		log.Warnf("[Billing] Mark webhook %s processed failed: %v", ev.ID, err)
	}
	if handleErr != nil {
		log.Errorf("[Billing] Handle webhook %s (%s) failed: %v", ev.ID, ev.Type, handleErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_sync_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func (bc *BillingController) activate(_ context.Context, recordID uint) error {
	if err := bc.businesses.SetStatus([]uint{recordID}, models.BusinessStatusActive); err != nil {
		return err
	}
	log.Infof("[Billing] Business %d activated by webhook", recordID)
	return nil
}
