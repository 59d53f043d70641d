package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ListingHub/app/models"
)

// AccountStore keeps the owner to billing account link.
type AccountStore interface {
	// AccountRef returns "" when the owner has no linked account.
	AccountRef(ctx context.Context, ownerRef string) (string, error)
	LinkAccount(ctx context.Context, ownerRef, accountRef, email string) error
}

// Service persists provider state locally.
type Service struct {
	repo     Repository
	provider string
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, provider string) *Service {
	return &Service{repo: repo, provider: provider}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), ProviderStripe)
}

func (s *Service) AccountRef(ctx context.Context, ownerRef string) (string, error) {
	_ = ctx
	if strings.TrimSpace(ownerRef) == "" {
		return "", nil
	}
	account, err := s.repo.GetBillingAccountByOwner(ownerRef, s.provider)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return account.ProviderAccountID, nil
}

func (s *Service) LinkAccount(ctx context.Context, ownerRef, accountRef, email string) error {
	_ = ctx
	owner := strings.TrimSpace(ownerRef)
	ref := strings.TrimSpace(accountRef)
	if owner == "" || ref == "" {
		return errors.New("owner_ref and provider_account_id are required")
	}
	return s.repo.UpsertBillingAccount(&models.BillingAccount{
		OwnerRef:          owner,
		Provider:          s.provider,
		ProviderAccountID: ref,
		Email:             strings.TrimSpace(email),
	})
}

// SyncSubscription upserts provider subscription data for its business row.
func (s *Service) SyncSubscription(ctx context.Context, ownerRef string, sub Subscription) (*models.BillingSubscription, error) {
	_ = ctx
	if sub.RecordID == 0 || strings.TrimSpace(sub.ID) == "" {
		return nil, errors.New("record_id and provider_subscription_id are required")
	}
	status := strings.ToLower(strings.TrimSpace(sub.Status))
	if status == "" {
		status = models.BillingStatusActive
	}

	row := &models.BillingSubscription{
		BusinessID:             sub.RecordID,
		OwnerRef:               ownerRef,
		Provider:               s.provider,
		ProviderSubscriptionID: sub.ID,
		PriceID:                sub.PriceID,
		Category:               sub.Category,
		BillingInterval:        normalizeInterval(sub.Interval),
		Status:                 status,
	}
	if err := s.repo.UpsertSubscription(row); err != nil {
		return nil, err
	}
	return row, nil
}

// ActiveSubscriptionID returns the provider id of the newest live
// subscription of a business row, or "" when none is live.
func (s *Service) ActiveSubscriptionID(ctx context.Context, businessID uint) (string, error) {
	_ = ctx
	rows, err := s.repo.ListSubscriptionsByBusiness(businessID)
	if err != nil {
		return "", err
	}
	var best *models.BillingSubscription
	for i := range rows {
		row := &rows[i]
		if row.Provider != s.provider || !IsActiveStatus(row.Status) {
			continue
		}
		if best == nil || row.ID > best.ID {
			best = row
		}
	}
	if best == nil {
		return "", nil
	}
	return best.ProviderSubscriptionID, nil
}

// RecordWebhookEvent persists a verified event. created is false for redeliveries.
func (s *Service) RecordWebhookEvent(ctx context.Context, ev stripe.Event) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	if strings.TrimSpace(ev.ID) == "" {
		return false, nil, errors.New("event id is required")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, nil, err
	}
	event := &models.BillingWebhookEvent{
		Provider:        s.provider,
		ProviderEventID: ev.ID,
		EventType:       string(ev.Type),
		PayloadJSON:     string(payload),
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// HandleEvent syncs subscription events and calls activate for every business
// whose subscription became live. Other event types are ignored.
func (s *Service) HandleEvent(ctx context.Context, ev stripe.Event, activate func(ctx context.Context, recordID uint) error) error {
	switch ev.Type {
	case "customer.subscription.created", "customer.subscription.updated":
	default:
		return nil
	}
	if ev.Data == nil {
		return errors.New("event has no data")
	}

	var raw stripe.Subscription
	if err := json.Unmarshal(ev.Data.Raw, &raw); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	sub := subscriptionFromStripe(&raw)
	if sub.RecordID == 0 {
		log.Warnf("[Billing] Subscription %s has no record_id metadata, skipping", sub.ID)
		return nil
	}

	if _, err := s.SyncSubscription(ctx, sub.OwnerRef, sub); err != nil {
		return err
	}
	if IsActiveStatus(sub.Status) && activate != nil {
		return activate(ctx, sub.RecordID)
	}
	return nil
}
