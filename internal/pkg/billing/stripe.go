package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
)

const ProviderStripe = "stripe"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL points the client at stripe-mock or another compatible endpoint.
	APIURL string
}

func LoadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		APIURL:        strings.TrimSpace(env.GetEnv("STRIPE_API_URL", "")),
	}
}

func (c StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}
	return nil
}

// StripeProvider implements Provider on top of stripe-go.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var backends *stripe.Backends
	if cfg.APIURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL: stripe.String(cfg.APIURL),
			}),
		}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &StripeProvider{api: api}, nil
}

func (p *StripeProvider) Name() string { return ProviderStripe }

func (p *StripeProvider) ListMethods(ctx context.Context, accountRef string) ([]Method, error) {
	if accountRef == "" {
		return nil, nil
	}
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(accountRef),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	var out []Method
	it := p.api.PaymentMethods.List(params)
	for it.Next() {
		out = append(out, methodFromStripe(it.PaymentMethod()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return out, nil
}

func (p *StripeProvider) CreateAccount(ctx context.Context, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	log.Infof("[Billing] Created stripe customer %s", c.ID)
	return c.ID, nil
}

func (p *StripeProvider) CreateSetupHandle(ctx context.Context, accountRef string) (*SetupHandle, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(accountRef),
		PaymentMethodTypes: stripe.StringSlice([]string{string(stripe.PaymentMethodTypeCard)}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.Context = ctx

	si, err := p.api.SetupIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create setup intent: %w", err)
	}
	return &SetupHandle{
		ID:           si.ID,
		ClientSecret: si.ClientSecret,
		Status:       string(si.Status),
	}, nil
}

func (p *StripeProvider) ConfirmSetup(ctx context.Context, handle SetupHandle, formRef string) (string, error) {
	id := handle.ID
	if id == "" {
		id = SetupIDFromSecret(handle.ClientSecret)
	}
	params := &stripe.SetupIntentConfirmParams{
		PaymentMethod: stripe.String(formRef),
	}
	params.Context = ctx

	si, err := p.api.SetupIntents.Confirm(id, params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	if si.Status != stripe.SetupIntentStatusSucceeded {
		return "", &ConfirmationError{
			Message: "The card could not be confirmed (" + string(si.Status) + ").",
			Code:    string(si.Status),
		}
	}
	if si.PaymentMethod == nil {
		return formRef, nil
	}
	return si.PaymentMethod.ID, nil
}

func (p *StripeProvider) Subscribe(ctx context.Context, req SubscribeRequest) ([]Subscription, error) {
	created := make([]Subscription, 0, len(req.Items))
	for _, item := range req.Items {
		params := &stripe.SubscriptionParams{
			Customer:             stripe.String(req.AccountRef),
			DefaultPaymentMethod: stripe.String(req.MethodRef),
			PaymentBehavior:      stripe.String("error_if_incomplete"),
			Items: []*stripe.SubscriptionItemsParams{
				{Price: stripe.String(item.PriceID)},
			},
		}
		params.AddMetadata("record_id", strconv.FormatUint(uint64(item.RecordID), 10))
		params.AddMetadata("category", item.Category)
		params.AddMetadata("owner_ref", req.OwnerRef)
		if key := idempotencyKey("subscribe", req.AttemptRef, req.MethodRef, item); key != "" {
			params.SetIdempotencyKey(key)
		}
		params.Context = ctx

		sub, err := p.api.Subscriptions.New(params)
		if err != nil {
			return created, &SubscribeError{Created: created, Failed: item, Err: classifyStripeError(err)}
		}
		s := subscriptionFromStripe(sub)
		s.RecordID = item.RecordID
		s.Category = item.Category
		s.OwnerRef = req.OwnerRef
		created = append(created, s)
	}
	return created, nil
}

// ChangePlan replaces the price on the subscription's single item. The
// difference is invoiced right away and must be paid for the change to apply.
func (p *StripeProvider) ChangePlan(ctx context.Context, req ChangePlanRequest) (Subscription, error) {
	get := &stripe.SubscriptionParams{}
	get.Context = ctx
	current, err := p.api.Subscriptions.Get(req.SubscriptionID, get)
	if err != nil {
		return Subscription{}, classifyStripeError(err)
	}
	itemID := subscriptionItemID(current)
	if itemID == "" {
		return Subscription{}, fmt.Errorf("subscription %s has no item to change", req.SubscriptionID)
	}

	params := &stripe.SubscriptionParams{
		DefaultPaymentMethod: stripe.String(req.MethodRef),
		PaymentBehavior:      stripe.String("error_if_incomplete"),
		ProrationBehavior:    stripe.String("always_invoice"),
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(itemID), Price: stripe.String(req.Item.PriceID)},
		},
	}
	params.AddMetadata("record_id", strconv.FormatUint(uint64(req.Item.RecordID), 10))
	params.AddMetadata("category", req.Item.Category)
	params.AddMetadata("owner_ref", req.OwnerRef)
	if key := idempotencyKey("change-plan", req.AttemptRef, req.MethodRef, req.Item); key != "" {
		params.SetIdempotencyKey(key)
	}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Update(req.SubscriptionID, params)
	if err != nil {
		return Subscription{}, classifyStripeError(err)
	}
	s := subscriptionFromStripe(sub)
	s.RecordID = req.Item.RecordID
	s.Category = req.Item.Category
	s.OwnerRef = req.OwnerRef
	log.Infof("[Billing] Moved subscription %s of record %d to %s", s.ID, s.RecordID, req.Item.PriceID)
	return s, nil
}

func (p *StripeProvider) ListPrices(ctx context.Context) ([]plans.CatalogEntry, error) {
	params := &stripe.PriceListParams{
		Active: stripe.Bool(true),
		Type:   stripe.String(string(stripe.PriceTypeRecurring)),
	}
	params.AddExpand("data.product")
	params.Context = ctx

	var out []plans.CatalogEntry
	it := p.api.Prices.List(params)
	for it.Next() {
		out = append(out, entryFromPrice(it.Price()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	return out, nil
}

func (p *StripeProvider) FindSubscriptions(ctx context.Context, accountRef, priceID string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(accountRef),
		Price:    stripe.String(priceID),
	}
	params.Context = ctx

	var out []Subscription
	it := p.api.Subscriptions.List(params)
	for it.Next() {
		out = append(out, subscriptionFromStripe(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out, nil
}

// idempotencyKey scopes a write to one attempt, one instrument and one item.
// Without an attempt ref the call is sent without a key.
func idempotencyKey(op, attemptRef, methodRef string, item SubscriptionItem) string {
	if attemptRef == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(attemptRef + "|" + methodRef))
	return fmt.Sprintf("%s-%d-%s-%s", op, item.RecordID, item.PriceID, hex.EncodeToString(sum[:8]))
}

func subscriptionItemID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil {
		return ""
	}
	for _, it := range sub.Items.Data {
		if it != nil && it.ID != "" {
			return it.ID
		}
	}
	return ""
}

// SetupIDFromSecret derives the setup intent id from its client secret.
func SetupIDFromSecret(secret string) string {
	if i := strings.Index(secret, "_secret_"); i > 0 {
		return secret[:i]
	}
	return secret
}

// classifyStripeError turns card and request rejections into ConfirmationError
// and passes everything else through.
func classifyStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch se.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return &ConfirmationError{Message: se.Msg, Code: string(se.Code)}
		}
	}
	return err
}

func methodFromStripe(pm *stripe.PaymentMethod) Method {
	m := Method{ID: pm.ID}
	if pm.Card != nil {
		m.Brand = fmt.Sprint(pm.Card.Brand)
		m.Last4 = pm.Card.Last4
		m.ExpMonth = int(pm.Card.ExpMonth)
		m.ExpYear = int(pm.Card.ExpYear)
	}
	return m
}

func entryFromPrice(pr *stripe.Price) plans.CatalogEntry {
	e := plans.CatalogEntry{
		Price:   pr.UnitAmount,
		PriceID: pr.ID,
		Name:    pr.Nickname,
	}
	if pr.Product != nil {
		e.ProductID = pr.Product.ID
		if pr.Product.Name != "" {
			e.Name = strings.TrimSpace(pr.Product.Name + " " + pr.Nickname)
		}
	}
	return e
}

func subscriptionFromStripe(sub *stripe.Subscription) Subscription {
	s := Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		s.PriceID = price.ID
		if price.Recurring != nil {
			s.Interval = normalizeInterval(string(price.Recurring.Interval))
		}
	}
	if raw, ok := sub.Metadata["record_id"]; ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			s.RecordID = uint(id)
		}
	}
	s.Category = sub.Metadata["category"]
	s.OwnerRef = sub.Metadata["owner_ref"]
	return s
}
