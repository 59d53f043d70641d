package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
)

// Provider is the billing backend. Implementations must not retry on their own.
type Provider interface {
	// ListMethods returns the saved payment instruments of an account.
	ListMethods(ctx context.Context, accountRef string) ([]Method, error)
	// CreateAccount provisions a billing account and returns its reference.
	CreateAccount(ctx context.Context, email, name string) (string, error)
	// CreateSetupHandle opens a client-confirmable setup for a new instrument.
	CreateSetupHandle(ctx context.Context, accountRef string) (*SetupHandle, error)
	// ConfirmSetup confirms a setup with the instrument collected by the client
	// form and returns the instrument reference. Provider rejections come back
	// as *ConfirmationError.
	ConfirmSetup(ctx context.Context, handle SetupHandle, formRef string) (string, error)
	// Subscribe creates one subscription per item, stopping at the first failure.
	Subscribe(ctx context.Context, req SubscribeRequest) ([]Subscription, error)
	// ChangePlan moves an existing subscription to another price in place.
	ChangePlan(ctx context.Context, req ChangePlanRequest) (Subscription, error)
	// ListPrices returns the plan catalog.
	ListPrices(ctx context.Context) ([]plans.CatalogEntry, error)
	// FindSubscriptions lists the account's subscriptions for a price.
	FindSubscriptions(ctx context.Context, accountRef, priceID string) ([]Subscription, error)
	Name() string
}

// Method is a saved payment instrument summary.
type Method struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// SetupHandle is a one-shot, client-confirmable instrument setup.
type SetupHandle struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Spent        bool   `json:"spent"`
}

// SubscriptionItem binds a price to the record created for a category.
type SubscriptionItem struct {
	RecordID uint   `json:"record_id"`
	Category string `json:"category"`
	PriceID  string `json:"price_id"`
}

type SubscribeRequest struct {
	OwnerRef   string             `json:"owner_ref"`
	AccountRef string             `json:"account_ref"`
	MethodRef  string             `json:"method_ref"`
	Items      []SubscriptionItem `json:"items"`
	// AttemptRef identifies one payment attempt. Provider calls of the same
	// attempt and instrument are deduplicated; a new attempt is not.
	AttemptRef string `json:"attempt_ref,omitempty"`
}

// ChangePlanRequest swaps the price of a live subscription.
type ChangePlanRequest struct {
	SubscriptionID string           `json:"subscription_id"`
	OwnerRef       string           `json:"owner_ref"`
	MethodRef      string           `json:"method_ref"`
	Item           SubscriptionItem `json:"item"`
	AttemptRef     string           `json:"attempt_ref,omitempty"`
}

type Subscription struct {
	ID       string `json:"id"`
	OwnerRef string `json:"owner_ref,omitempty"`
	RecordID uint   `json:"record_id"`
	Category string `json:"category"`
	PriceID  string `json:"price_id"`
	Interval string `json:"interval"`
	Status   string `json:"status"`
}

var (
	ErrBillingAccountRequired = errors.New("billing account must be ensured before creating a setup handle")
	ErrNoSetupHandle          = errors.New("no setup handle has been requested")
	ErrHandleSpent            = errors.New("setup handle already used, request a new one")
	ErrUnknownMethod          = errors.New("payment method is not one of the saved methods")
	ErrNoInstrument           = errors.New("no payment method selected")
)

// BootstrapError means the billing account could not be provisioned. The
// new-card path cannot continue until EnsureBillingAccount is retried.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("billing account setup failed: %v", e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// RetryableError is a failure the user may retry as is.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s failed, try again: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// ConfirmationError carries the provider's rejection message verbatim.
type ConfirmationError struct {
	Message string
	Code    string
}

func (e *ConfirmationError) Error() string { return e.Message }

// SubscribeError reports which items were subscribed before the failure.
type SubscribeError struct {
	Created []Subscription
	Failed  SubscriptionItem
	Err     error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe %s for %q failed after %d created: %v", e.Failed.PriceID, e.Failed.Category, len(e.Created), e.Err)
}

func (e *SubscribeError) Unwrap() error { return e.Err }
