package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// Interaction records which payment UI the user touched last.
type Interaction string

const (
	InteractionNone    Interaction = ""
	InteractionSaved   Interaction = "saved"
	InteractionNewCard Interaction = "new_card"
)

// PaymentState is the serialisable state of a Coordinator.
type PaymentState struct {
	OwnerRef          string       `json:"owner_ref"`
	AccountRef        string       `json:"account_ref,omitempty"`
	AccountReady      bool         `json:"account_ready"`
	SavedMethods      []Method     `json:"saved_methods"`
	SelectedMethodID  string       `json:"selected_method_id,omitempty"`
	NewCardOpen       bool         `json:"new_card_open"`
	Handle            *SetupHandle `json:"handle,omitempty"`
	ConfirmedMethodID string       `json:"confirmed_method_id,omitempty"`
	LastInteraction   Interaction  `json:"last_interaction,omitempty"`
}

// Coordinator acquires a payment instrument for one workflow, either a saved
// method or a freshly confirmed card. It is not safe for concurrent use.
type Coordinator struct {
	provider Provider
	accounts AccountStore
	state    PaymentState
}

func NewCoordinator(provider Provider, accounts AccountStore, ownerRef string) *Coordinator {
	return &Coordinator{
		provider: provider,
		accounts: accounts,
		state:    PaymentState{OwnerRef: ownerRef},
	}
}

// RestoreCoordinator rebuilds a coordinator from a stored state.
func RestoreCoordinator(provider Provider, accounts AccountStore, st PaymentState) *Coordinator {
	return &Coordinator{provider: provider, accounts: accounts, state: st}
}

func (c *Coordinator) State() PaymentState {
	st := c.state
	st.SavedMethods = append([]Method(nil), c.state.SavedMethods...)
	if c.state.Handle != nil {
		h := *c.state.Handle
		st.Handle = &h
	}
	return st
}

func (c *Coordinator) resolveAccount(ctx context.Context) error {
	if c.state.AccountRef != "" || c.accounts == nil {
		return nil
	}
	ref, err := c.accounts.AccountRef(ctx, c.state.OwnerRef)
	if err != nil {
		return err
	}
	c.state.AccountRef = ref
	return nil
}

// ListSavedMethods returns the saved instruments; an owner without an account
// simply has none.
func (c *Coordinator) ListSavedMethods(ctx context.Context) ([]Method, error) {
	if err := c.resolveAccount(ctx); err != nil {
		return nil, err
	}
	if c.state.AccountRef == "" {
		c.state.SavedMethods = nil
		return nil, nil
	}
	methods, err := c.provider.ListMethods(ctx, c.state.AccountRef)
	if err != nil {
		return nil, err
	}
	c.state.SavedMethods = methods
	return append([]Method(nil), methods...), nil
}

// EnsureBillingAccount makes sure a billing account exists before the new-card
// path runs. It is skipped when saved methods exist and reuses a linked account.
func (c *Coordinator) EnsureBillingAccount(ctx context.Context, email, name string) error {
	if len(c.state.SavedMethods) > 0 {
		c.state.AccountReady = true
		return nil
	}
	if err := c.resolveAccount(ctx); err != nil {
		return &BootstrapError{Err: err}
	}
	if c.state.AccountRef != "" {
		c.state.AccountReady = true
		return nil
	}

	ref, err := c.provider.CreateAccount(ctx, email, name)
	if err != nil {
		log.Errorf("[Billing] Account bootstrap failed for %s: %v", c.state.OwnerRef, err)
		return &BootstrapError{Err: err}
	}
	if c.accounts != nil {
		if err := c.accounts.LinkAccount(ctx, c.state.OwnerRef, ref, email); err != nil {
			return &BootstrapError{Err: fmt.Errorf("link account: %w", err)}
		}
	}
	c.state.AccountRef = ref
	c.state.AccountReady = true
	return nil
}

// CreateSetupHandle opens a new setup for the account. Any earlier unconfirmed
// handle is dropped.
func (c *Coordinator) CreateSetupHandle(ctx context.Context) (*SetupHandle, error) {
	if !c.state.AccountReady || c.state.AccountRef == "" {
		return nil, ErrBillingAccountRequired
	}
	h, err := c.provider.CreateSetupHandle(ctx, c.state.AccountRef)
	if err != nil {
		return nil, &RetryableError{Op: "create setup handle", Err: err}
	}
	c.state.Handle = h
	c.state.ConfirmedMethodID = ""
	out := *h
	return &out, nil
}

// ConfirmSetup confirms the open handle with the instrument from the card form.
// A provider rejection spends the handle; a transport failure leaves it usable.
func (c *Coordinator) ConfirmSetup(ctx context.Context, formRef string) (string, error) {
	h := c.state.Handle
	if h == nil {
		return "", ErrNoSetupHandle
	}
	if h.Spent {
		return "", ErrHandleSpent
	}

	ref, err := c.provider.ConfirmSetup(ctx, *h, formRef)
	if err != nil {
		var rejected *ConfirmationError
		if errors.As(err, &rejected) {
			h.Spent = true
		}
		return "", err
	}

	h.Spent = true
	h.Status = "succeeded"
	c.state.ConfirmedMethodID = ref
	c.state.NewCardOpen = true
	c.state.LastInteraction = InteractionNewCard
	return ref, nil
}

// SelectSaved picks one of the listed saved methods.
func (c *Coordinator) SelectSaved(methodID string) error {
	for _, m := range c.state.SavedMethods {
		if m.ID == methodID {
			c.state.SelectedMethodID = methodID
			c.state.NewCardOpen = false
			c.state.LastInteraction = InteractionSaved
			return nil
		}
	}
	return ErrUnknownMethod
}

func (c *Coordinator) OpenNewCardForm() {
	c.state.NewCardOpen = true
	c.state.LastInteraction = InteractionNewCard
}

// ResolveInstrument returns the instrument to charge. The UI last interacted
// with decides between the saved selection and the confirmed card.
func (c *Coordinator) ResolveInstrument() (string, error) {
	switch c.state.LastInteraction {
	case InteractionNewCard:
		if c.state.ConfirmedMethodID != "" {
			return c.state.ConfirmedMethodID, nil
		}
	case InteractionSaved:
		if c.state.SelectedMethodID != "" {
			return c.state.SelectedMethodID, nil
		}
	}
	return "", ErrNoInstrument
}

func (c *Coordinator) AccountRef() string { return c.state.AccountRef }

// Discard drops the open setup handle without revoking it at the provider.
func (c *Coordinator) Discard() {
	if c.state.Handle != nil && !c.state.Handle.Spent {
		log.Infof("[Billing] Dropping unconfirmed setup handle %s", c.state.Handle.ID)
	}
	c.state.Handle = nil
}
