package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

// Command is a user intent consumed by Controller.Dispatch.
type Command interface {
	Name() string
}

type Advance struct{}

type Back struct{}

// Details replaces every non-media field of the draft.
type Details struct {
	Name       string                `json:"name"`
	Tagline    string                `json:"tagline"`
	Address    string                `json:"address"`
	Latitude   *float64              `json:"latitude"`
	Longitude  *float64              `json:"longitude"`
	Phone      string                `json:"phone"`
	Email      string                `json:"email"`
	Website    string                `json:"website"`
	Categories []string              `json:"categories"`
	Discounts  []submission.Discount `json:"discounts"`
}

type UpdateDetails struct {
	Details Details
}

// AddMedia stages a local file. A logo replaces the current one.
type AddMedia struct {
	Kind        media.Kind
	File        media.LocalFile
	Description string
}

type RemoveMedia struct {
	Kind  media.Kind
	Index int
}

// ReorderMedia lists the current gallery indexes in their new order.
type ReorderMedia struct {
	Kind  media.Kind
	Order []int
}

type DescribeMedia struct {
	Kind        media.Kind
	Index       int
	Description string
}

type SelectTier struct {
	Category string
	Tier     plans.Tier
}

type SelectBilling struct {
	Category string
	Cycle    plans.Cycle
}

type RefreshMethods struct{}

type SelectSavedMethod struct {
	MethodID string
}

type OpenNewCardForm struct{}

// RequestSetup bootstraps the billing account if needed and opens a setup handle.
type RequestSetup struct{}

type ConfirmNewCard struct {
	FormRef string
}

// SubmitPayment is the terminal action of the create and plan update modes.
type SubmitPayment struct{}

// Submit is the terminal action of the edit mode.
type Submit struct{}

func (Advance) Name() string           { return "advance" }
func (Back) Name() string              { return "back" }
func (UpdateDetails) Name() string     { return "update_details" }
func (AddMedia) Name() string          { return "add_media" }
func (RemoveMedia) Name() string       { return "remove_media" }
func (ReorderMedia) Name() string      { return "reorder_media" }
func (DescribeMedia) Name() string     { return "describe_media" }
func (SelectTier) Name() string        { return "select_tier" }
func (SelectBilling) Name() string     { return "select_billing" }
func (RefreshMethods) Name() string    { return "refresh_methods" }
func (SelectSavedMethod) Name() string { return "select_saved_method" }
func (OpenNewCardForm) Name() string   { return "open_new_card_form" }
func (RequestSetup) Name() string      { return "request_setup" }
func (ConfirmNewCard) Name() string    { return "confirm_new_card" }
func (SubmitPayment) Name() string     { return "submit_payment" }
func (Submit) Name() string            { return "submit" }

// Envelope is the wire form of a command.
type Envelope struct {
	Type        string   `json:"type"`
	Details     *Details `json:"details,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Index       int      `json:"index,omitempty"`
	Order       []int    `json:"order,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tier        string   `json:"tier,omitempty"`
	Cycle       string   `json:"cycle,omitempty"`
	MethodID    string   `json:"method_id,omitempty"`
	FormRef     string   `json:"form_ref,omitempty"`
}

// Decode turns an envelope into a command. AddMedia is not decodable since it
// needs an uploaded file.
func (e Envelope) Decode() (Command, error) {
	switch e.Type {
	case "advance":
		return Advance{}, nil
	case "back":
		return Back{}, nil
	case "update_details":
		if e.Details == nil {
			return nil, fmt.Errorf("update_details: details are required")
		}
		return UpdateDetails{Details: *e.Details}, nil
	case "remove_media", "reorder_media", "describe_media":
		kind, err := media.ParseKind(e.Kind)
		if err != nil {
			return nil, err
		}
		switch e.Type {
		case "remove_media":
			return RemoveMedia{Kind: kind, Index: e.Index}, nil
		case "reorder_media":
			return ReorderMedia{Kind: kind, Order: e.Order}, nil
		default:
			return DescribeMedia{Kind: kind, Index: e.Index, Description: e.Description}, nil
		}
	case "select_tier":
		tier, err := plans.ParseTier(e.Tier)
		if err != nil {
			return nil, err
		}
		return SelectTier{Category: e.Category, Tier: tier}, nil
	case "select_billing":
		cycle, err := plans.ParseCycle(e.Cycle)
		if err != nil {
			return nil, err
		}
		return SelectBilling{Category: e.Category, Cycle: cycle}, nil
	case "refresh_methods":
		return RefreshMethods{}, nil
	case "select_saved_method":
		return SelectSavedMethod{MethodID: e.MethodID}, nil
	case "open_new_card_form":
		return OpenNewCardForm{}, nil
	case "request_setup":
		return RequestSetup{}, nil
	case "confirm_new_card":
		return ConfirmNewCard{FormRef: e.FormRef}, nil
	case "submit_payment":
		return SubmitPayment{}, nil
	case "submit":
		return Submit{}, nil
	}
	return nil, fmt.Errorf("unknown command %q", e.Type)
}

// DecodeEnvelope parses a JSON command body.
func DecodeEnvelope(body []byte) (Command, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return e.Decode()
}
