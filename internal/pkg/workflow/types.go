package workflow

import (
	"errors"
	"strings"

	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

// Mode selects the step sequence of a workflow.
type Mode string

const (
	ModeCreate     Mode = "create"
	ModeUpdatePlan Mode = "update_plan"
	ModeEdit       Mode = "edit"
)

func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeCreate, ModeUpdatePlan, ModeEdit:
		return m, nil
	}
	return "", ErrUnknownMode
}

// NeedsRecord reports whether the mode works on an existing business.
func (m Mode) NeedsRecord() bool { return m != ModeCreate }

type Step string

const (
	StepDetails       Step = "DETAILS"
	StepPlanSelection Step = "PLAN_SELECTION"
	StepSummary       Step = "SUMMARY"
	StepPayment       Step = "PAYMENT"
)

// Categories accepted in a draft.
var Categories = []string{"cafe", "restaurant", "bar", "bakery", "hotel", "shop", "service"}

func isKnownCategory(c string) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

type SelectionKind string

const (
	SelectionSingle   SelectionKind = "single"
	SelectionMultiple SelectionKind = "multiple"
)

// CategorySelection holds either one category (edit, plan update) or several
// (create). Consumers read it through List.
type CategorySelection struct {
	Kind   SelectionKind `json:"kind"`
	Values []string      `json:"values"`
}

func Single(category string) CategorySelection {
	s := CategorySelection{Kind: SelectionSingle}
	if c := normalizeCategory(category); c != "" {
		s.Values = []string{c}
	}
	return s
}

func Multiple(categories ...string) CategorySelection {
	return CategorySelection{Kind: SelectionMultiple, Values: normalizeCategories(categories)}
}

// List returns the selected categories, never more than one for Single.
func (s CategorySelection) List() []string {
	if s.Kind == SelectionSingle && len(s.Values) > 1 {
		return []string{s.Values[0]}
	}
	return append([]string(nil), s.Values...)
}

func (s CategorySelection) Len() int { return len(s.List()) }

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func normalizeCategories(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = normalizeCategory(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Draft is the editable business under construction.
type Draft struct {
	Name       string                `json:"name"`
	Tagline    string                `json:"tagline"`
	Address    string                `json:"address"`
	Latitude   *float64              `json:"latitude"`
	Longitude  *float64              `json:"longitude"`
	Phone      string                `json:"phone"`
	Email      string                `json:"email"`
	Website    string                `json:"website"`
	Categories CategorySelection     `json:"categories"`
	Logo       *media.Asset          `json:"logo,omitempty"`
	Photos     []media.Asset         `json:"photos"`
	Menu       []media.Asset         `json:"menu"`
	Discounts  []submission.Discount `json:"discounts"`
}

// Fields returns the non-media, non-payment part of the draft.
func (d Draft) Fields() submission.Fields {
	f := submission.Fields{
		Name:      d.Name,
		Tagline:   d.Tagline,
		Address:   d.Address,
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Phone:     d.Phone,
		Email:     d.Email,
		Website:   d.Website,
		Discounts: append([]submission.Discount(nil), d.Discounts...),
	}
	if d.Categories.Kind == SelectionSingle {
		if l := d.Categories.List(); len(l) == 1 {
			f.Category = l[0]
		}
	}
	return f
}

func (d Draft) MediaSet() media.Set {
	s := media.Set{
		Photos: append([]media.Asset(nil), d.Photos...),
		Menu:   append([]media.Asset(nil), d.Menu...),
	}
	if d.Logo != nil {
		l := *d.Logo
		s.Logo = &l
	}
	return s
}

// PendingFiles lists the staged local files referenced by the draft.
func (d Draft) PendingFiles() []string {
	var out []string
	if d.Logo != nil && d.Logo.IsPending() {
		out = append(out, d.Logo.Local.Path)
	}
	for _, list := range [][]media.Asset{d.Photos, d.Menu} {
		for _, a := range list {
			if a.IsPending() {
				out = append(out, a.Local.Path)
			}
		}
	}
	return out
}

func draftFromRecord(rec *submission.Record, categories CategorySelection) Draft {
	f := rec.Fields
	d := Draft{
		Name:       f.Name,
		Tagline:    f.Tagline,
		Address:    f.Address,
		Latitude:   f.Latitude,
		Longitude:  f.Longitude,
		Phone:      f.Phone,
		Email:      f.Email,
		Website:    f.Website,
		Categories: categories,
		Discounts:  append([]submission.Discount(nil), f.Discounts...),
	}
	m := rec.Media
	if m.Logo != nil {
		l := *m.Logo
		d.Logo = &l
	}
	d.Photos = append([]media.Asset(nil), m.Photos...)
	d.Menu = append([]media.Asset(nil), m.Menu...)
	return d
}

var (
	ErrUnknownMode       = errors.New("unknown workflow mode")
	ErrBusy              = errors.New("another operation is in progress for this workflow")
	ErrCommandNotAllowed = errors.New("command is not allowed in the current step")
	ErrNoTransition      = errors.New("no step in that direction")
	ErrCompleted         = errors.New("workflow already completed")
	ErrClosed            = errors.New("workflow is closed after a payment failure")
	ErrNothingToPay      = errors.New("no resolved plan to pay for")
	ErrNotFound          = errors.New("workflow not found")
	ErrRecordRequired    = errors.New("record id is required for this mode")
	ErrMediaIndex        = errors.New("media index out of range")
	ErrMediaLimit        = errors.New("gallery is full")
	ErrBadOrder          = errors.New("order must be a permutation of the gallery")
	// ErrLogoRequired rejects removing a saved logo. It can only be replaced.
	ErrLogoRequired = errors.New("a saved logo can be replaced but not removed")
)
