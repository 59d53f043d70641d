package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

// MaxGalleryItems caps the photo and the menu gallery.
const MaxGalleryItems = 20

var ErrCategoryNotInDraft = errors.New("category is not part of the draft")

// Submitter runs the terminal flows of a workflow.
type Submitter interface {
	Create(ctx context.Context, req submission.CreateRequest) (*submission.Result, error)
	Update(ctx context.Context, req submission.UpdateRequest) (*submission.Result, error)
	UpdatePlan(ctx context.Context, req submission.PlanRequest) (*submission.Result, error)
}

// Deps are the collaborators shared by every controller.
type Deps struct {
	Provider  billing.Provider
	Accounts  billing.AccountStore
	Submitter Submitter
}

// Controller is the step state machine of one onboarding workflow. Commands
// are serialised; a command arriving while another runs fails with ErrBusy.
type Controller struct {
	id       string
	ownerRef string
	mode     Mode
	step     Step
	recordID uint

	draft         Draft
	original      submission.Fields
	previousMedia media.Set

	matrix    *plans.Matrix
	payment   *billing.Coordinator
	submitter Submitter

	busy      atomic.Bool
	attempts  int
	completed bool
	closed    bool
	result    *submission.Result
}

// NewController opens a create workflow.
func NewController(id, ownerRef string, catalog plans.Catalog, deps Deps) *Controller {
	return &Controller{
		id:        id,
		ownerRef:  ownerRef,
		mode:      ModeCreate,
		step:      InitialStep(ModeCreate),
		draft:     Draft{Categories: Multiple()},
		matrix:    plans.NewMatrix(catalog),
		payment:   billing.NewCoordinator(deps.Provider, deps.Accounts, ownerRef),
		submitter: deps.Submitter,
	}
}

// NewRecordController opens an edit or plan update workflow on an existing record.
func NewRecordController(id, ownerRef string, mode Mode, rec *submission.Record, catalog plans.Catalog, deps Deps) (*Controller, error) {
	if !mode.NeedsRecord() {
		return nil, fmt.Errorf("%w: %s does not take a record", ErrUnknownMode, mode)
	}
	if rec == nil || rec.ID == 0 {
		return nil, ErrRecordRequired
	}
	c := &Controller{
		id:        id,
		ownerRef:  ownerRef,
		mode:      mode,
		step:      InitialStep(mode),
		recordID:  rec.ID,
		draft:     draftFromRecord(rec, Single(rec.Fields.Category)),
		matrix:    plans.NewMatrix(catalog),
		payment:   billing.NewCoordinator(deps.Provider, deps.Accounts, ownerRef),
		submitter: deps.Submitter,
	}
	c.matrix.Ensure(c.draft.Categories.List()...)
	if mode == ModeEdit {
		c.original = rec.Fields
		c.previousMedia = rec.Media
	}
	if mode == ModeUpdatePlan {
		if tier, err := plans.ParseTier(rec.Tier); err == nil {
			for _, cat := range c.draft.Categories.List() {
				_ = c.matrix.SelectTier(cat, tier)
			}
		}
	}
	return c, nil
}

func (c *Controller) ID() string       { return c.id }
func (c *Controller) OwnerRef() string { return c.ownerRef }
func (c *Controller) Mode() Mode       { return c.mode }
func (c *Controller) Step() Step       { return c.step }
func (c *Controller) Completed() bool  { return c.completed }
func (c *Controller) Closed() bool     { return c.closed }

// Result is set once the workflow completed or closed.
func (c *Controller) Result() *submission.Result { return c.result }

// Draft returns a copy of the current draft.
func (c *Controller) Draft() Draft {
	d := c.draft
	d.Categories = CategorySelection{Kind: c.draft.Categories.Kind, Values: c.draft.Categories.List()}
	m := c.draft.MediaSet()
	d.Logo, d.Photos, d.Menu = m.Logo, m.Photos, m.Menu
	d.Discounts = append([]submission.Discount(nil), c.draft.Discounts...)
	return d
}

// Dispatch runs one command. A failing guard or command leaves the step unchanged.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	if c.completed {
		return ErrCompleted
	}
	if c.closed {
		return ErrClosed
	}
	if cmd == nil {
		return fmt.Errorf("%w: empty command", ErrCommandNotAllowed)
	}
	if !allowed(cmd.Name(), c.mode, c.step) {
		return fmt.Errorf("%w: %s in %s", ErrCommandNotAllowed, cmd.Name(), c.step)
	}

	switch cmd := cmd.(type) {
	case Advance:
		return c.advance(ctx)
	case Back:
		return c.back()
	case UpdateDetails:
		return c.updateDetails(cmd.Details)
	case AddMedia:
		return c.addMedia(cmd)
	case RemoveMedia:
		return c.removeMedia(cmd.Kind, cmd.Index)
	case ReorderMedia:
		return c.reorderMedia(cmd.Kind, cmd.Order)
	case DescribeMedia:
		return c.describeMedia(cmd.Kind, cmd.Index, cmd.Description)
	case SelectTier:
		if err := c.requireCategory(cmd.Category); err != nil {
			return err
		}
		return c.matrix.SelectTier(normalizeCategory(cmd.Category), cmd.Tier)
	case SelectBilling:
		if err := c.requireCategory(cmd.Category); err != nil {
			return err
		}
		return c.matrix.SelectBilling(normalizeCategory(cmd.Category), cmd.Cycle)
	case RefreshMethods:
		_, err := c.payment.ListSavedMethods(ctx)
		return err
	case SelectSavedMethod:
		return c.payment.SelectSaved(cmd.MethodID)
	case OpenNewCardForm:
		c.payment.OpenNewCardForm()
		return nil
	case RequestSetup:
		return c.requestSetup(ctx)
	case ConfirmNewCard:
		_, err := c.payment.ConfirmSetup(ctx, cmd.FormRef)
		return err
	case SubmitPayment:
		return c.submitPayment(ctx)
	case Submit:
		return c.submitEdit(ctx)
	}
	return fmt.Errorf("%w: %s", ErrCommandNotAllowed, cmd.Name())
}

func (c *Controller) categories() []string {
	return c.draft.Categories.List()
}

func (c *Controller) requireCategory(category string) error {
	want := normalizeCategory(category)
	for _, cat := range c.categories() {
		if cat == want {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrCategoryNotInDraft, category)
}

func (c *Controller) advance(ctx context.Context) error {
	to, ok := next(c.mode, c.step)
	if !ok {
		return ErrNoTransition
	}
	if err := c.guard(); err != nil {
		return err
	}
	if to == StepPayment {
		if _, err := c.payment.ListSavedMethods(ctx); err != nil {
			log.Warnf("[Workflow] %s: listing saved methods failed: %v", c.id, err)
		}
	}
	c.step = to
	return nil
}

func (c *Controller) guard() error {
	switch c.step {
	case StepDetails:
		if err := validateDetails(c.draft); err != nil {
			return err
		}
		c.matrix.Ensure(c.categories()...)
	case StepPlanSelection:
		return c.matrix.Validate(c.categories())
	case StepSummary:
		if len(c.matrix.Resolved(c.categories())) == 0 {
			return ErrNothingToPay
		}
	}
	return nil
}

func (c *Controller) back() error {
	to, ok := prev(c.mode, c.step)
	if !ok {
		return ErrNoTransition
	}
	c.step = to
	return nil
}

func (c *Controller) updateDetails(d Details) error {
	var cats CategorySelection
	if c.draft.Categories.Kind == SelectionSingle {
		list := normalizeCategories(d.Categories)
		if len(list) > 1 {
			return &ValidationError{Fields: map[string]string{"categories": "exactly one category is allowed"}}
		}
		cats = Single("")
		cats.Values = list
	} else {
		cats = Multiple(d.Categories...)
	}

	c.draft.Name = d.Name
	c.draft.Tagline = d.Tagline
	c.draft.Address = d.Address
	c.draft.Latitude = d.Latitude
	c.draft.Longitude = d.Longitude
	c.draft.Phone = d.Phone
	c.draft.Email = d.Email
	c.draft.Website = d.Website
	c.draft.Categories = cats
	c.draft.Discounts = append([]submission.Discount(nil), d.Discounts...)
	c.matrix.Ensure(cats.List()...)
	return nil
}

func (c *Controller) gallery(kind media.Kind) (*[]media.Asset, error) {
	switch kind {
	case media.KindPhoto:
		return &c.draft.Photos, nil
	case media.KindMenu:
		return &c.draft.Menu, nil
	}
	return nil, fmt.Errorf("unknown media kind %q", kind)
}

func (c *Controller) addMedia(cmd AddMedia) error {
	if cmd.File.Path == "" {
		return media.ErrEmptyAsset
	}
	file := cmd.File
	if cmd.Kind == media.KindLogo {
		c.draft.Logo = &media.Asset{Local: &file, Description: cmd.Description}
		return nil
	}
	list, err := c.gallery(cmd.Kind)
	if err != nil {
		return err
	}
	if len(*list) >= MaxGalleryItems {
		return ErrMediaLimit
	}
	maxOrder := 0
	for _, a := range *list {
		if a.SortOrder > maxOrder {
			maxOrder = a.SortOrder
		}
	}
	*list = append(*list, media.Asset{Local: &file, SortOrder: maxOrder + 1, Description: cmd.Description})
	return nil
}

func (c *Controller) removeMedia(kind media.Kind, index int) error {
	if kind == media.KindLogo {
		if c.draft.Logo != nil && c.draft.Logo.IsPersisted() {
			return ErrLogoRequired
		}
		// dropping a replacement falls back to the saved logo
		c.draft.Logo = nil
		if saved := c.previousMedia.Logo; saved != nil {
			logo := *saved
			c.draft.Logo = &logo
		}
		return nil
	}
	list, err := c.gallery(kind)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(*list) {
		return ErrMediaIndex
	}
	out := make([]media.Asset, 0, len(*list)-1)
	out = append(out, (*list)[:index]...)
	*list = append(out, (*list)[index+1:]...)
	return nil
}

func (c *Controller) reorderMedia(kind media.Kind, order []int) error {
	list, err := c.gallery(kind)
	if err != nil {
		return err
	}
	if len(order) != len(*list) {
		return ErrBadOrder
	}
	seen := make([]bool, len(order))
	out := make([]media.Asset, 0, len(order))
	for pos, idx := range order {
		if idx < 0 || idx >= len(order) || seen[idx] {
			return ErrBadOrder
		}
		seen[idx] = true
		a := (*list)[idx]
		a.SortOrder = pos + 1
		out = append(out, a)
	}
	*list = out
	return nil
}

func (c *Controller) describeMedia(kind media.Kind, index int, description string) error {
	if kind == media.KindLogo {
		if c.draft.Logo == nil {
			return ErrMediaIndex
		}
		c.draft.Logo.Description = description
		return nil
	}
	list, err := c.gallery(kind)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(*list) {
		return ErrMediaIndex
	}
	(*list)[index].Description = description
	return nil
}

// requestSetup opens the new-card form, bootstraps the billing account and
// creates a setup handle, in that order.
func (c *Controller) requestSetup(ctx context.Context) error {
	c.payment.OpenNewCardForm()
	if err := c.payment.EnsureBillingAccount(ctx, c.draft.Email, c.draft.Name); err != nil {
		return err
	}
	_, err := c.payment.CreateSetupHandle(ctx)
	return err
}

func (c *Controller) submitPayment(ctx context.Context) error {
	if c.submitter == nil {
		return errors.New("no submitter configured")
	}
	lines := c.matrix.Resolved(c.categories())
	if len(lines) == 0 {
		return ErrNothingToPay
	}
	instrument, err := c.payment.ResolveInstrument()
	if err != nil {
		return err
	}
	c.attempts++
	attempt := fmt.Sprintf("%s-%d", c.id, c.attempts)

	var res *submission.Result
	switch c.mode {
	case ModeCreate:
		res, err = c.submitter.Create(ctx, submission.CreateRequest{
			OwnerRef:   c.ownerRef,
			AccountRef: c.payment.AccountRef(),
			Instrument: instrument,
			AttemptRef: attempt,
			Fields:     c.draft.Fields(),
			Lines:      lines,
			Media:      c.draft.MediaSet(),
		})
	case ModeUpdatePlan:
		res, err = c.submitter.UpdatePlan(ctx, submission.PlanRequest{
			OwnerRef:   c.ownerRef,
			AccountRef: c.payment.AccountRef(),
			Instrument: instrument,
			AttemptRef: attempt,
			RecordID:   c.recordID,
			Line:       lines[0],
		})
	default:
		return fmt.Errorf("%w: submit_payment in %s", ErrCommandNotAllowed, c.mode)
	}
	return c.settle(res, err)
}

func (c *Controller) submitEdit(ctx context.Context) error {
	if c.submitter == nil {
		return errors.New("no submitter configured")
	}
	if err := validateDetails(c.draft); err != nil {
		return err
	}
	res, err := c.submitter.Update(ctx, submission.UpdateRequest{
		RecordID:      c.recordID,
		Previous:      c.original,
		Fields:        c.draft.Fields(),
		PreviousMedia: c.previousMedia,
		Media:         c.draft.MediaSet(),
	})
	return c.settle(res, err)
}

// settle records the outcome of a terminal flow. A payment capture failure
// closes the workflow since its records already exist.
func (c *Controller) settle(res *submission.Result, err error) error {
	if err == nil {
		c.completed = true
		c.result = res
		c.payment.Discard()
		log.Infof("[Workflow] %s completed (%s)", c.id, c.mode)
		return nil
	}
	var capture *submission.PaymentCaptureError
	if errors.As(err, &capture) {
		c.closed = true
		c.result = res
		c.payment.Discard()
		log.Errorf("[Workflow] %s closed after payment failure: %v", c.id, err)
	}
	return err
}

// Cancel drops the open setup handle and returns the staged files to clean up.
func (c *Controller) Cancel() []string {
	c.payment.Discard()
	return c.draft.PendingFiles()
}
