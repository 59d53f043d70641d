package workflow

import (
	"time"

	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

// Snapshot is the persisted form of a Controller.
type Snapshot struct {
	ID            string               `json:"id"`
	OwnerRef      string               `json:"owner_ref"`
	Mode          Mode                 `json:"mode"`
	Step          Step                 `json:"step"`
	RecordID      uint                 `json:"record_id,omitempty"`
	Draft         Draft                `json:"draft"`
	Original      submission.Fields    `json:"original"`
	PreviousMedia media.Set            `json:"previous_media"`
	Matrix        plans.State          `json:"matrix"`
	Payment       billing.PaymentState `json:"payment"`
	Attempts      int                  `json:"attempts,omitempty"`
	Completed     bool                 `json:"completed"`
	Closed        bool                 `json:"closed"`
	Result        *submission.Result   `json:"result,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		ID:            c.id,
		OwnerRef:      c.ownerRef,
		Mode:          c.mode,
		Step:          c.step,
		RecordID:      c.recordID,
		Draft:         c.Draft(),
		Original:      c.original,
		PreviousMedia: c.previousMedia,
		Matrix:        c.matrix.State(),
		Payment:       c.payment.State(),
		Attempts:      c.attempts,
		Completed:     c.completed,
		Closed:        c.closed,
		Result:        c.result,
		UpdatedAt:     time.Now().UTC(),
	}
}

// Restore rebuilds a controller, catalog snapshot included.
func Restore(s Snapshot, deps Deps) *Controller {
	step := s.Step
	if _, ok := transitionTable[s.Mode][step]; !ok {
		step = InitialStep(s.Mode)
	}
	return &Controller{
		id:            s.ID,
		ownerRef:      s.OwnerRef,
		mode:          s.Mode,
		step:          step,
		recordID:      s.RecordID,
		draft:         s.Draft,
		original:      s.Original,
		previousMedia: s.PreviousMedia,
		matrix:        plans.RestoreMatrix(s.Matrix),
		payment:       billing.RestoreCoordinator(deps.Provider, deps.Accounts, s.Payment),
		submitter:     deps.Submitter,
		attempts:      s.Attempts,
		completed:     s.Completed,
		closed:        s.Closed,
		result:        s.Result,
	}
}

// View is what clients see of a workflow.
type View struct {
	ID           string                     `json:"id"`
	Mode         Mode                       `json:"mode"`
	Step         Step                       `json:"step"`
	Steps        []Step                     `json:"steps"`
	CanBack      bool                       `json:"can_back"`
	CanAdvance   bool                       `json:"can_advance"`
	Draft        Draft                      `json:"draft"`
	Categories   []string                   `json:"categories"`
	Selections   map[string]plans.Selection `json:"selections"`
	Missing      []string                   `json:"missing"`
	Total        int64                      `json:"total"`
	Offers       []plans.TierOffer          `json:"offers"`
	SavedMethods []billing.Method           `json:"saved_methods"`
	SelectedID   string                     `json:"selected_method_id,omitempty"`
	NewCardOpen  bool                       `json:"new_card_open"`
	SetupSecret  string                     `json:"setup_client_secret,omitempty"`
	CardReady    bool                       `json:"card_confirmed"`
	Completed    bool                       `json:"completed"`
	Closed       bool                       `json:"closed"`
	Result       *submission.Result         `json:"result,omitempty"`
	Warnings     []string                   `json:"warnings,omitempty"`
}

func (c *Controller) View() View {
	cats := c.categories()
	pay := c.payment.State()
	v := View{
		ID:           c.id,
		Mode:         c.mode,
		Step:         c.step,
		Steps:        Steps(c.mode),
		Draft:        c.Draft(),
		Categories:   cats,
		Selections:   make(map[string]plans.Selection, len(cats)),
		Missing:      c.matrix.Missing(cats),
		Total:        c.matrix.Total(cats),
		Offers:       c.matrix.Catalog().Offers(),
		SavedMethods: pay.SavedMethods,
		SelectedID:   pay.SelectedMethodID,
		NewCardOpen:  pay.NewCardOpen,
		CardReady:    pay.ConfirmedMethodID != "",
		Completed:    c.completed,
		Closed:       c.closed,
		Result:       c.result,
	}
	_, v.CanBack = prev(c.mode, c.step)
	_, v.CanAdvance = next(c.mode, c.step)
	for _, cat := range cats {
		v.Selections[cat] = c.matrix.Selection(cat)
	}
	if pay.Handle != nil && !pay.Handle.Spent {
		v.SetupSecret = pay.Handle.ClientSecret
	}
	if c.result != nil {
		v.Warnings = c.result.Warnings()
	}
	return v
}
