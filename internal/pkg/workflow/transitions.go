package workflow

type edge struct {
	Next Step
	Prev Step
}

// transitionTable is the only place that knows the step order of each mode.
// An empty Next or Prev means the move is not available from that step.
var transitionTable = map[Mode]map[Step]edge{
	ModeCreate: {
		StepDetails:       {Next: StepPlanSelection},
		StepPlanSelection: {Next: StepSummary, Prev: StepDetails},
		StepSummary:       {Next: StepPayment, Prev: StepPlanSelection},
		StepPayment:       {Prev: StepSummary},
	},
	ModeUpdatePlan: {
		StepPlanSelection: {Next: StepSummary},
		StepSummary:       {Next: StepPayment, Prev: StepPlanSelection},
		StepPayment:       {Prev: StepSummary},
	},
	ModeEdit: {
		StepDetails: {},
	},
}

var initialSteps = map[Mode]Step{
	ModeCreate:     StepDetails,
	ModeUpdatePlan: StepPlanSelection,
	ModeEdit:       StepDetails,
}

func InitialStep(m Mode) Step { return initialSteps[m] }

// Steps returns the ordered step sequence of a mode.
func Steps(m Mode) []Step {
	table := transitionTable[m]
	step, ok := initialSteps[m]
	if !ok {
		return nil
	}
	var out []Step
	for step != "" {
		out = append(out, step)
		step = table[step].Next
	}
	return out
}

func next(m Mode, s Step) (Step, bool) {
	e, ok := transitionTable[m][s]
	if !ok || e.Next == "" {
		return "", false
	}
	return e.Next, true
}

func prev(m Mode, s Step) (Step, bool) {
	e, ok := transitionTable[m][s]
	if !ok || e.Prev == "" {
		return "", false
	}
	return e.Prev, true
}

// commandSteps lists the steps in which a command may run. Commands that are
// not listed are accepted anywhere.
var commandSteps = map[string][]Step{
	"update_details":      {StepDetails},
	"add_media":           {StepDetails},
	"remove_media":        {StepDetails},
	"reorder_media":       {StepDetails},
	"describe_media":      {StepDetails},
	"select_tier":         {StepPlanSelection},
	"select_billing":      {StepPlanSelection},
	"refresh_methods":     {StepPayment},
	"select_saved_method": {StepPayment},
	"open_new_card_form":  {StepPayment},
	"request_setup":       {StepPayment},
	"confirm_new_card":    {StepPayment},
	"submit_payment":      {StepPayment},
	"submit":              {StepDetails},
}

// commandModes restricts commands to particular modes.
var commandModes = map[string][]Mode{
	"update_details": {ModeCreate, ModeEdit},
	"add_media":      {ModeCreate, ModeEdit},
	"remove_media":   {ModeCreate, ModeEdit},
	"reorder_media":  {ModeCreate, ModeEdit},
	"describe_media": {ModeCreate, ModeEdit},
	"submit_payment": {ModeCreate, ModeUpdatePlan},
	"submit":         {ModeEdit},
}

func allowed(name string, m Mode, s Step) bool {
	if modes, ok := commandModes[name]; ok && !containsMode(modes, m) {
		return false
	}
	steps, ok := commandSteps[name]
	if !ok {
		return true
	}
	for _, st := range steps {
		if st == s {
			return true
		}
	}
	return false
}

func containsMode(list []Mode, m Mode) bool {
	for _, x := range list {
		if x == m {
			return true
		}
	}
	return false
}
