package workflow

import (
	"context"
	"sync"

	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   []string
	methods map[string][]billing.Method
	confirm error
}

func (p *fakeProvider) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakeProvider) ListMethods(_ context.Context, accountRef string) ([]billing.Method, error) {
	p.record("list_methods")
	return p.methods[accountRef], nil
}

func (p *fakeProvider) CreateAccount(context.Context, string, string) (string, error) {
	p.record("create_account")
	return "cus_new", nil
}

func (p *fakeProvider) CreateSetupHandle(_ context.Context, accountRef string) (*billing.SetupHandle, error) {
	p.record("create_setup_handle")
	return &billing.SetupHandle{ID: "seti_1", ClientSecret: "seti_1_secret_x", Status: "requires_payment_method"}, nil
}

func (p *fakeProvider) ConfirmSetup(context.Context, billing.SetupHandle, string) (string, error) {
	p.record("confirm_setup")
	if p.confirm != nil {
		return "", p.confirm
	}
	return "pm_new", nil
}

func (p *fakeProvider) Subscribe(context.Context, billing.SubscribeRequest) ([]billing.Subscription, error) {
	p.record("subscribe")
	return nil, nil
}

func (p *fakeProvider) ChangePlan(_ context.Context, req billing.ChangePlanRequest) (billing.Subscription, error) {
	p.record("change_plan")
	return billing.Subscription{ID: req.SubscriptionID, PriceID: req.Item.PriceID}, nil
}

func (p *fakeProvider) ListPrices(context.Context) ([]plans.CatalogEntry, error) {
	return testEntries(), nil
}

func (p *fakeProvider) FindSubscriptions(context.Context, string, string) ([]billing.Subscription, error) {
	return nil, nil
}

func (p *fakeProvider) Name() string { return "fake" }

type fakeAccounts struct {
	refs map[string]string
}

func (a *fakeAccounts) AccountRef(_ context.Context, owner string) (string, error) {
	return a.refs[owner], nil
}

func (a *fakeAccounts) LinkAccount(_ context.Context, owner, ref, _ string) error {
	if a.refs == nil {
		a.refs = map[string]string{}
	}
	a.refs[owner] = ref
	return nil
}

type fakeSubmitter struct {
	creates []submission.CreateRequest
	updates []submission.UpdateRequest
	plans   []submission.PlanRequest
	err     error
}

func (s *fakeSubmitter) Create(_ context.Context, req submission.CreateRequest) (*submission.Result, error) {
	s.creates = append(s.creates, req)
	if s.err != nil {
		return &submission.Result{}, s.err
	}
	res := &submission.Result{}
	for i, l := range req.Lines {
		res.Records = append(res.Records, submission.CreatedRecord{RecordID: uint(i + 1), Category: l.Category, PriceID: l.PriceID})
	}
	return res, nil
}

func (s *fakeSubmitter) Update(_ context.Context, req submission.UpdateRequest) (*submission.Result, error) {
	s.updates = append(s.updates, req)
	if s.err != nil {
		return nil, s.err
	}
	return &submission.Result{Records: []submission.CreatedRecord{{RecordID: req.RecordID}}}, nil
}

func (s *fakeSubmitter) UpdatePlan(_ context.Context, req submission.PlanRequest) (*submission.Result, error) {
	s.plans = append(s.plans, req)
	if s.err != nil {
		return &submission.Result{}, s.err
	}
	return &submission.Result{Records: []submission.CreatedRecord{{RecordID: req.RecordID, PriceID: req.Line.PriceID}}}, nil
}

type fakeRecords struct {
	recs map[uint]*submission.Record
}

func (r *fakeRecords) Load(_ context.Context, id uint) (*submission.Record, error) {
	rec, ok := r.recs[id]
	if !ok {
		return nil, submission.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func testEntries() []plans.CatalogEntry {
	return []plans.CatalogEntry{
		{Name: "Silver Monthly", Price: 1000, PriceID: "price_sm", ProductID: "prod_s"},
		{Name: "Silver Yearly", Price: 10000, PriceID: "price_sy", ProductID: "prod_s"},
		{Name: "Gold Monthly", Price: 2000, PriceID: "price_gm", ProductID: "prod_g"},
		{Name: "Gold Yearly", Price: 20000, PriceID: "price_gy", ProductID: "prod_g"},
		{Name: "Platinum Monthly", Price: 3000, PriceID: "price_pm", ProductID: "prod_p"},
		{Name: "Platinum Yearly", Price: 30000, PriceID: "price_py", ProductID: "prod_p"},
	}
}

func testCatalog() plans.Catalog {
	return plans.NewCatalog(testEntries())
}

func validDetails(categories ...string) Details {
	lat, lng := 52.52, 13.405
	return Details{
		Name:       "Corner Cafe",
		Address:    "Main St 1",
		Latitude:   &lat,
		Longitude:  &lng,
		Email:      "host@example.com",
		Categories: categories,
	}
}
