package submission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
)

type fakeRecords struct {
	nextID    uint
	createErr error
	updateErr error
	planErr   error

	created  []CreatedRecord
	patches  map[uint]Patch
	plans    map[uint]plans.Line
	pending  []uint
	attached []billing.Subscription
	live     map[uint]string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{nextID: 100, patches: map[uint]Patch{}, plans: map[uint]plans.Line{}}
}

func (f *fakeRecords) Load(_ context.Context, id uint) (*Record, error) {
	return nil, ErrRecordNotFound
}

func (f *fakeRecords) Create(_ context.Context, _ string, fields Fields, lines []plans.Line) ([]CreatedRecord, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	var out []CreatedRecord
	for _, l := range lines {
		f.nextID++
		out = append(out, CreatedRecord{RecordID: f.nextID, Category: l.Category, PriceID: l.PriceID})
	}
	f.created = append(f.created, out...)
	return out, nil
}

func (f *fakeRecords) Update(_ context.Context, id uint, p Patch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.patches[id] = p
	return nil
}

func (f *fakeRecords) UpdatePlan(_ context.Context, id uint, l plans.Line) error {
	if f.planErr != nil {
		return f.planErr
	}
	f.plans[id] = l
	return nil
}

func (f *fakeRecords) MarkPendingPayment(_ context.Context, ids []uint) error {
	f.pending = append(f.pending, ids...)
	return nil
}

func (f *fakeRecords) ActiveSubscription(_ context.Context, id uint) (string, error) {
	return f.live[id], nil
}

func (f *fakeRecords) AttachSubscriptions(_ context.Context, _ string, subs []billing.Subscription) error {
	f.attached = append(f.attached, subs...)
	return nil
}

type fakePusher struct {
	fail    map[uint]error
	creates []uint
	updates []uint
	diffs   []media.Diff
}

func (p *fakePusher) Create(_ context.Context, id uint, d media.Diff) error {
	p.creates = append(p.creates, id)
	p.diffs = append(p.diffs, d)
	return p.fail[id]
}

func (p *fakePusher) Update(_ context.Context, id uint, d media.Diff) error {
	p.updates = append(p.updates, id)
	p.diffs = append(p.diffs, d)
	return p.fail[id]
}

type fakeCapturer struct {
	requests []billing.SubscribeRequest
	changes  []billing.ChangePlanRequest
	// failAfter subscribes only the first n items and then fails
	failAfter int
	err       error
	changeErr error
}

func (c *fakeCapturer) ChangePlan(_ context.Context, req billing.ChangePlanRequest) (billing.Subscription, error) {
	c.changes = append(c.changes, req)
	if c.changeErr != nil {
		return billing.Subscription{}, c.changeErr
	}
	return billing.Subscription{ID: req.SubscriptionID, RecordID: req.Item.RecordID, Category: req.Item.Category, PriceID: req.Item.PriceID, Status: "active"}, nil
}

func (c *fakeCapturer) Subscribe(_ context.Context, req billing.SubscribeRequest) ([]billing.Subscription, error) {
	c.requests = append(c.requests, req)
	var out []billing.Subscription
	for i, it := range req.Items {
		if c.err != nil && i >= c.failAfter {
			return out, &billing.SubscribeError{Created: out, Failed: it, Err: c.err}
		}
		out = append(out, billing.Subscription{ID: "sub_" + it.Category, RecordID: it.RecordID, Category: it.Category, PriceID: it.PriceID, Status: "active"})
	}
	return out, nil
}

type fakeEscalator struct {
	failures []PaymentFailure
	err      error
}

func (e *fakeEscalator) EscalatePaymentFailure(_ context.Context, f PaymentFailure) error {
	e.failures = append(e.failures, f)
	return e.err
}

func twoLines() []plans.Line {
	return []plans.Line{
		{Category: "cafe", Tier: plans.TierGold, Cycle: plans.CycleMonthly, PriceID: "price_gm", Price: 2999},
		{Category: "bar", Tier: plans.TierSilver, Cycle: plans.CycleYearly, PriceID: "price_sy", Price: 9900},
	}
}

func withPhotos() media.Set {
	return media.Set{
		Logo:   &media.Asset{Local: &media.LocalFile{Path: "/tmp/logo.png", Filename: "logo.png"}},
		Photos: []media.Asset{{Local: &media.LocalFile{Path: "/tmp/a.jpg", Filename: "a.jpg"}, SortOrder: 1}},
	}
}

func TestCreateMediaPartialFailureStillSucceeds(t *testing.T) {
	records := newFakeRecords()
	pusher := &fakePusher{fail: map[uint]error{102: errors.New("upstream 502")}}
	payments := &fakeCapturer{}
	o := NewOrchestrator(records, pusher, payments, &fakeEscalator{})

	res, err := o.Create(context.Background(), CreateRequest{
		OwnerRef: "owner-1", AccountRef: "cus_1", Instrument: "pm_1",
		Fields: Fields{Name: "Corner"}, Lines: twoLines(), Media: withPhotos(),
	})
	require.NoError(t, err)

	assert.Equal(t, []uint{101, 102}, pusher.creates)
	require.Len(t, res.Media.Failures, 1)
	assert.Equal(t, uint(102), res.Media.Failures[0].RecordID)
	assert.False(t, res.Media.Ok())
	assert.Len(t, res.Warnings(), 1)

	require.Len(t, payments.requests, 1)
	assert.Len(t, payments.requests[0].Items, 2)
	assert.Equal(t, "pm_1", payments.requests[0].MethodRef)
	assert.Len(t, records.attached, 2)
}

func TestCreateWithoutMediaSkipsPush(t *testing.T) {
	records := newFakeRecords()
	pusher := &fakePusher{}
	o := NewOrchestrator(records, pusher, &fakeCapturer{}, nil)

	res, err := o.Create(context.Background(), CreateRequest{
		OwnerRef: "owner-1", Instrument: "pm_1", Lines: twoLines()[:1],
	})
	require.NoError(t, err)
	assert.True(t, res.Media.Skipped)
	assert.Empty(t, pusher.creates)
}

func TestCreatePaymentFailureEscalates(t *testing.T) {
	records := newFakeRecords()
	payments := &fakeCapturer{failAfter: 1, err: errors.New("card_declined")}
	esc := &fakeEscalator{}
	o := NewOrchestrator(records, &fakePusher{}, payments, esc)

	res, err := o.Create(context.Background(), CreateRequest{
		OwnerRef: "owner-1", AccountRef: "cus_1", Instrument: "pm_1", Lines: twoLines(),
	})
	require.Error(t, err)

	var perr *PaymentCaptureError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Escalated)
	require.Len(t, perr.Unpaid, 1)
	assert.Equal(t, uint(102), perr.Unpaid[0].RecordID)

	require.NotNil(t, res)
	assert.Len(t, res.Records, 2)
	require.Len(t, records.attached, 1)
	assert.Equal(t, uint(101), records.attached[0].RecordID)

	require.Len(t, esc.failures, 1)
	assert.Equal(t, "cus_1", esc.failures[0].AccountRef)
}

func TestCreateEscalationFailureIsReported(t *testing.T) {
	payments := &fakeCapturer{err: errors.New("boom")}
	o := NewOrchestrator(newFakeRecords(), nil, payments, &fakeEscalator{err: errors.New("redis down")})

	_, err := o.Create(context.Background(), CreateRequest{OwnerRef: "o", Instrument: "pm_1", Lines: twoLines()})
	var perr *PaymentCaptureError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Escalated)
	assert.Len(t, perr.Unpaid, 2)
}

func TestCreateCommitFailure(t *testing.T) {
	records := newFakeRecords()
	records.createErr = errors.New("duplicate key")
	pusher := &fakePusher{}
	payments := &fakeCapturer{}
	o := NewOrchestrator(records, pusher, payments, nil)

	_, err := o.Create(context.Background(), CreateRequest{OwnerRef: "o", Instrument: "pm_1", Lines: twoLines(), Media: withPhotos()})
	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, pusher.creates)
	assert.Empty(t, payments.requests)
}

func TestCreateRequiresInstrument(t *testing.T) {
	o := NewOrchestrator(newFakeRecords(), nil, &fakeCapturer{}, nil)
	_, err := o.Create(context.Background(), CreateRequest{OwnerRef: "o", Lines: twoLines()})
	assert.ErrorIs(t, err, billing.ErrNoInstrument)
}

func TestUpdateCommitFailureSkipsMedia(t *testing.T) {
	records := newFakeRecords()
	records.updateErr = errors.New("connection reset")
	pusher := &fakePusher{}
	o := NewOrchestrator(records, pusher, nil, nil)

	_, err := o.Update(context.Background(), UpdateRequest{
		RecordID: 7,
		Previous: Fields{Name: "Old"},
		Fields:   Fields{Name: "New"},
		Media:    withPhotos(),
	})
	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, pusher.updates)
}

func TestUpdatePatchesOnlyChangedFields(t *testing.T) {
	records := newFakeRecords()
	o := NewOrchestrator(records, &fakePusher{}, nil, nil)

	lat := 52.5
	res, err := o.Update(context.Background(), UpdateRequest{
		RecordID: 7,
		Previous: Fields{Name: "Old", Phone: "1"},
		Fields:   Fields{Name: "New", Phone: "1", Latitude: &lat},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"latitude", "name"}, records.patches[7].Columns())
	assert.True(t, res.Media.Skipped)
}

func TestUpdateMediaNoopIsSkipped(t *testing.T) {
	records := newFakeRecords()
	pusher := &fakePusher{}
	o := NewOrchestrator(records, pusher, nil, nil)

	prev := media.Set{Photos: []media.Asset{{ID: 3, URL: "https://cdn/3.jpg", SortOrder: 1, Description: "front"}}}
	res, err := o.Update(context.Background(), UpdateRequest{RecordID: 7, PreviousMedia: prev, Media: prev})
	require.NoError(t, err)
	assert.True(t, res.Media.Skipped)
	assert.Empty(t, pusher.updates)
	assert.Empty(t, records.patches)
}

func TestUpdateMediaFailureIsWarning(t *testing.T) {
	pusher := &fakePusher{fail: map[uint]error{7: errors.New("timeout")}}
	o := NewOrchestrator(newFakeRecords(), pusher, nil, nil)

	prev := media.Set{Photos: []media.Asset{{ID: 3, URL: "https://cdn/3.jpg", SortOrder: 1}}}
	res, err := o.Update(context.Background(), UpdateRequest{RecordID: 7, PreviousMedia: prev, Media: media.Set{}})
	require.NoError(t, err)
	assert.Equal(t, []uint{7}, pusher.updates)
	require.Len(t, pusher.diffs, 1)
	assert.Equal(t, []uint{3}, pusher.diffs[0].Photos.ToDelete)
	assert.False(t, res.Media.Ok())
}

func TestUpdatePlanWithoutLiveSubscriptionMarksPending(t *testing.T) {
	records := newFakeRecords()
	esc := &fakeEscalator{}
	o := NewOrchestrator(records, nil, &fakeCapturer{err: errors.New("insufficient_funds")}, esc)

	line := plans.Line{Category: "cafe", Tier: plans.TierPlatinum, Cycle: plans.CycleMonthly, PriceID: "price_pm"}
	_, err := o.UpdatePlan(context.Background(), PlanRequest{OwnerRef: "o", AccountRef: "cus_1", Instrument: "pm_1", RecordID: 9, Line: line})
	var perr *PaymentCaptureError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Escalated)
	assert.Equal(t, []uint{9}, records.pending)
	assert.Equal(t, "price_pm", records.plans[9].PriceID)
	assert.Len(t, esc.failures, 1)
}

func TestUpdatePlanSuccess(t *testing.T) {
	records := newFakeRecords()
	o := NewOrchestrator(records, nil, &fakeCapturer{}, nil)

	line := plans.Line{Category: "bar", Tier: plans.TierGold, Cycle: plans.CycleYearly, PriceID: "price_gy"}
	res, err := o.UpdatePlan(context.Background(), PlanRequest{OwnerRef: "o", Instrument: "pm_1", RecordID: 9, Line: line})
	require.NoError(t, err)
	require.Len(t, res.Subscriptions, 1)
	assert.Equal(t, uint(9), res.Subscriptions[0].RecordID)
	assert.Len(t, records.attached, 1)
	assert.Empty(t, records.pending)
}

func TestUpdatePlanChangesLiveSubscriptionInPlace(t *testing.T) {
	records := newFakeRecords()
	records.live = map[uint]string{9: "sub_old"}
	capturer := &fakeCapturer{}
	o := NewOrchestrator(records, nil, capturer, &fakeEscalator{})

	line := plans.Line{Category: "cafe", Tier: plans.TierGold, Cycle: plans.CycleYearly, PriceID: "price_gy"}
	res, err := o.UpdatePlan(context.Background(), PlanRequest{OwnerRef: "o", AccountRef: "cus_1", Instrument: "pm_1", AttemptRef: "wf-1-1", RecordID: 9, Line: line})
	require.NoError(t, err)

	assert.Empty(t, capturer.requests, "no second subscription")
	require.Len(t, capturer.changes, 1)
	assert.Equal(t, "sub_old", capturer.changes[0].SubscriptionID)
	assert.Equal(t, "price_gy", capturer.changes[0].Item.PriceID)
	assert.Equal(t, "wf-1-1", capturer.changes[0].AttemptRef)

	require.Len(t, res.Subscriptions, 1)
	assert.Equal(t, "sub_old", res.Subscriptions[0].ID)
	assert.Equal(t, "price_gy", records.plans[9].PriceID)
	assert.Len(t, records.attached, 1)
	assert.Empty(t, records.pending)
}

func TestUpdatePlanRejectedChangeKeepsOldPlan(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want interface{}
	}{
		{"card rejected", &billing.ConfirmationError{Message: "Your card was declined.", Code: "card_declined"}, &billing.ConfirmationError{}},
		{"transport", errors.New("dial tcp: timeout"), &billing.RetryableError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := newFakeRecords()
			records.live = map[uint]string{9: "sub_old"}
			esc := &fakeEscalator{}
			o := NewOrchestrator(records, nil, &fakeCapturer{changeErr: tt.err}, esc)

			line := plans.Line{Category: "cafe", Tier: plans.TierPlatinum, Cycle: plans.CycleMonthly, PriceID: "price_pm"}
			res, err := o.UpdatePlan(context.Background(), PlanRequest{OwnerRef: "o", Instrument: "pm_1", RecordID: 9, Line: line})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.IsType(t, tt.want, err)

			var capture *PaymentCaptureError
			assert.False(t, errors.As(err, &capture))
			assert.Empty(t, records.plans)
			assert.Empty(t, records.pending)
			assert.Empty(t, esc.failures)
		})
	}
}

func TestDiffDiscountsReplaceWholeList(t *testing.T) {
	prev := Fields{Discounts: []Discount{{Title: "10%"}}}
	cur := Fields{Discounts: []Discount{{Title: "10%"}, {Title: "Happy hour"}}}
	p := Diff(prev, cur)
	assert.Equal(t, []string{"discounts"}, p.Columns())
	assert.Len(t, p["discounts"], 2)
	assert.Empty(t, Diff(cur, cur))
}
