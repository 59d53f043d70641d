package submission

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
)

// CreateRequest is a completed create-mode draft.
type CreateRequest struct {
	OwnerRef   string
	AccountRef string
	Instrument string
	AttemptRef string
	Fields     Fields
	Lines      []plans.Line
	Media      media.Set
}

// UpdateRequest is a completed edit-mode draft.
type UpdateRequest struct {
	RecordID      uint
	Previous      Fields
	Fields        Fields
	PreviousMedia media.Set
	Media         media.Set
}

// PlanRequest moves an existing record to a new plan.
type PlanRequest struct {
	OwnerRef   string
	AccountRef string
	Instrument string
	AttemptRef string
	RecordID   uint
	Line       plans.Line
}

// Orchestrator sequences commit, media sync and payment capture.
type Orchestrator struct {
	records   RecordStore
	media     media.Pusher
	payments  PaymentCapturer
	escalator Escalator
}

func NewOrchestrator(records RecordStore, pusher media.Pusher, payments PaymentCapturer, escalator Escalator) *Orchestrator {
	if pusher == nil {
		pusher = media.NoopPusher{}
	}
	return &Orchestrator{
		records:   records,
		media:     pusher,
		payments:  payments,
		escalator: escalator,
	}
}

// Create commits one record per plan line, uploads media to each record in
// turn and subscribes all of them with a single capture request. Media
// failures are warnings; commit and capture failures are returned.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	if len(req.Lines) == 0 {
		return nil, &CommitError{Op: "create business", Err: errors.New("no resolved plan")}
	}
	if req.Instrument == "" {
		return nil, billing.ErrNoInstrument
	}

	created, err := o.records.Create(ctx, req.OwnerRef, req.Fields, req.Lines)
	if err != nil {
		return nil, &CommitError{Op: "create business", Err: err}
	}
	res := &Result{Records: created}

	diff := media.ReconcileSet(media.Set{}, req.Media)
	if diff.IsNoop(media.Set{}) {
		res.Media.Skipped = true
	} else {
		for _, rec := range created {
			if err := o.media.Create(ctx, rec.RecordID, diff); err != nil {
				log.Warnf("[Submission] Media upload for record %d failed: %v", rec.RecordID, err)
				res.Media.Failures = append(res.Media.Failures, MediaFailure{RecordID: rec.RecordID, Message: err.Error()})
			}
		}
	}

	items := make([]billing.SubscriptionItem, 0, len(created))
	for _, rec := range created {
		items = append(items, billing.SubscriptionItem{RecordID: rec.RecordID, Category: rec.Category, PriceID: rec.PriceID})
	}
	subs, err := o.payments.Subscribe(ctx, billing.SubscribeRequest{
		OwnerRef:   req.OwnerRef,
		AccountRef: req.AccountRef,
		MethodRef:  req.Instrument,
		Items:      items,
		AttemptRef: req.AttemptRef,
	})
	if len(subs) > 0 {
		res.Subscriptions = subs
		if aerr := o.records.AttachSubscriptions(ctx, req.OwnerRef, subs); aerr != nil {
			log.Errorf("[Submission] Failed to store subscriptions for owner %s: %v", req.OwnerRef, aerr)
		}
	}
	if err != nil {
		return res, o.captureFailed(ctx, req.OwnerRef, req.AccountRef, unpaid(created, subs), err)
	}
	return res, nil
}

// Update applies changed fields, then pushes one combined media diff. Media
// is not attempted when the field update fails.
func (o *Orchestrator) Update(ctx context.Context, req UpdateRequest) (*Result, error) {
	if req.RecordID == 0 {
		return nil, &CommitError{Op: "update business", Err: ErrRecordNotFound}
	}

	if patch := Diff(req.Previous, req.Fields); len(patch) > 0 {
		if err := o.records.Update(ctx, req.RecordID, patch); err != nil {
			return nil, &CommitError{Op: "update business", Err: err}
		}
	}
	res := &Result{Records: []CreatedRecord{{RecordID: req.RecordID, Category: req.Fields.Category}}}

	diff := media.ReconcileSet(req.PreviousMedia, req.Media)
	if diff.IsNoop(req.PreviousMedia) {
		res.Media.Skipped = true
		return res, nil
	}
	if err := o.media.Update(ctx, req.RecordID, diff); err != nil {
		log.Warnf("[Submission] Media sync for record %d failed: %v", req.RecordID, err)
		res.Media.Failures = append(res.Media.Failures, MediaFailure{RecordID: req.RecordID, Message: err.Error()})
	}
	return res, nil
}

// UpdatePlan moves a record to a new plan. A record with a live
// subscription has that subscription changed in place, and its plan columns
// are written only once the provider accepted the change. A rejected change
// leaves the record on its old plan.
func (o *Orchestrator) UpdatePlan(ctx context.Context, req PlanRequest) (*Result, error) {
	if req.Instrument == "" {
		return nil, billing.ErrNoInstrument
	}
	current, err := o.records.ActiveSubscription(ctx, req.RecordID)
	if err != nil {
		return nil, &CommitError{Op: "load subscription", Err: err}
	}
	if current == "" {
		return o.subscribePlan(ctx, req)
	}

	rec := CreatedRecord{RecordID: req.RecordID, Category: req.Line.Category, PriceID: req.Line.PriceID}
	sub, err := o.payments.ChangePlan(ctx, billing.ChangePlanRequest{
		SubscriptionID: current,
		OwnerRef:       req.OwnerRef,
		MethodRef:      req.Instrument,
		Item:           billing.SubscriptionItem{RecordID: rec.RecordID, Category: rec.Category, PriceID: rec.PriceID},
		AttemptRef:     req.AttemptRef,
	})
	if err != nil {
		var confirm *billing.ConfirmationError
		if errors.As(err, &confirm) {
			return nil, err
		}
		return nil, &billing.RetryableError{Op: "change plan", Err: err}
	}

	res := &Result{Records: []CreatedRecord{rec}, Subscriptions: []billing.Subscription{sub}, Media: MediaResult{Skipped: true}}
	if err := o.records.AttachSubscriptions(ctx, req.OwnerRef, res.Subscriptions); err != nil {
		log.Errorf("[Submission] Failed to store subscription %s for record %d: %v", sub.ID, req.RecordID, err)
	}
	if err := o.records.UpdatePlan(ctx, req.RecordID, req.Line); err != nil {
		log.Errorf("[Submission] MANUAL ACTION REQUIRED: subscription %s moved to %s but record %d keeps its old plan: %v", sub.ID, rec.PriceID, req.RecordID, err)
		return res, &CommitError{Op: "update plan", Err: err}
	}
	return res, nil
}

// subscribePlan handles a record nothing is paying for yet. Its plan is
// written first, like a freshly created record, and a failed capture leaves
// it pending payment.
func (o *Orchestrator) subscribePlan(ctx context.Context, req PlanRequest) (*Result, error) {
	if err := o.records.UpdatePlan(ctx, req.RecordID, req.Line); err != nil {
		return nil, &CommitError{Op: "update plan", Err: err}
	}
	rec := CreatedRecord{RecordID: req.RecordID, Category: req.Line.Category, PriceID: req.Line.PriceID}
	res := &Result{Records: []CreatedRecord{rec}, Media: MediaResult{Skipped: true}}

	subs, err := o.payments.Subscribe(ctx, billing.SubscribeRequest{
		OwnerRef:   req.OwnerRef,
		AccountRef: req.AccountRef,
		MethodRef:  req.Instrument,
		Items:      []billing.SubscriptionItem{{RecordID: rec.RecordID, Category: rec.Category, PriceID: rec.PriceID}},
		AttemptRef: req.AttemptRef,
	})
	if err != nil {
		if merr := o.records.MarkPendingPayment(ctx, []uint{req.RecordID}); merr != nil {
			log.Errorf("[Submission] Failed to flag record %d as pending payment: %v", req.RecordID, merr)
		}
		return res, o.captureFailed(ctx, req.OwnerRef, req.AccountRef, []CreatedRecord{rec}, err)
	}
	res.Subscriptions = subs
	if err := o.records.AttachSubscriptions(ctx, req.OwnerRef, subs); err != nil {
		log.Errorf("[Submission] Failed to store subscriptions for record %d: %v", req.RecordID, err)
	}
	return res, nil
}

func (o *Orchestrator) captureFailed(ctx context.Context, ownerRef, accountRef string, rows []CreatedRecord, cause error) error {
	log.Errorf("[Submission] Payment capture failed for %d record(s) of owner %s: %v", len(rows), ownerRef, cause)
	perr := &PaymentCaptureError{Unpaid: rows, Err: cause}
	if o.escalator == nil {
		return perr
	}
	err := o.escalator.EscalatePaymentFailure(ctx, PaymentFailure{
		OwnerRef:   ownerRef,
		AccountRef: accountRef,
		Records:    rows,
		Reason:     cause.Error(),
	})
	if err != nil {
		log.Errorf("[Submission] MANUAL ACTION REQUIRED: could not queue payment reconciliation for owner %s: %v", ownerRef, err)
		return perr
	}
	perr.Escalated = true
	return perr
}

func unpaid(created []CreatedRecord, subs []billing.Subscription) []CreatedRecord {
	paid := make(map[uint]struct{}, len(subs))
	for _, s := range subs {
		paid[s.RecordID] = struct{}{}
	}
	var out []CreatedRecord
	for _, r := range created {
		if _, ok := paid[r.RecordID]; !ok {
			out = append(out, r)
		}
	}
	return out
}
