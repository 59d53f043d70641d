package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

// SubscriptionFinder looks up subscriptions at the billing provider.
type SubscriptionFinder interface {
	FindSubscriptions(ctx context.Context, accountRef, priceID string) ([]billing.Subscription, error)
}

// SubscriptionAttacher stores found subscriptions and activates their rows.
type SubscriptionAttacher interface {
	AttachSubscriptions(ctx context.Context, ownerRef string, subs []billing.Subscription) error
}

// EscalatePaymentFailure enqueues a payment_reconcile job. It satisfies
// submission.Escalator.
func (q *Queue) EscalatePaymentFailure(ctx context.Context, f submission.PaymentFailure) error {
	payload := PaymentReconcileJobPayload{
		OwnerRef:   f.OwnerRef,
		AccountRef: f.AccountRef,
		Records:    f.Records,
		Reason:     f.Reason,
	}
	_, err := q.EnqueueJob(ctx, JobTypePaymentReconcile, payload.ToMap())
	return err
}

// processPaymentReconcileJob never charges. It only looks for subscriptions
// the provider created for the pending rows and activates those rows. Rows
// still unpaid fail the job so it is retried.
func (q *Queue) processPaymentReconcileJob(ctx context.Context, job *Job) error {
	payload, err := PaymentReconcileJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payment reconcile payload: %w", err)
	}
	if q.procs.Subscriptions == nil || q.procs.Records == nil {
		return fmt.Errorf("payment reconciliation is not configured")
	}
	if payload.AccountRef == "" {
		return fmt.Errorf("no billing account on payment reconcile job")
	}

	var found []billing.Subscription
	var unpaid []uint
	for _, rec := range payload.Records {
		subs, err := q.procs.Subscriptions.FindSubscriptions(ctx, payload.AccountRef, rec.PriceID)
		if err != nil {
			return fmt.Errorf("find subscriptions for record %d: %w", rec.RecordID, err)
		}
		sub, ok := matchSubscription(subs, rec)
		if !ok {
			unpaid = append(unpaid, rec.RecordID)
			continue
		}
		found = append(found, sub)
	}

	if len(found) > 0 {
		if err := q.procs.Records.AttachSubscriptions(ctx, payload.OwnerRef, found); err != nil {
			return fmt.Errorf("attach reconciled subscriptions: %w", err)
		}
		log.Infof("[PaymentReconcile] Activated %d record(s) for %s", len(found), payload.OwnerRef)
	}
	if len(unpaid) > 0 {
		return fmt.Errorf("no active subscription for records %v", unpaid)
	}
	return nil
}

// matchSubscription prefers a subscription tagged with the record id and
// falls back to an untagged one for the same category.
func matchSubscription(subs []billing.Subscription, rec submission.CreatedRecord) (billing.Subscription, bool) {
	var fallback *billing.Subscription
	for i := range subs {
		s := subs[i]
		if !billing.IsActiveStatus(s.Status) {
			continue
		}
		if s.RecordID == rec.RecordID {
			return s, true
		}
		if s.RecordID == 0 && s.Category == rec.Category && fallback == nil {
			fallback = &subs[i]
		}
	}
	if fallback != nil {
		sub := *fallback
		sub.RecordID = rec.RecordID
		return sub, true
	}
	return billing.Subscription{}, false
}

func reportUnreconciled(job *Job) {
	payload, err := PaymentReconcileJobPayloadFromMap(job.Payload)
	if err != nil {
		log.Errorf("[PaymentReconcile] MANUAL ACTION REQUIRED: job %s has an unreadable payload: %v", job.ID, err)
		return
	}
	ids := make([]uint, 0, len(payload.Records))
	for _, r := range payload.Records {
		ids = append(ids, r.RecordID)
	}
	log.Errorf("[PaymentReconcile] MANUAL ACTION REQUIRED: owner %s account %s records %v still pending payment (%s): %s",
		payload.OwnerRef, payload.AccountRef, ids, payload.Reason, job.ErrorMsg)
}
