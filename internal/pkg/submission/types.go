package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
)

type Discount struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Fields are the non-media, non-payment fields of a business.
type Fields struct {
	Name      string     `json:"name"`
	Tagline   string     `json:"tagline"`
	Address   string     `json:"address"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email"`
	Website   string     `json:"website"`
	Category  string     `json:"category,omitempty"`
	Discounts []Discount `json:"discounts"`
}

// CreatedRecord is one business row created for a category.
type CreatedRecord struct {
	RecordID uint   `json:"record_id"`
	Category string `json:"category"`
	PriceID  string `json:"price_id"`
}

// Record is a stored business as needed to open an edit or plan-update workflow.
type Record struct {
	ID       uint      `json:"id"`
	OwnerRef string    `json:"owner_ref"`
	Status   string    `json:"status"`
	Tier     string    `json:"tier"`
	PriceID  string    `json:"price_id"`
	Fields   Fields    `json:"fields"`
	Media    media.Set `json:"media"`
}

var ErrRecordNotFound = errors.New("record not found")

// RecordStore persists business rows.
type RecordStore interface {
	Load(ctx context.Context, recordID uint) (*Record, error)
	// Create stores one row per plan line, all pending payment.
	Create(ctx context.Context, ownerRef string, fields Fields, lines []plans.Line) ([]CreatedRecord, error)
	// Update applies a partial column patch.
	Update(ctx context.Context, recordID uint, patch Patch) error
	UpdatePlan(ctx context.Context, recordID uint, line plans.Line) error
	MarkPendingPayment(ctx context.Context, recordIDs []uint) error
	// ActiveSubscription returns the provider id of the subscription paying
	// for the record, or "" when there is none.
	ActiveSubscription(ctx context.Context, recordID uint) (string, error)
	// AttachSubscriptions stores the subscriptions and activates their rows.
	AttachSubscriptions(ctx context.Context, ownerRef string, subs []billing.Subscription) error
}

// PaymentCapturer is the charging half of the billing provider.
type PaymentCapturer interface {
	Subscribe(ctx context.Context, req billing.SubscribeRequest) ([]billing.Subscription, error)
	ChangePlan(ctx context.Context, req billing.ChangePlanRequest) (billing.Subscription, error)
}

// PaymentFailure describes rows left without a subscription.
type PaymentFailure struct {
	OwnerRef   string          `json:"owner_ref"`
	AccountRef string          `json:"account_ref"`
	Records    []CreatedRecord `json:"records"`
	Reason     string          `json:"reason"`
}

// Escalator hands payment failures to an operator-facing reconciliation path.
type Escalator interface {
	EscalatePaymentFailure(ctx context.Context, f PaymentFailure) error
}

// MediaFailure is a per-record media sync warning.
type MediaFailure struct {
	RecordID uint   `json:"record_id"`
	Message  string `json:"message"`
}

// MediaResult is Ok when Failures is empty, PartialFailure otherwise.
type MediaResult struct {
	Failures []MediaFailure `json:"failures,omitempty"`
	Skipped  bool           `json:"skipped,omitempty"`
}

func (r MediaResult) Ok() bool { return len(r.Failures) == 0 }

// Result is the outcome of a submission flow.
type Result struct {
	Records       []CreatedRecord        `json:"records"`
	Subscriptions []billing.Subscription `json:"subscriptions,omitempty"`
	Media         MediaResult            `json:"media"`
}

// Warnings flattens media failures for display.
func (r Result) Warnings() []string {
	var out []string
	for _, f := range r.Media.Failures {
		out = append(out, fmt.Sprintf("media for record %d: %s", f.RecordID, f.Message))
	}
	return out
}

// CommitError is a fatal record create/update failure.
type CommitError struct {
	Op  string
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// PaymentCaptureError means records exist but at least one has no subscription.
type PaymentCaptureError struct {
	Unpaid    []CreatedRecord
	Escalated bool
	Err       error
}

func (e *PaymentCaptureError) Error() string {
	ids := make([]string, 0, len(e.Unpaid))
	for _, r := range e.Unpaid {
		ids = append(ids, fmt.Sprint(r.RecordID))
	}
	return fmt.Sprintf("payment capture failed for records [%s]: %v", strings.Join(ids, ","), e.Err)
}

func (e *PaymentCaptureError) Unwrap() error { return e.Err }
