package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

// JobType defines the type of job
type JobType string

const (
	JobTypePaymentReconcile JobType = "payment_reconcile"
	JobTypeObjectDelete     JobType = "object_delete"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// PaymentReconcileJobPayload names the rows left pending after a failed
// payment capture.
type PaymentReconcileJobPayload struct {
	OwnerRef   string                     `json:"owner_ref"`
	AccountRef string                     `json:"account_ref"`
	Records    []submission.CreatedRecord `json:"records"`
	Reason     string                     `json:"reason"`
}

func (p PaymentReconcileJobPayload) ToMap() map[string]interface{} {
	return payloadMap(p)
}

func PaymentReconcileJobPayloadFromMap(data map[string]interface{}) (*PaymentReconcileJobPayload, error) {
	return decodePayload[PaymentReconcileJobPayload](data)
}

// ObjectDeleteJobPayload lists object store keys of removed images.
type ObjectDeleteJobPayload struct {
	BusinessID uint     `json:"business_id"`
	Keys       []string `json:"keys"`
}

func (p ObjectDeleteJobPayload) ToMap() map[string]interface{} {
	return payloadMap(p)
}

func ObjectDeleteJobPayloadFromMap(data map[string]interface{}) (*ObjectDeleteJobPayload, error) {
	return decodePayload[ObjectDeleteJobPayload](data)
}

// payloadMap stores a payload in the same JSON shape it has after a trip
// through Redis. Payload structs only hold JSON-safe fields.
func payloadMap(v interface{}) map[string]interface{} {
	raw, _ := json.Marshal(v)
	m := map[string]interface{}{}
	_ = json.Unmarshal(raw, &m)
	return m
}

func decodePayload[T any](data map[string]interface{}) (*T, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// IsRetryable reports whether a failed job has attempts left.
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

func (j *Job) transition(status JobStatus) time.Time {
	now := time.Now()
	j.Status = status
	j.UpdatedAt = now
	return now
}

func (j *Job) MarkAsProcessing() {
	now := j.transition(JobStatusProcessing)
	j.ProcessedAt = &now
}

// MarkAsCompleted clears any error left by an earlier attempt.
func (j *Job) MarkAsCompleted() {
	now := j.transition(JobStatusCompleted)
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed counts the attempt against MaxRetries.
func (j *Job) MarkAsFailed(errorMsg string) {
	j.transition(JobStatusFailed)
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

func (j *Job) MarkAsRetrying() {
	j.transition(JobStatusRetrying)
}

// startedAt is when the current processing attempt began.
func (j *Job) startedAt() time.Time {
	switch {
	case j.ProcessedAt != nil && !j.ProcessedAt.IsZero():
		return *j.ProcessedAt
	case !j.UpdatedAt.IsZero():
		return j.UpdatedAt
	default:
		return j.CreatedAt
	}
}
