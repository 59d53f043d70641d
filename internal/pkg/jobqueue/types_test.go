package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

func TestJobIsRetryable(t *testing.T) {
	tests := []struct {
		status  JobStatus
		retries int
		want    bool
	}{
		{JobStatusFailed, 1, true},
		{JobStatusFailed, 3, false},
		{JobStatusCompleted, 1, false},
		{JobStatusPending, 0, false},
		{JobStatusRetrying, 1, false},
	}
	for _, tt := range tests {
		job := &Job{Status: tt.status, RetryCount: tt.retries, MaxRetries: 3}
		assert.Equal(t, tt.want, job.IsRetryable(), "%s with %d retries", tt.status, tt.retries)
	}
}

func TestJobLifecycle(t *testing.T) {
	job := &Job{ID: "j1", Type: JobTypeObjectDelete, Status: JobStatusPending, MaxRetries: 2}
	start := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.Equal(t, job.UpdatedAt, *job.ProcessedAt)
	assert.False(t, job.ProcessedAt.Before(start))

	job.MarkAsFailed("storage unavailable")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "storage unavailable", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)
	assert.Equal(t, "storage unavailable", job.ErrorMsg)

	job.MarkAsProcessing()
	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, job.UpdatedAt, *job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
}

func TestJobFailsOutAfterMaxRetries(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 2}
	for i := 0; i < 2; i++ {
		job.MarkAsProcessing()
		job.MarkAsFailed("declined")
	}
	assert.Equal(t, 2, job.RetryCount)
	assert.False(t, job.IsRetryable())
}

func TestPaymentReconcileJobPayloadFromMap(t *testing.T) {
	// shape after a trip through Redis: numbers are float64, slices are []interface{}
	data := map[string]interface{}{
		"owner_ref":   "owner-1",
		"account_ref": "cus_1",
		"records": []interface{}{
			map[string]interface{}{"record_id": float64(101), "category": "cafe", "price_id": "price_gm"},
			map[string]interface{}{"record_id": float64(102), "category": "bar", "price_id": "price_sy"},
		},
		"reason": "card declined",
	}

	payload, err := PaymentReconcileJobPayloadFromMap(data)
	require.NoError(t, err)

	assert.Equal(t, &PaymentReconcileJobPayload{
		OwnerRef:   "owner-1",
		AccountRef: "cus_1",
		Records: []submission.CreatedRecord{
			{RecordID: 101, Category: "cafe", PriceID: "price_gm"},
			{RecordID: 102, Category: "bar", PriceID: "price_sy"},
		},
		Reason: "card declined",
	}, payload)
}

func TestPaymentReconcileJobPayload_SurvivesJobJSON(t *testing.T) {
	original := PaymentReconcileJobPayload{
		OwnerRef:   "owner-1",
		AccountRef: "cus_1",
		Records:    []submission.CreatedRecord{{RecordID: 7, Category: "hotel", PriceID: "price_py"}},
	}
	raw, err := json.Marshal(Job{ID: "j1", Type: JobTypePaymentReconcile, Payload: original.ToMap()})
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal(raw, &job))
	got, err := PaymentReconcileJobPayloadFromMap(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, &original, got)
}

func TestObjectDeleteJobPayloadFromMap(t *testing.T) {
	payload, err := ObjectDeleteJobPayloadFromMap(map[string]interface{}{
		"business_id": float64(12),
		"keys":        []interface{}{"businesses/12/photo/a.jpg", "businesses/12/photo/a.webp"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(12), payload.BusinessID)
	assert.Equal(t, []string{"businesses/12/photo/a.jpg", "businesses/12/photo/a.webp"}, payload.Keys)

	_, err = ObjectDeleteJobPayloadFromMap(map[string]interface{}{"keys": make(chan int)})
	assert.Error(t, err)
}
