package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers, Processors{})

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.NotNil(t, queue.workerPool)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.Equal(t, time.Minute, queue.retryDelay)
			assert.Equal(t, 10*time.Minute, queue.stuckAfter)
			assert.False(t, queue.running)
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_stats", JobStatsKey)
	assert.Equal(t, "job_delayed", JobDelayedKey)

	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

func TestQueue_UnknownJobType(t *testing.T) {
	q := NewQueue(nil, 1, Processors{})
	err := q.handle(context.Background(), &Job{ID: "x", Type: "resize_image"})
	assert.EqualError(t, err, "unknown job type: resize_image")
}

func TestQueue_EscalateEnqueuesReconcileJob(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1, Processors{})
	ctx := context.Background()

	err := q.EscalatePaymentFailure(ctx, submission.PaymentFailure{
		OwnerRef:   "owner-1",
		AccountRef: "cus_1",
		Records:    []submission.CreatedRecord{{RecordID: 9, Category: "bar", PriceID: "price_gm"}},
		Reason:     "card declined",
	})
	require.NoError(t, err)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, JobTypePaymentReconcile, job.Type)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)

	payload, err := PaymentReconcileJobPayloadFromMap(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", payload.AccountRef)
	assert.Equal(t, uint(9), payload.Records[0].RecordID)

	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processing)
}

func TestQueue_ProcessJobRetriesThenCompletes(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	objects := &fakeObjects{failures: map[string]int{"a.jpg": 1}}
	q := NewQueue(client, 1, Processors{Objects: objects})
	q.retryDelay = time.Hour
	ctx := context.Background()

	enqueued, err := q.EnqueueObjectDelete(ctx, 3, []string{"a.jpg"})
	require.NoError(t, err)

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, job)

	stored, err := q.GetJob(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	delayed, err := q.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)

	promoted, err := q.promoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, promoted, "backoff not over yet")

	promoted, err = q.promoteDue(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	job, err = q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, job)

	_, err = q.GetJob(ctx, enqueued.ID)
	assert.Error(t, err, "completed jobs are removed")
	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusCompleted])
	assert.Equal(t, []string{"a.jpg", "a.jpg"}, objects.calls)
}

func TestQueue_EnqueueObjectDeleteWithoutKeys(t *testing.T) {
	q := NewQueue(nil, 1, Processors{})
	job, err := q.EnqueueObjectDelete(context.Background(), 1, nil)
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_SweepRequeuesStuckJobs(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1, Processors{})
	ctx := context.Background()

	stuck, err := q.EnqueueObjectDelete(ctx, 1, []string{"a.jpg"})
	require.NoError(t, err)
	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	// a processing entry whose job data expired
	require.NoError(t, client.LPush(ctx, JobProcessingKey, "gone").Err())

	recovered, err := q.sweepStuck(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, recovered)
	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processing)

	recovered, err = q.sweepStuck(ctx, time.Now().Add(q.stuckAfter+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	stored, err := q.GetJob(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
	processing, err = q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, processing)
}

func TestJob_StartedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Minute)
	processed := created.Add(2 * time.Minute)

	assert.Equal(t, created, (&Job{CreatedAt: created}).startedAt())
	assert.Equal(t, updated, (&Job{CreatedAt: created, UpdatedAt: updated}).startedAt())
	assert.Equal(t, processed, (&Job{CreatedAt: created, UpdatedAt: updated, ProcessedAt: &processed}).startedAt())
}
