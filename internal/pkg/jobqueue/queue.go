package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobStatsKey      = "job_stats"
	// JobDelayedKey is a sorted set of job ids scored by the unix time they may run again.
	JobDelayedKey = "job_delayed"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour
)

var errJobMissing = errors.New("job data missing")

// Processors are the collaborators the job handlers call into.
type Processors struct {
	Subscriptions SubscriptionFinder
	Records       SubscriptionAttacher
	Objects       ObjectDeleter
}

// Queue runs payment reconcile and object delete jobs from Redis lists.
// Failed jobs wait in JobDelayedKey until their backoff passes.
type Queue struct {
	client     *redis.Client
	procs      Processors
	workers    int
	retryDelay time.Duration
	// stuckAfter is how long a job may sit in processing before it is requeued.
	stuckAfter time.Duration
	tick       time.Duration
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

func NewQueue(client *redis.Client, workers int, procs Processors) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:     client,
		procs:      procs,
		workers:    workers,
		retryDelay: time.Minute,
		stuckAfter: 10 * time.Minute,
		tick:       time.Second,
		workerPool: make(chan struct{}, workers),
		stopCh:     make(chan struct{}),
	}
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	q.workerPool = make(chan struct{}, q.workers)
	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.maintenance()
}

func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// maintenance promotes due retries every tick and sweeps stuck jobs once a minute.
func (q *Queue) maintenance() {
	defer q.wg.Done()
	promote := time.NewTicker(q.tick)
	defer promote.Stop()
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		case now := <-promote.C:
			if _, err := q.promoteDue(ctx, now); err != nil {
				log.Errorf("[JobQueue] Promoting retries failed: %v", err)
			}
		case now := <-sweep.C:
			if _, err := q.sweepStuck(ctx, now); err != nil {
				log.Errorf("[JobQueue] Stuck sweep failed: %v", err)
			}
		}
	}
}

// promoteDue moves retries whose backoff has passed back onto the queue.
// ZRem decides ownership so two instances never promote the same job twice.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// sweepStuck requeues jobs left in processing by a crashed worker and drops
// processing entries whose job data is gone.
func (q *Queue) sweepStuck(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			if err != nil && !errors.Is(err, errJobMissing) {
				log.Warnf("[JobQueue] Dropping unreadable job %s: %v", id, err)
			}
			q.removeFromProcessing(ctx, id)
			continue
		}
		if age := now.Sub(job.startedAt()); age > q.stuckAfter {
			log.Warnf("[JobQueue] Requeueing stuck %s job %s after %s", job.Type, job.ID, age.Round(time.Second))
			job.Status = JobStatusPending
			job.ErrorMsg = "recovered by sweeper"
			job.UpdatedAt = now
			q.updateJob(ctx, job)
			q.removeFromProcessing(ctx, id)
			if err := q.client.RPush(ctx, JobQueueKey, id).Err(); err != nil {
				return recovered, err
			}
			recovered++
		}
	}
	return recovered, nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Debugf("[JobQueue] Worker %d stopping", id)
			return
		case <-q.workerPool:
		}

		job, err := q.dequeueJob(ctx)
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			time.Sleep(time.Second)
		default:
			log.Infof("[JobQueue] Worker %d running %s job %s", id, job.Type, job.ID)
			q.processJob(ctx, job)
		}
		q.workerPool <- struct{}{}
	}
}

func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, raw, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

// dequeueJob blocks up to the tick for the next job and moves it to processing.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, q.tick).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.loadJob(ctx, id)
	if err != nil {
		q.removeFromProcessing(ctx, id)
		return nil, err
	}
	return job, nil
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.Get(ctx, JobKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", errJobMissing, id)
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)
	defer q.removeFromProcessing(ctx, job.ID)

	err := q.handle(ctx, job)
	if err == nil {
		log.Infof("[JobQueue] Job %s completed", job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.removeCompletedJob(ctx, job.ID)
		return
	}

	log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
	job.MarkAsFailed(err.Error())
	if !job.IsRetryable() {
		log.Errorf("[JobQueue] Job %s gave up after %d retries", job.ID, job.RetryCount)
		q.updateJob(ctx, job)
		q.updateJobStats(ctx, JobStatusFailed, 1)
		q.giveUp(job)
		return
	}

	job.MarkAsRetrying()
	q.updateJob(ctx, job)
	readyAt := time.Now().Add(q.retryDelay * time.Duration(job.RetryCount))
	if err := q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(readyAt.Unix()), Member: job.ID}).Err(); err != nil {
		log.Errorf("[JobQueue] Scheduling retry of %s failed: %v", job.ID, err)
		return
	}
	log.Infof("[JobQueue] Retry %d/%d of job %s at %s", job.RetryCount, job.MaxRetries, job.ID, readyAt.Format(time.RFC3339))
}

func (q *Queue) handle(ctx context.Context, job *Job) error {
	switch job.Type {
	case JobTypePaymentReconcile:
		return q.processPaymentReconcileJob(ctx, job)
	case JobTypeObjectDelete:
		return q.processObjectDeleteJob(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// giveUp runs after the last retry of a job failed.
func (q *Queue) giveUp(job *Job) {
	switch job.Type {
	case JobTypePaymentReconcile:
		reportUnreconciled(job)
	case JobTypeObjectDelete:
		log.Warnf("[JobQueue] Orphaned objects left in store by job %s: %v", job.ID, job.Payload["keys"])
	}
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	raw, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, raw, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing: %v", jobID, err)
	}
}

// completed jobs leave only their count in JobStatsKey
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove completed job %s: %v", jobID, err)
	}
}

func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob fails for unknown or expired ids.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return q.loadJob(ctx, jobID)
}

func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, count := range raw {
		if n, err := strconv.ParseInt(count, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

// GetDelayedSize counts jobs waiting for a retry.
func (q *Queue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobDelayedKey).Result()
}
