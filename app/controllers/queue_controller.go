package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ListingHub/app/models"
	"github.com/ManuelReschke/ListingHub/app/repository"
	"github.com/ManuelReschke/ListingHub/internal/pkg/jobqueue"
)

// JobStats is the part of the job queue the monitor reads.
type JobStats interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetDelayedSize(ctx context.Context) (int64, error)
}

// StatusCounter counts business rows by status.
type StatusCounter interface {
	CountByStatus(status string) (int64, error)
}

// QueueItem is one job as shown by the monitor.
type QueueItem struct {
	ID         string             `json:"id"`
	Type       jobqueue.JobType   `json:"type"`
	Status     jobqueue.JobStatus `json:"status"`
	RetryCount int                `json:"retry_count"`
	Error      string             `json:"error,omitempty"`
	TTL        time.Duration      `json:"ttl_ns"`
	CreatedAt  time.Time          `json:"created_at"`
}

// QueueController exposes the background job state to operators.
type QueueController struct {
	queueRepo  repository.QueueRepository
	stats      JobStats
	businesses StatusCounter
}

func NewQueueController(queueRepo repository.QueueRepository, stats JobStats, businesses StatusCounter) *QueueController {
	return &QueueController{queueRepo: queueRepo, stats: stats, businesses: businesses}
}

// HandleSummary reports queue lengths, delayed retries, status counters and
// the number of businesses still waiting for a subscription.
func (qc *QueueController) HandleSummary(c *fiber.Ctx) error {
	queued, err := qc.queueRepo.GetListLength(jobqueue.JobQueueKey)
	if err != nil {
		return qc.handleError(c, "read queue length", err)
	}
	processing, err := qc.queueRepo.GetListLength(jobqueue.JobProcessingKey)
	if err != nil {
		return qc.handleError(c, "read processing length", err)
	}
	stats, err := qc.stats.GetJobStats(c.UserContext())
	if err != nil {
		return qc.handleError(c, "read job stats", err)
	}
	delayed, err := qc.stats.GetDelayedSize(c.UserContext())
	if err != nil {
		return qc.handleError(c, "read delayed retries", err)
	}
	pending, err := qc.businesses.CountByStatus(models.BusinessStatusPendingPayment)
	if err != nil {
		return qc.handleError(c, "count pending businesses", err)
	}
	return c.JSON(fiber.Map{
		"queued":          queued,
		"processing":      processing,
		"delayed":         delayed,
		"stats":           stats,
		"pending_payment": pending,
	})
}

// HandleJobs lists stored jobs, optionally filtered by ?status=.
func (qc *QueueController) HandleJobs(c *fiber.Ctx) error {
	items, err := qc.getQueueItems(jobqueue.JobStatus(strings.TrimSpace(c.Query("status"))))
	if err != nil {
		return qc.handleError(c, "list jobs", err)
	}
	return c.JSON(fiber.Map{"jobs": items})
}

// HandleJobDelete removes a single job record.
func (qc *QueueController) HandleJobDelete(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return badRequest(c, "job id is required")
	}
	deleted, err := qc.queueRepo.DeleteKey(jobqueue.JobKeyPrefix + id)
	if err != nil {
		return qc.handleError(c, "delete job", err)
	}
	if deleted == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "job not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandlePurge deletes finished job records (completed by default).
func (qc *QueueController) HandlePurge(c *fiber.Ctx) error {
	status := jobqueue.JobStatus(c.Query("status", string(jobqueue.JobStatusCompleted)))
	if status != jobqueue.JobStatusCompleted && status != jobqueue.JobStatusFailed {
		return badRequest(c, "only completed or failed jobs can be purged")
	}
	items, err := qc.getQueueItems(status)
	if err != nil {
		return qc.handleError(c, "list jobs", err)
	}
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, jobqueue.JobKeyPrefix+it.ID)
	}
	deleted, err := qc.queueRepo.DeleteKeys(keys)
	if err != nil {
		return qc.handleError(c, "purge jobs", err)
	}
	return c.JSON(fiber.Map{"success": true, "deleted": deleted})
}

func (qc *QueueController) handleError(c *fiber.Ctx, action string, err error) error {
	log.Errorf("[Queue] %s failed: %v", action, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_server_error",
		"message": action + " failed",
	})
}

// getQueueItems reads every job key, newest first.
func (qc *QueueController) getQueueItems(status jobqueue.JobStatus) ([]QueueItem, error) {
	keys, err := qc.queueRepo.FindKeysByPatterns([]string{jobqueue.JobKeyPrefix + "*"})
	if err != nil {
		return nil, err
	}

	items := make([]QueueItem, 0, len(keys))
	for _, key := range keys {
		value, err := qc.queueRepo.GetValue(key)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var job jobqueue.Job
		if err := json.Unmarshal([]byte(value), &job); err != nil {
			log.Warnf("[Queue] Skipping unreadable job %s: %v", key, err)
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		ttl, err := qc.queueRepo.GetTTL(key)
		if err != nil {
			ttl = -1
		}
		items = append(items, QueueItem{
			ID:         job.ID,
			Type:       job.Type,
			Status:     job.Status,
			RetryCount: job.RetryCount,
			Error:      job.ErrorMsg,
			TTL:        ttl,
			CreatedAt:  job.CreatedAt,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}
