package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// ObjectDeleter removes stored objects. Deleting a missing key is not an error.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// EnqueueObjectDelete schedules removal of the object keys of deleted images.
func (q *Queue) EnqueueObjectDelete(ctx context.Context, businessID uint, keys []string) (*Job, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	payload := ObjectDeleteJobPayload{BusinessID: businessID, Keys: keys}
	return q.EnqueueJob(ctx, JobTypeObjectDelete, payload.ToMap())
}

// processObjectDeleteJob deletes every key and fails with the joined errors
// of the keys that could not be removed. Retries delete the whole list again.
func (q *Queue) processObjectDeleteJob(ctx context.Context, job *Job) error {
	payload, err := ObjectDeleteJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse object delete payload: %w", err)
	}
	if q.procs.Objects == nil {
		return fmt.Errorf("object store is not configured")
	}

	var errs []error
	removed := 0
	for _, key := range payload.Keys {
		if key == "" {
			continue
		}
		if err := q.procs.Objects.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		removed++
	}
	log.Infof("[ObjectDelete] Removed %d/%d object(s) of business %d", removed, len(payload.Keys), payload.BusinessID)
	return errors.Join(errs...)
}
