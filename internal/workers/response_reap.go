// Package workers provides River job workers.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/xpmail/formhub/internal/jobs"
	"github.com/xpmail/formhub/internal/observability"
)

// ResponseReapTimeout bounds a single reap run. Unfinished work is picked up by a retry.
const ResponseReapTimeout = 2 * time.Minute

const defaultReapBatchSize = 500

// responseReaper is the minimal repo interface needed by the worker.
type responseReaper interface {
	DeleteBatchByForm(ctx context.Context, formID uuid.UUID, limit int) (int64, error)
}

// ResponseReapWorker deletes the responses of a deleted form in batches.
type ResponseReapWorker struct {
	river.WorkerDefaults[jobs.ResponseReapArgs]

	repo      responseReaper
	batchSize int
	metrics   observability.FormMetrics
}

// NewResponseReapWorker creates the worker. metrics may be nil when metrics are disabled.
func NewResponseReapWorker(repo responseReaper, batchSize int, metrics observability.FormMetrics) *ResponseReapWorker {
	if batchSize <= 0 {
		batchSize = defaultReapBatchSize
	}

	return &ResponseReapWorker{repo: repo, batchSize: batchSize, metrics: metrics}
}

// Timeout limits how long a single reap can run.
func (w *ResponseReapWorker) Timeout(*river.Job[jobs.ResponseReapArgs]) time.Duration {
	return ResponseReapTimeout
}

// Work deletes batches until fewer than batchSize rows are removed.
func (w *ResponseReapWorker) Work(ctx context.Context, job *river.Job[jobs.ResponseReapArgs]) error {
	formID := job.Args.FormID
	if formID == uuid.Nil {
		slog.WarnContext(ctx, "response reap: job without form id, skipping", "job_id", job.ID)

		return nil
	}

	var total int64

	for {
		n, err := w.repo.DeleteBatchByForm(ctx, formID, w.batchSize)
		total += n

		if w.metrics != nil && n > 0 {
			w.metrics.RecordResponsesReaped(ctx, n)
		}

		if err != nil {
			slog.WarnContext(ctx, "response reap: batch failed, will retry",
				"form_id", formID,
				"deleted_so_far", total,
				"attempt", job.Attempt,
				"error", err,
			)

			return fmt.Errorf("reap responses: %w", err)
		}

		if n < int64(w.batchSize) {
			break
		}
	}

	slog.InfoContext(ctx, "response reap complete", "form_id", formID, "deleted", total)

	return nil
}
