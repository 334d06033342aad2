package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// ErrorHandler logs failed and panicking jobs. Retries are left to River.
// A reap job that runs out of attempts leaves a deleted form's responses in place, so that case is
// logged under its own message with the form id for manual cleanup.
type ErrorHandler struct{}

// HandleError is called when a job returns an error.
func (h *ErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	attrs := append(jobAttrs(job), "error", err)

	if isReap(job) && finalAttempt(job) {
		slog.ErrorContext(ctx, "response reap gave up, responses of deleted form remain", attrs...)

		return nil
	}

	slog.ErrorContext(ctx, "job failed", attrs...)

	return nil
}

// HandlePanic is called when a job panics.
func (h *ErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	slog.ErrorContext(ctx, "job panicked", append(jobAttrs(job), "panic_value", panicVal, "stack_trace", trace)...)

	return nil
}

func jobAttrs(job *rivertype.JobRow) []any {
	attrs := []any{
		"job_kind", job.Kind,
		"job_id", job.ID,
		"queue", job.Queue,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
	}

	if isReap(job) {
		var args ResponseReapArgs
		if json.Unmarshal(job.EncodedArgs, &args) == nil {
			attrs = append(attrs, "form_id", args.FormID)
		}
	}

	return attrs
}

func isReap(job *rivertype.JobRow) bool {
	return job.Kind == ResponseReapArgs{}.Kind()
}

func finalAttempt(job *rivertype.JobRow) bool {
	return job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts
}
