// Package jobs defines River job arguments and queue plumbing shared by the repository and workers.
package jobs

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// MaintenanceQueueName is the River queue for housekeeping jobs such as response reaping.
const MaintenanceQueueName = "maintenance"

// ResponseReapArgs deletes the responses left behind by a deleted form.
type ResponseReapArgs struct {
	FormID uuid.UUID `json:"form_id"`
}

// Kind returns the job kind for River.
func (ResponseReapArgs) Kind() string { return "response_reap" }

// InsertOpts places reap jobs on the maintenance queue, one pending job per form.
func (ResponseReapArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       MaintenanceQueueName,
		MaxAttempts: 10,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	}
}
