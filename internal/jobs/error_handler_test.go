package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	return &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))

	return rec
}

func reapJob(t *testing.T, formID uuid.UUID, attempt, maxAttempts int) *rivertype.JobRow {
	t.Helper()

	encoded, err := json.Marshal(ResponseReapArgs{FormID: formID})
	require.NoError(t, err)

	return &rivertype.JobRow{
		ID:          42,
		Kind:        ResponseReapArgs{}.Kind(),
		Queue:       MaintenanceQueueName,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		EncodedArgs: encoded,
	}
}

func TestErrorHandler_HandleError(t *testing.T) {
	formID := uuid.New()

	tests := []struct {
		name    string
		attempt int
		message string
	}{
		{name: "retryable attempt", attempt: 3, message: "job failed"},
		{name: "last attempt", attempt: 10, message: "response reap gave up, responses of deleted form remain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)

			res := (&ErrorHandler{}).HandleError(context.Background(), reapJob(t, formID, tt.attempt, 10), errors.New("connection reset"))
			assert.Nil(t, res)

			rec := lastRecord(t, buf)
			assert.Equal(t, tt.message, rec["msg"])
			assert.Equal(t, formID.String(), rec["form_id"])
			assert.Equal(t, "connection reset", rec["error"])
			assert.Equal(t, MaintenanceQueueName, rec["queue"])
		})
	}
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	buf := captureLog(t)

	job := &rivertype.JobRow{ID: 7, Kind: "other", Attempt: 1, MaxAttempts: 1, EncodedArgs: []byte(`{}`)}

	res := (&ErrorHandler{}).HandlePanic(context.Background(), job, "boom", "stack")
	assert.Nil(t, res)

	rec := lastRecord(t, buf)
	assert.Equal(t, "job panicked", rec["msg"])
	assert.Equal(t, "boom", rec["panic_value"])
	assert.NotContains(t, rec, "form_id")
}
