package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_normalizeSubmissionOutcome(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"accepted", "accepted", "accepted"},
		{"incomplete", "incomplete", "incomplete"},
		{"form_not_found", "form_not_found", "form_not_found"},
		{"persist_failed", "persist_failed", "persist_failed"},
		{"unknown empty", "", "unknown"},
		{"unknown random", "spam", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeSubmissionOutcome(tt.input)
			if got != tt.expected {
				t.Errorf("normalizeSubmissionOutcome(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func Test_normalizeNotificationLabels(t *testing.T) {
	tests := []struct {
		name     string
		fn       func(string) string
		input    string
		expected string
	}{
		{"delivered", normalizeNotificationOutcome, "delivered", "delivered"},
		{"failed", normalizeNotificationOutcome, "failed", "failed"},
		{"outcome unknown", normalizeNotificationOutcome, "timeout", "unknown"},
		{"email channel", normalizeChannel, "email", "email"},
		{"webhook channel", normalizeChannel, "webhook", "webhook"},
		{"channel unknown", normalizeChannel, "sms", "unknown"},
		{"public_form cache", normalizeCacheName, "public_form", "public_form"},
		{"cache other", normalizeCacheName, "forms_by_owner", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.fn(tt.input))
		})
	}
}

func TestNewMeterProvider_ServesRecordedMetrics(t *testing.T) {
	ctx := context.Background()

	provider, handler, metrics, err := NewMeterProvider(ctx, MeterProviderConfig{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics.RecordSubmission(ctx, SubmissionAccepted)
	metrics.RecordNotification(ctx, "webhook", NotificationFailed, 120*time.Millisecond)
	metrics.RecordRequest(ctx, http.MethodPost, "/public/forms/{id}/responses", "2xx", 30*time.Millisecond)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), "form_submissions_total")
	assert.Contains(t, string(body), `outcome="accepted"`)
	assert.Contains(t, string(body), "notifications_total")
	assert.Contains(t, string(body), `channel="webhook"`)
}
