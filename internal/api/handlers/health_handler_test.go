package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Check(rec, httptest.NewRequest(http.MethodGet, "http://test/health", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name   string
		ping   error
		status int
	}{
		{name: "database up", status: http.StatusOK},
		{name: "database down", ping: errors.New("dial tcp: connection refused"), status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(pingerFunc(func(ctx context.Context) error {
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)

				return tt.ping
			}))

			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "http://test/ready", http.NoBody))

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
