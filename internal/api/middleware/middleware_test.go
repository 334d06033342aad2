package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpmail/formhub/internal/observability"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func TestAuth(t *testing.T) {
	var gotOwner string

	h := Auth("secret-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOwner = OwnerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		auth   string
		owner  string
		status int
	}{
		{name: "valid", auth: "Bearer secret-key", owner: "user-1", status: http.StatusNoContent},
		{name: "lowercase scheme", auth: "bearer secret-key", owner: "user-1", status: http.StatusNoContent},
		{name: "missing header", auth: "", owner: "user-1", status: http.StatusUnauthorized},
		{name: "wrong scheme", auth: "Basic secret-key", owner: "user-1", status: http.StatusUnauthorized},
		{name: "wrong key", auth: "Bearer nope", owner: "user-1", status: http.StatusUnauthorized},
		{name: "empty key", auth: "Bearer ", owner: "user-1", status: http.StatusUnauthorized},
		{name: "missing owner", auth: "Bearer secret-key", owner: "", status: http.StatusUnauthorized},
		{name: "owner with spaces", auth: "Bearer secret-key", owner: "a b", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotOwner = ""

			req := httptest.NewRequest(http.MethodGet, "http://test/v1/forms", http.NoBody)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}

			if tt.owner != "" {
				req.Header.Set(UserIDHeader, tt.owner)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)

			if tt.status == http.StatusNoContent {
				assert.Equal(t, tt.owner, gotOwner)
			} else {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestAuth_EmptyConfiguredKeyRejectsAll(t *testing.T) {
	h := Auth("")(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "http://test/v1/forms", http.NoBody)
	req.Header.Set("Authorization", "Bearer anything")
	req.Header.Set(UserIDHeader, "user-1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = observability.RequestIDFromContext(r.Context())
	}))

	t.Run("propagates client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://test/health", http.NoBody)
		req.Header.Set(requestIDHeader, "abc-123")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
	})

	t.Run("replaces unusable id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://test/health", http.NoBody)
		req.Header.Set(requestIDHeader, "bad id\twith spaces")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.NotEqual(t, "bad id\twith spaces", seen)
		assert.Len(t, seen, 36)
	})
}

type countingBodyRecorder struct{ n int }

func (c *countingBodyRecorder) RecordRequestBodyTooLarge(context.Context) { c.n++ }

func TestMaxBody(t *testing.T) {
	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)

			return
		}

		w.WriteHeader(http.StatusCreated)
	})

	t.Run("under limit passes", func(t *testing.T) {
		h := MaxBody(16, nil)(readAll)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://test/v1/forms", strings.NewReader("small")))

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("over limit is 413", func(t *testing.T) {
		recorder := &countingBodyRecorder{}
		h := MaxBody(16, recorder)(readAll)

		req := httptest.NewRequest(http.MethodPost, "http://test/v1/forms", strings.NewReader(strings.Repeat("x", 64)))
		req.ContentLength = -1

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, 1, recorder.n)
	})

	t.Run("declared length over limit is rejected early", func(t *testing.T) {
		called := false
		h := MaxBody(16, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "http://test/v1/forms/x", strings.NewReader(strings.Repeat("x", 64))))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.False(t, called)
	})

	t.Run("disabled limit", func(t *testing.T) {
		h := MaxBody(0, nil)(readAll)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://test/v1/forms", strings.NewReader(strings.Repeat("x", 64))))

		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

type requestRecord struct {
	method, route, class string
}

type fakeRequestRecorder struct{ records []requestRecord }

func (f *fakeRequestRecorder) RecordRequest(_ context.Context, method, route, statusClass string, _ time.Duration) {
	f.records = append(f.records, requestRecord{method, route, statusClass})
}

func TestMetrics(t *testing.T) {
	rec := &fakeRequestRecorder{}
	h := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://test/public/forms/550e8400-e29b-41d4-a716-446655440000", http.NoBody))

	require.Len(t, rec.records, 1)
	assert.Equal(t, requestRecord{"GET", "/public/forms/{id}", "4xx"}, rec.records[0])
}

func TestNormalizeRoute(t *testing.T) {
	assert.Equal(t, "/v1/forms/{id}/responses/count", normalizeRoute("/v1/forms/0190a7a8-8d2e-7c3b-9f1a-1234567890ab/responses/count"))
	assert.Equal(t, "/v1/forms", normalizeRoute("/v1/forms"))
}

func TestStatusToClass(t *testing.T) {
	assert.Equal(t, "2xx", statusToClass(204))
	assert.Equal(t, "3xx", statusToClass(307))
	assert.Equal(t, "4xx", statusToClass(429))
	assert.Equal(t, "5xx", statusToClass(503))
	assert.Equal(t, "unknown", statusToClass(0))
}

type fakeRateRecorder struct{ routes []string }

func (f *fakeRateRecorder) RecordRateLimited(_ context.Context, route string) {
	f.routes = append(f.routes, route)
}

func TestRateLimit(t *testing.T) {
	limiter := NewClientRateLimiter(0.001, 2, false)
	recorder := &fakeRateRecorder{}
	h := RateLimit(limiter, recorder)(http.HandlerFunc(okHandler))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "http://test/public/forms/550e8400-e29b-41d4-a716-446655440000/responses", http.NoBody)
		req.RemoteAddr = remote

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:2222").Code)

	limited := send("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	var problem map[string]any
	require.NoError(t, json.NewDecoder(limited.Body).Decode(&problem))
	assert.InDelta(t, float64(http.StatusTooManyRequests), problem["status"], 0)

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1111").Code, "other clients have their own budget")
	assert.Equal(t, []string{"/public/forms/{id}/responses"}, recorder.routes)
}

func TestClientRateLimiter_ClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://test/", http.NoBody)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "192.0.2.1", NewClientRateLimiter(1, 1, false).ClientIP(req))
	assert.Equal(t, "203.0.113.9", NewClientRateLimiter(1, 1, true).ClientIP(req))
}

func TestLogging_RecordsStatus(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	Logging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("hello"))
	})).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "http://test/", http.NoBody))

	assert.Equal(t, http.StatusAccepted, rw.statusCode)
	assert.Equal(t, 5, rw.bytes)
}
