package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xpmail/formhub/internal/api/response"
)

const bodyTooLargeDetail = "request body exceeds maximum allowed size"

// mayHaveBody is true for methods that typically send a request body (we buffer only then to send 413).
func mayHaveBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody returns a middleware that limits request body size to maxBytes.
// When the body exceeds the limit, the response is 413 Request Entity Too Large,
// whatever status the handler chose after its read failed.
// recorder may be nil. maxBytes <= 0 disables the limit.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	reject := func(w http.ResponseWriter, r *http.Request) {
		if recorder != nil {
			recorder.RecordRequestBodyTooLarge(r.Context())
		}

		response.RespondRequestEntityTooLarge(w, bodyTooLargeDetail)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				reject(w, r)

				return
			}

			tracked := &maxBodyReader{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = tracked

			// GET/DELETE stream directly to avoid buffering cost.
			if !mayHaveBody(r.Method) {
				next.ServeHTTP(w, r)

				return
			}

			buf := &responseBuffer{ResponseWriter: w}
			next.ServeHTTP(buf, r)

			if tracked.exceeded {
				reject(buf.ResponseWriter, r)

				return
			}

			buf.flush()
		})
	}
}

type maxBodyReader struct {
	io.ReadCloser

	exceeded bool
}

func (r *maxBodyReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err //nolint:wrapcheck // io.EOF must reach callers unwrapped
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		r.exceeded = true
	}

	return n, fmt.Errorf("read body: %w", err)
}

// responseBuffer captures status and body so we can discard them and send 413 instead.
type responseBuffer struct {
	http.ResponseWriter

	status int
	buf    bytes.Buffer
}

func (b *responseBuffer) WriteHeader(code int) {
	b.status = code
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	n, err := b.buf.Write(p)
	if err != nil {
		return n, fmt.Errorf("buffer write: %w", err)
	}

	return n, nil
}

func (b *responseBuffer) flush() {
	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.buf.WriteTo(b.ResponseWriter)
}
