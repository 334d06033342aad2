package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/xpmail/formhub/internal/api/response"
)

const (
	defaultMaxTrackedClients = 10000
	clientIdleTTL            = 10 * time.Minute
)

// RateLimitedRecorder records a request rejected with 429.
type RateLimitedRecorder interface {
	RecordRateLimited(ctx context.Context, route string)
}

// ClientRateLimiter hands out one token bucket per client IP. Idle clients are forgotten after ten minutes.
type ClientRateLimiter struct {
	mu             sync.Mutex
	limiters       *expirable.LRU[string, *rate.Limiter]
	limit          rate.Limit
	burst          int
	trustForwarded bool
}

// NewClientRateLimiter allows perSecond sustained requests per client with the given burst.
// When trustForwarded is true the first X-Forwarded-For address identifies the client.
func NewClientRateLimiter(perSecond float64, burst int, trustForwarded bool) *ClientRateLimiter {
	if burst <= 0 {
		burst = 1
	}

	return &ClientRateLimiter{
		limiters:       expirable.NewLRU[string, *rate.Limiter](defaultMaxTrackedClients, nil, clientIdleTTL),
		limit:          rate.Limit(perSecond),
		burst:          burst,
		trustForwarded: trustForwarded,
	}
}

// Allow reports whether the client may proceed now; when not, it also returns the suggested wait.
func (l *ClientRateLimiter) Allow(client string) (bool, time.Duration) {
	lim := l.limiterFor(client)

	res := lim.Reserve()
	if !res.OK() {
		return false, time.Second
	}

	if delay := res.Delay(); delay > 0 {
		res.Cancel()

		return false, delay
	}

	return true, 0
}

func (l *ClientRateLimiter) limiterFor(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters.Get(client); ok {
		return lim
	}

	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(client, lim)

	return lim
}

// ClientIP identifies the client of r.
func (l *ClientRateLimiter) ClientIP(r *http.Request) string {
	if l.trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// RateLimit rejects requests over the client's budget with 429 and a Retry-After header.
// recorder may be nil.
func RateLimit(limiter *ClientRateLimiter, recorder RateLimitedRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.Allow(limiter.ClientIP(r))
			if !ok {
				if recorder != nil {
					recorder.RecordRateLimited(r.Context(), normalizeRoute(r.URL.Path))
				}

				response.RespondTooManyRequests(w, int(math.Ceil(wait.Seconds())))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
