// Package observability provides OpenTelemetry metrics (Prometheus exporter), optional tracing, and log enrichment.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterScope         = "github.com/xpmail/formhub/internal/observability"
	defaultServiceName = "formhub-api"
	cardinalityLimit   = 2000
)

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) for request and notification duration histograms.
var latencyHistogramBoundaries = []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10}

// Submission outcomes.
const (
	SubmissionAccepted      = "accepted"
	SubmissionInvalid       = "invalid"
	SubmissionIncomplete    = "incomplete"
	SubmissionFormNotFound  = "form_not_found"
	SubmissionPersistFailed = "persist_failed"
)

// Notification outcomes.
const (
	NotificationDelivered = "delivered"
	NotificationFailed    = "failed"
)

// FormMetrics is the single metrics interface for the service (HTTP, submissions, notifications, jobs).
type FormMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordSubmission(ctx context.Context, outcome string)
	RecordNotification(ctx context.Context, channel, outcome string, duration time.Duration)
	RecordResponsesReaped(ctx context.Context, count int64)
	RecordCacheLookup(ctx context.Context, cache string, hit bool)
	RecordRateLimited(ctx context.Context, route string)
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the MeterProvider and metrics.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: formhub-api).
	ServiceName string
}

// NewMeterProvider creates a MeterProvider with Prometheus exporter and returns the provider,
// an HTTP handler for /metrics, and FormMetrics backed by the provider's Meter.
// Caller must call provider.Shutdown on exit.
func NewMeterProvider(_ context.Context, cfg MeterProviderConfig) (provider MeterProviderShutdown, metricsHandler http.Handler, metrics FormMetrics, err error) {
	serviceNameVal := cfg.ServiceName
	if serviceNameVal == "" {
		serviceNameVal = defaultServiceName
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceNameVal),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	latencyView := func(name string) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
		)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			latencyView("http.server.duration"),
			latencyView("notification_duration_seconds"),
		),
	)

	m, err := newMetricsFromMeter(mp.Meter(meterScope))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	return mp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m, nil
}

func newMetricsFromMeter(meter metric.Meter) (*formMetricsImpl, error) {
	requestCount, err := meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("request_count: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("http.server.duration: %w", err)
	}

	submissions, err := meter.Int64Counter(
		"form_submissions_total",
		metric.WithDescription("Public form submissions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("form_submissions_total: %w", err)
	}

	notifications, err := meter.Int64Counter(
		"notifications_total",
		metric.WithDescription("Notification attempts by channel and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("notifications_total: %w", err)
	}

	notificationDuration, err := meter.Float64Histogram(
		"notification_duration_seconds",
		metric.WithDescription("Notification delivery duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("notification_duration_seconds: %w", err)
	}

	reaped, err := meter.Int64Counter(
		"responses_reaped_total",
		metric.WithDescription("Responses deleted after their form was deleted"),
	)
	if err != nil {
		return nil, fmt.Errorf("responses_reaped_total: %w", err)
	}

	cacheLookups, err := meter.Int64Counter(
		"cache_lookups_total",
		metric.WithDescription("Cache lookups by cache name and result (hit, miss)"),
	)
	if err != nil {
		return nil, fmt.Errorf("cache_lookups_total: %w", err)
	}

	rateLimited, err := meter.Int64Counter(
		"rate_limited_requests_total",
		metric.WithDescription("Requests rejected with 429 by the per-client rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("rate_limited_requests_total: %w", err)
	}

	bodyTooLarge, err := meter.Int64Counter(
		"request_body_too_large_total",
		metric.WithDescription("Requests rejected because the body exceeded the configured limit (413)"),
	)
	if err != nil {
		return nil, fmt.Errorf("request_body_too_large_total: %w", err)
	}

	return &formMetricsImpl{
		requestCount:         requestCount,
		requestDuration:      requestDuration,
		submissions:          submissions,
		notifications:        notifications,
		notificationDuration: notificationDuration,
		reaped:               reaped,
		cacheLookups:         cacheLookups,
		rateLimited:          rateLimited,
		bodyTooLarge:         bodyTooLarge,
	}, nil
}

type formMetricsImpl struct {
	requestCount         metric.Int64Counter
	requestDuration      metric.Float64Histogram
	submissions          metric.Int64Counter
	notifications        metric.Int64Counter
	notificationDuration metric.Float64Histogram
	reaped               metric.Int64Counter
	cacheLookups         metric.Int64Counter
	rateLimited          metric.Int64Counter
	bodyTooLarge         metric.Int64Counter
}

func (m *formMetricsImpl) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass),
	)
	m.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))

	durAttrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(durAttrs))
}

func (m *formMetricsImpl) RecordSubmission(ctx context.Context, outcome string) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", normalizeSubmissionOutcome(outcome))))
}

func (m *formMetricsImpl) RecordNotification(ctx context.Context, channel, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("channel", normalizeChannel(channel)),
		attribute.String("outcome", normalizeNotificationOutcome(outcome)),
	)
	m.notifications.Add(ctx, 1, attrs)
	m.notificationDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *formMetricsImpl) RecordResponsesReaped(ctx context.Context, count int64) {
	m.reaped.Add(ctx, count)
}

func (m *formMetricsImpl) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", normalizeCacheName(cache)),
		attribute.String("result", result),
	))
}

func (m *formMetricsImpl) RecordRateLimited(ctx context.Context, route string) {
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

func (m *formMetricsImpl) RecordRequestBodyTooLarge(ctx context.Context) {
	m.bodyTooLarge.Add(ctx, 1)
}

// normalizeSubmissionOutcome maps a submission outcome to a bounded set.
func normalizeSubmissionOutcome(s string) string {
	switch s {
	case SubmissionAccepted, SubmissionInvalid, SubmissionIncomplete, SubmissionFormNotFound, SubmissionPersistFailed:
		return s
	default:
		return "unknown"
	}
}

// normalizeNotificationOutcome maps a notification outcome to a bounded set.
func normalizeNotificationOutcome(s string) string {
	switch s {
	case NotificationDelivered, NotificationFailed:
		return s
	default:
		return "unknown"
	}
}

// normalizeChannel maps a notification channel to a bounded set.
func normalizeChannel(s string) string {
	switch s {
	case "email", "webhook":
		return s
	default:
		return "unknown"
	}
}

// normalizeCacheName maps a cache name to a bounded set.
func normalizeCacheName(s string) string {
	switch s {
	case "public_form":
		return s
	default:
		return "other"
	}
}
