package middleware

import (
	"context"
	"time"

	"github.com/erp/salesrecon/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsConfig holds configuration for HTTP metrics middleware.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	Enabled       bool
}

// httpMetrics holds all HTTP-related metrics instruments.
type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	responseSize    *telemetry.Histogram
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requestTotal, err := telemetry.NewCounter(meter,
		"http_server_request_total",
		"Total number of HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := telemetry.NewHistogram(meter,
		"http_server_request_duration_seconds",
		"HTTP request latency distribution in seconds",
		"s",
		telemetry.HTTPDurationBuckets...,
	)
	if err != nil {
		return nil, err
	}

	// Report pages run large; buckets reach 5MB
	responseSize, err := telemetry.NewHistogram(meter,
		"http_server_response_size_bytes",
		"HTTP response body size distribution in bytes",
		"By",
		100, 1000, 10000, 100000, 500000, 1000000, 5000000,
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &httpMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		responseSize:    responseSize,
		activeRequests:  activeRequests,
	}, nil
}

// HTTPMetrics returns a Gin middleware that collects request count, latency,
// response size and in-flight requests. It is a no-op when metrics are disabled.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil || !cfg.MeterProvider.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"), true)
}

// HTTPMetricsWithMeter returns HTTP metrics middleware using an existing meter.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled || meter == nil {
		return passThrough
	}
	metrics, err := newHTTPMetrics(meter)
	if err != nil {
		return passThrough
	}
	return metrics.middleware
}

func passThrough(c *gin.Context) {
	c.Next()
}

func (m *httpMetrics) middleware(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()

	m.activeRequests.Add(ctx, 1)
	c.Next()
	m.activeRequests.Add(ctx, -1)

	m.record(ctx, c.Request.Method, getRoutePattern(c), c.Writer.Status(), time.Since(start), c.Writer.Size())
}

func (m *httpMetrics) record(ctx context.Context, method, route string, status int, d time.Duration, size int) {
	attrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
	}
	m.requestTotal.Inc(ctx, append(attrs, telemetry.AttrHTTPStatusCode.Int(status))...)
	m.requestDuration.RecordDuration(ctx, d, attrs...)
	if size > 0 {
		m.responseSize.Record(ctx, float64(size), attrs...)
	}
}

// getRoutePattern returns the matched route pattern to keep cardinality low
func getRoutePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}
