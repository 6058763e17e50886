package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps caller-supplied request IDs
const MaxRequestIDLength = 128

// Span attribute keys added on top of the otelgin semantic conventions
const (
	AttrRequestID   = attribute.Key("request_id")
	AttrUserID      = attribute.Key("user_id")
	AttrPointOfSale = attribute.Key("recon.ps")
	AttrInvoice     = attribute.Key("recon.num_fact")
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "salesrecon",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin. Once the chain has run the request span
// is tagged with the request ID, the caller and the shop and invoice being
// worked on. Span names follow "METHOD route_pattern".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	otelMiddleware := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		// otelgin calls c.Next itself
		otelMiddleware(c)
		tagSpan(c)
	}
}

// TracingAttributeInjector tags the span before the handler runs. Place it
// after both Tracing and JWT so the user ID is known.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		tagSpan(c)
		c.Next()
	}
}

func tagSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, 4)
	add := func(k attribute.Key, v string) {
		if v != "" {
			attrs = append(attrs, k.String(v))
		}
	}
	add(AttrRequestID, getRequestID(c))
	add(AttrUserID, c.GetString(JWTUserIDKey))

	add(AttrPointOfSale, c.Query("ps"))
	add(AttrInvoice, c.Param("num_fact"))

	span.SetAttributes(attrs...)
}

// getRequestID prefers the ID set by RequestID and falls back to the
// truncated header.
func getRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDKey)
	if len(id) > MaxRequestIDLength {
		id = id[:MaxRequestIDLength]
	}
	return id
}

var spanErrorDescriptions = map[int]string{
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusConflict:            "Session Conflict",
	http.StatusUnprocessableEntity: "Reconciliation Rejected",
}

func spanErrorDescription(status int) string {
	if status >= http.StatusInternalServerError {
		return "Internal Server Error"
	}
	if d, ok := spanErrorDescriptions[status]; ok {
		return d
	}
	return "Client Error"
}

// SpanErrorMarker sets an error status on the span for 4xx and 5xx
// responses. Place it after Tracing.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		status := c.Writer.Status()
		if !span.IsRecording() || status < http.StatusBadRequest {
			return
		}
		span.SetStatus(codes.Error, spanErrorDescription(status))
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}
