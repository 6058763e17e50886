// Package upstream is the HTTP client for the jewelry backend REST API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/erp/salesrecon/internal/infrastructure/logger"
	"github.com/erp/salesrecon/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultMaxResponseSize = 32 << 20

var (
	// ErrNotConfigured is returned when no base URL is set
	ErrNotConfigured = errors.New("upstream: base url is not configured")
	// ErrResponseTooLarge is returned when a body exceeds the response size limit
	ErrResponseTooLarge = errors.New("upstream: response too large")
)

// StatusError is a non-2xx response from the backend
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the backend's message field, or the status text
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type tokenKey struct{}

// WithBearerToken attaches the caller's token for forwarding upstream
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// BearerToken returns the token attached by WithBearerToken
func BearerToken(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}

// Client talks to the jewelry backend
type Client struct {
	baseURL     *url.URL
	token       string
	defaultUser string
	http        *http.Client
	logger      *zap.Logger
	maxBody     int64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMaxResponseSize caps the bytes read from one response
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// New creates a Client from configuration
func New(cfg config.UpstreamConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	defaultUser := cfg.DefaultUser
	if defaultUser == "" {
		defaultUser = "-1"
	}

	c := &Client{
		baseURL:     base,
		token:       cfg.Token,
		defaultUser: defaultUser,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  zap.NewNop(),
		maxBody: defaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one call. out may be nil; the body is decoded with UseNumber
// so amounts keep their textual precision.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "upstream "+method+" "+spanPath(path),
		telemetry.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream: encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("upstream: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokenFor(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	// one byte past the limit tells a full body from a cut one
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("upstream: read response: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		err := fmt.Errorf("upstream %s %s: %w (limit %d bytes)", method, path, ErrResponseTooLarge, c.maxBody)
		telemetry.RecordError(span, err)
		return err
	}

	logger.WithLogger(ctx, c.logger).Debug("upstream call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(data, resp.StatusCode)}
		telemetry.RecordError(span, se)
		return se
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("upstream %s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) tokenFor(ctx context.Context) string {
	if t := BearerToken(ctx); t != "" {
		return t
	}
	return c.token
}

// errorMessage prefers the backend's message field over the status text
func errorMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return http.StatusText(status)
}

// spanPath drops path parameters so span names stay low-cardinality
func spanPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}
