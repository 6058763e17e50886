package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/salesrecon/internal/application/report"
	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/infrastructure/auth"
	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/erp/salesrecon/internal/interfaces/http/handler"
	"github.com/erp/salesrecon/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReports struct{}

func (stubReports) Load(_ context.Context, q report.Query) (*report.Result, error) {
	return &report.Result{PointOfSale: q.PointOfSale}, nil
}

func (stubReports) Latest() (*report.Result, bool) { return nil, false }

func (stubReports) PointsOfSale(context.Context) ([]sales.PointOfSale, error) {
	return []sales.PointOfSale{{ID: "7", Code: "DC"}}, nil
}

func testHandlers() Handlers {
	return Handlers{
		Health: handler.NewHealthHandler(nil, "test"),
		Report: handler.NewReportHandler(stubReports{}),
		Close:  handler.NewCloseSessionHandler(nil),
	}
}

func serve(t *testing.T, opts Options, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	engine, stop := New(opts, testHandlers())
	t.Cleanup(stop)

	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNew_RegistersRoutes(t *testing.T) {
	engine, stop := New(Options{}, testHandlers())
	defer stop()

	registered := map[string]bool{}
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"GET /health",
		"GET /api/v1/system/info",
		"GET /api/v1/points-of-sale",
		"GET /api/v1/reports/sales",
		"GET /api/v1/reports/sales/summary",
		"GET /api/v1/reports/sales/latest",
		"POST /api/v1/invoices/close-sessions",
		"GET /api/v1/invoices/close-sessions/:id",
		"DELETE /api/v1/invoices/close-sessions/:id",
		"PUT /api/v1/invoices/close-sessions/:id/entry",
		"POST /api/v1/invoices/close-sessions/:id/submit",
		"GET /api/v1/invoices/close-attempts",
		"GET /api/v1/invoices/:num_fact/close-attempts",
		"PUT /api/v1/invoices/:num_fact/return-to-cart",
		"PUT /api/v1/invoices/:num_fact/seller",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestGroups_SkipsMissingHandlers(t *testing.T) {
	groups := Groups(Handlers{Health: handler.NewHealthHandler(nil, "test")})
	require.Len(t, groups, 1)
	assert.Equal(t, "system", groups[0].Name())
}

func TestNew_Middleware(t *testing.T) {
	opts := Options{Security: middleware.DefaultSecurityConfig()}
	w := serve(t, opts, http.MethodGet, "/api/v1/points-of-sale", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDKey))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestNew_Authentication(t *testing.T) {
	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "test-issuer",
	})
	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	opts := Options{JWT: &jwtConfig}

	shopToken, err := jwtService.Issue(auth.IssueInput{UserID: "42", PointOfSale: "7", TTL: time.Minute})
	require.NoError(t, err)

	t.Run("health stays public", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(t, opts, http.MethodGet, "/health", "").Code)
	})

	t.Run("api requires a token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(t, opts, http.MethodGet, "/api/v1/reports/sales", "").Code)
	})

	t.Run("own point of sale", func(t *testing.T) {
		w := serve(t, opts, http.MethodGet, "/api/v1/reports/sales?ps=7", shopToken)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other point of sale", func(t *testing.T) {
		w := serve(t, opts, http.MethodGet, "/api/v1/reports/sales?ps=9", shopToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestNew_RateLimit(t *testing.T) {
	opts := Options{HTTP: config.HTTPConfig{
		RateLimitEnabled:  true,
		RateLimitRequests: 1,
		RateLimitWindow:   time.Hour,
	}}
	engine, stop := New(opts, testHandlers())
	defer stop()

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
