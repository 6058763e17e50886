package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/salesrecon/internal/infrastructure/auth"
	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/erp/salesrecon/internal/infrastructure/logger"
	"github.com/erp/salesrecon/internal/infrastructure/upstream"
	"github.com/erp/salesrecon/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "test-issuer",
	})
}

func issueToken(t *testing.T, svc *auth.JWTService, ps string) string {
	t.Helper()
	token, err := svc.Issue(auth.IssueInput{
		UserID:      "42",
		Username:    "clerk",
		PointOfSale: ps,
		Roles:       []string{"seller"},
		TTL:         15 * time.Minute,
	})
	require.NoError(t, err)
	return token
}

func authRouter(cfg JWTMiddlewareConfig, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	if handler == nil {
		handler = func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	}
	router.GET("/test", handler)
	router.GET("/health", handler)
	return router
}

func serveWithAuth(router *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set(AuthHeaderKey, header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService()
	token := issueToken(t, svc, "7")

	router := authRouter(DefaultJWTConfig(svc), func(c *gin.Context) {
		claims := GetJWTClaims(c)
		require.NotNil(t, claims)
		assert.Equal(t, "42", claims.UserID())
		assert.Equal(t, "7", claims.PointOfSale)
		assert.Equal(t, "42", GetJWTUserID(c))
		assert.Equal(t, "clerk", GetJWTUsername(c))
		assert.Equal(t, "42", c.GetString("user_id"))

		// The caller's token is forwarded upstream
		assert.Equal(t, token, upstream.BearerToken(c.Request.Context()))
		assert.Equal(t, "42", logger.GetUserID(c.Request.Context()))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := serveWithAuth(router, "/test", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService()

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("test-secret-key-at-least-32-chars"))
	require.NoError(t, err)

	foreign, err := auth.NewJWTService(config.JWTConfig{Secret: "another-secret-entirely-32-chars", Issuer: "test-issuer"}).
		Issue(auth.IssueInput{UserID: "42"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeTokenInvalid},
		{"wrong scheme", "Basic dXNlcjpwYXNz", dto.ErrCodeTokenInvalid},
		{"empty token", "Bearer ", dto.ErrCodeTokenInvalid},
		{"garbage token", "Bearer not-a-jwt", dto.ErrCodeTokenInvalid},
		{"wrong signature", "Bearer " + foreign, dto.ErrCodeTokenInvalid},
		{"expired", "Bearer " + expired, dto.ErrCodeTokenExpired},
	}

	router := authRouter(DefaultJWTConfig(svc), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithAuth(router, "/test", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestJWTAuthMiddleware_NotRequired(t *testing.T) {
	svc := newTestJWTService()
	cfg := DefaultJWTConfig(svc)
	cfg.Required = false

	var sawClaims bool
	router := authRouter(cfg, func(c *gin.Context) {
		sawClaims = GetJWTClaims(c) != nil
		c.Status(http.StatusOK)
	})

	w := serveWithAuth(router, "/test", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, sawClaims)

	// A presented token must still be valid
	w = serveWithAuth(router, "/test", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serveWithAuth(router, "/test", "Bearer "+issueToken(t, svc, ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sawClaims)
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	svc := newTestJWTService()
	cfg := DefaultJWTConfig(svc)
	cfg.SkipPathPrefixes = []string{"/te"}

	router := authRouter(cfg, nil)

	assert.Equal(t, http.StatusOK, serveWithAuth(router, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serveWithAuth(router, "/test", "").Code)
}

func TestJWTAuthMiddleware_CustomOnError(t *testing.T) {
	svc := newTestJWTService()
	cfg := DefaultJWTConfig(svc)

	var got error
	cfg.OnError = func(c *gin.Context, err error) {
		got = err
		c.AbortWithStatus(http.StatusTeapot)
	}

	w := serveWithAuth(authRouter(cfg, nil), "/test", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.True(t, errors.Is(got, auth.ErrInvalidToken))
}

func TestGetJWTClaims_NotFound(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetJWTClaims(c))
	assert.Empty(t, GetJWTUserID(c))
	assert.Empty(t, GetJWTUsername(c))
}

func TestRequirePointOfSale(t *testing.T) {
	svc := newTestJWTService()

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(DefaultJWTConfig(svc)))
	router.Use(RequirePointOfSale("ps"))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	shopToken := "Bearer " + issueToken(t, svc, "7")
	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"own point of sale", "/test?ps=7", shopToken, http.StatusOK},
		{"no point of sale asked", "/test", shopToken, http.StatusOK},
		{"other point of sale", "/test?ps=9", shopToken, http.StatusForbidden},
		{"unrestricted token", "/test?ps=9", "Bearer " + issueToken(t, svc, ""), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithAuth(router, tt.path, tt.header)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusForbidden {
				assert.Equal(t, dto.ErrCodeForbidden, errorCode(t, w))
			}
		})
	}
}
