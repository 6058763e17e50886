// Package middleware provides HTTP middleware for the reconciliation API.
package middleware

import (
	"fmt"
	"time"

	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the header and gin context key carrying the request ID
const RequestIDKey = "X-Request-ID"

// requestIDContextKey is read by logger.GinMiddleware
const requestIDContextKey = "request_id"

// DefaultCORSHeaders are allowed when none are configured
var DefaultCORSHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "Accept", "Origin", "Cache-Control"}

// CORS returns the CORS middleware for cfg. An empty origin list rejects
// all cross-origin requests.
func CORS(cfg config.HTTPConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowOrigins:     cfg.CORSAllowOrigins,
		AllowMethods:     cfg.CORSAllowMethods,
		AllowHeaders:     cfg.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(c.AllowHeaders) == 0 {
		c.AllowHeaders = DefaultCORSHeaders
	}
	for _, o := range c.AllowOrigins {
		if o == "*" {
			// Browsers refuse credentials with a wildcard origin
			c.AllowOrigins = nil
			c.AllowAllOrigins = true
			c.AllowCredentials = false
			break
		}
	}
	if !c.AllowAllOrigins && len(c.AllowOrigins) == 0 {
		c.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(c)
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDKey)
		if requestID == "" || len(requestID) > MaxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDKey, requestID)
		c.Next()
	}
}

// SecurityConfig holds configuration for security headers
type SecurityConfig struct {
	HSTSEnabled           bool
	HSTSMaxAge            int // in seconds
	HSTSIncludeSubdomains bool
	CSPDirective          string
}

// DefaultSecurityConfig returns the headers suitable for a JSON-only API.
// HSTS is off because TLS terminates in front of the service.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		CSPDirective:          "default-src 'none'; frame-ancestors 'none'",
	}
}

// Secure adds security headers to responses using default configuration
func Secure() gin.HandlerFunc {
	return SecureWithConfig(DefaultSecurityConfig())
}

// SecureWithConfig adds security headers to responses with custom configuration
func SecureWithConfig(cfg SecurityConfig) gin.HandlerFunc {
	var hstsValue string
	if cfg.HSTSEnabled {
		hstsValue = fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubdomains {
			hstsValue += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if cfg.CSPDirective != "" {
			h.Set("Content-Security-Policy", cfg.CSPDirective)
		}
		if hstsValue != "" {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		c.Next()
	}
}
