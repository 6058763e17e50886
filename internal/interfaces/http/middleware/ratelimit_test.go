package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/erp/salesrecon/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, requests int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{Requests: requests, Window: time.Hour})
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows requests within burst", func(t *testing.T) {
		limiter := newTestLimiter(t, 5)

		for i := range 5 {
			ok, _ := limiter.Allow("client1")
			assert.True(t, ok, "request %d should be allowed", i+1)
		}
	})

	t.Run("blocks requests exceeding burst", func(t *testing.T) {
		limiter := newTestLimiter(t, 3)

		for range 3 {
			ok, _ := limiter.Allow("client2")
			require.True(t, ok)
		}
		ok, remaining := limiter.Allow("client2")
		assert.False(t, ok)
		assert.Equal(t, 0, remaining)
	})

	t.Run("tracks clients separately", func(t *testing.T) {
		limiter := newTestLimiter(t, 1)

		ok, _ := limiter.Allow("a")
		assert.True(t, ok)
		ok, _ = limiter.Allow("b")
		assert.True(t, ok)
		ok, _ = limiter.Allow("a")
		assert.False(t, ok)
	})

	t.Run("is safe for concurrent use", func(t *testing.T) {
		limiter := newTestLimiter(t, 50)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := limiter.Allow("shared"); ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 50, allowed)
	})

	t.Run("cleanup drops idle clients", func(t *testing.T) {
		limiter := newTestLimiter(t, 5)
		limiter.Allow("idle")
		require.Equal(t, 1, limiter.size())

		limiter.cleanup(time.Now().Add(3 * time.Hour))
		assert.Equal(t, 0, limiter.size())
	})

	t.Run("applies defaults", func(t *testing.T) {
		limiter := NewRateLimiter(RateLimiterConfig{})
		defer limiter.Stop()
		assert.Equal(t, 100, limiter.Burst())
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := newTestLimiter(t, 2)

	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for i := range 2 {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), dto.ErrCodeRateLimited)
}

func TestRateLimitByKey(t *testing.T) {
	limiter := newTestLimiter(t, 1)

	router := gin.New()
	router.Use(RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.GetHeader("X-Client")
	}))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Client", client)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("pos-1"))
	assert.Equal(t, http.StatusOK, send("pos-2"))
	assert.Equal(t, http.StatusTooManyRequests, send("pos-1"))
}
