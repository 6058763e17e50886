package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func requestLogs(recorded *observer.ObservedLogs) []observer.LoggedEntry {
	return recorded.FilterMessage("http request").All()
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"ok is info", http.StatusOK, zapcore.InfoLevel},
		{"client error is warn", http.StatusUnprocessableEntity, zapcore.WarnLevel},
		{"server error is error", http.StatusBadGateway, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.InfoLevel)
			router := gin.New()
			router.Use(func(c *gin.Context) {
				c.Set("request_id", "req-123")
				c.Next()
			})
			router.Use(GinMiddleware(zap.New(core)))
			router.GET("/reports/sales", func(c *gin.Context) {
				assert.Equal(t, "req-123", GetRequestID(c.Request.Context()))
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/reports/sales?page=2", nil)
			router.ServeHTTP(w, req)

			logs := requestLogs(recorded)
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			fields := logs[0].ContextMap()
			assert.Equal(t, "req-123", fields["request_id"])
			assert.Equal(t, "/reports/sales", fields["route"])
			assert.Equal(t, "page=2", fields["query"])
			assert.EqualValues(t, tt.status, fields["status"])
		})
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/boom", func(c *gin.Context) { panic("bad row") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_INTERNAL")
	assert.Equal(t, 1, recorded.FilterMessage("panic recovered").Len())
}

func TestGetGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))

	l := zap.NewExample()
	c.Set("logger", l)
	assert.Same(t, l, GetGinLogger(c))
}
