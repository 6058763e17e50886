package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/salesrecon/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	entry := `{"amount_lyd":"1,250.50","amount_currency":"200","amount_currency_LYD":"1400"}`

	tests := []struct {
		name       string
		limit      int64
		body       string
		chunked    bool
		wantStatus int
		wantCode   string
	}{
		{name: "entry within limit", limit: 1024, body: entry, wantStatus: http.StatusOK},
		{name: "exactly at limit", limit: int64(len(entry)), body: entry, wantStatus: http.StatusOK},
		{name: "declared length over limit", limit: 16, body: entry, wantStatus: http.StatusRequestEntityTooLarge, wantCode: dto.ErrCodeRequestTooLarge},
		{name: "undeclared length cut while reading", limit: 16, body: entry, chunked: true, wantStatus: http.StatusBadRequest},
		{name: "zero limit disables the check", limit: 0, body: strings.Repeat("x", 4096), wantStatus: http.StatusOK},
		{name: "empty body", limit: 16, body: "", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(BodyLimit(tt.limit))
			router.PUT("/entry", func(c *gin.Context) {
				if _, err := io.ReadAll(c.Request.Body); err != nil {
					c.String(http.StatusBadRequest, err.Error())
					return
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPut, "/entry", strings.NewReader(tt.body))
			if tt.chunked {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), tt.wantCode)
			}
		})
	}
}
