package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/salesrecon/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupValidator(t *testing.T) {
	// Should not panic when called twice
	SetupValidator()
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestPaymentEntryValidation(t *testing.T) {
	SetupValidator()

	router := gin.New()
	router.POST("/entry", func(c *gin.Context) {
		var req dto.PaymentEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req.Entry()))
	})

	tests := []struct {
		name   string
		body   string
		status int
		fields []string
	}{
		{"formatted amounts", `{"amount_lyd": "1,250.50", "amount_currency": "100"}`, http.StatusOK, nil},
		{"empty amounts", `{}`, http.StatusOK, nil},
		{"negative amount", `{"amount_lyd": "-5"}`, http.StatusBadRequest, []string{"amount_lyd"}},
		{"not a number", `{"amount_EUR": "abc", "amount_EUR_LYD": "12"}`, http.StatusBadRequest, []string{"amount_EUR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/entry", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)
			if tt.fields == nil {
				return
			}
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
			require.Len(t, resp.Error.Fields, len(tt.fields))
			for i, f := range tt.fields {
				assert.Equal(t, f, resp.Error.Fields[i].Field)
				assert.Equal(t, "Must be a non-negative amount", resp.Error.Fields[i].Message)
			}
		})
	}
}

func TestSalesReportQueryValidation(t *testing.T) {
	SetupValidator()

	router := gin.New()
	router.GET("/sales", func(c *gin.Context) {
		var req dto.SalesReportRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(nil))
	})

	tests := []struct {
		name    string
		query   string
		status  int
		message string
	}{
		{"known types", "type=gold&type=watch", http.StatusOK, ""},
		{"unknown type", "type=silver", http.StatusBadRequest, "Must be one of: gold diamond watch"},
		{"bad date", "from=01-03-2026", http.StatusBadRequest, "Must be a date formatted as 2006-01-02"},
		{"bad sort", "sort_by=customer", http.StatusBadRequest, "Must be one of: invoice_number date_created invoice_date value"},
		{"full query", "ps=7&from=2026-03-01&to=2026-03-31&sale_kind=Gift&payment_status=partial&currency=USD", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sales?"+tt.query, nil))

			require.Equal(t, tt.status, w.Code)
			if tt.message == "" {
				return
			}
			resp := decodeResponse(t, w)
			require.NotEmpty(t, resp.Error.Fields)
			assert.Equal(t, tt.message, resp.Error.Fields[0].Message)
		})
	}
}

func TestGetValidationMessage(t *testing.T) {
	type TestStruct struct {
		Required string `validate:"required"`
		Min      string `validate:"min=5"`
		Max      string `validate:"max=3"`
		OneOf    string `validate:"oneof=a b c"`
		GT       int    `validate:"gt=0"`
	}

	v := validator.New()
	err := v.Struct(TestStruct{Max: "toolong", OneOf: "d"})
	require.Error(t, err)

	expected := map[string]string{
		"Required": "This field is required",
		"Min":      "Must be at least 5 characters",
		"Max":      "Must be at most 3 characters",
		"OneOf":    "Must be one of: a b c",
		"GT":       "Must be greater than 0",
	}

	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	require.Len(t, validationErrs, len(expected))
	for _, e := range validationErrs {
		assert.Equal(t, expected[e.Field()], getValidationMessage(e), e.Field())
	}
}

func TestHandleValidationError_RequestID(t *testing.T) {
	type Input struct {
		Name string `json:"name" binding:"required"`
	}

	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var input Input
		if err := c.ShouldBindJSON(&input); err != nil {
			HandleValidationError(c, err)
			return
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDKey, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}
