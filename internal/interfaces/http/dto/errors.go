package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller may not see the point of sale
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the auth token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when an invoice or close session is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Payment reconciliation error codes
const (
	// ErrCodeInvalidState is used when a close session cannot take the operation
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeOverpayment is used when an entered amount exceeds the recorded one
	ErrCodeOverpayment = "ERR_OVERPAYMENT"
	// ErrCodeUSDEquivalentMissing is used when USD is entered without its LYD equivalent
	ErrCodeUSDEquivalentMissing = "ERR_USD_EQUIVALENT_MISSING"
	// ErrCodeEUREquivalentMissing is used when EUR is entered without its LYD equivalent
	ErrCodeEUREquivalentMissing = "ERR_EUR_EQUIVALENT_MISSING"
	// ErrCodeInvoiceIdentifiersMissing is used when ps, usr or num_fact is missing
	ErrCodeInvoiceIdentifiersMissing = "ERR_INVOICE_IDENTIFIERS_MISSING"
)

// Upstream error codes
const (
	// ErrCodeCloseFailed is used when the backend refuses to close an invoice
	ErrCodeCloseFailed = "ERR_CLOSE_FAILED"
	// ErrCodeUpstream is used when the jewelry backend is unreachable or fails
	ErrCodeUpstream = "ERR_UPSTREAM"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	// Resource errors
	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	// Reconciliation rules -> 422 Unprocessable Entity
	ErrCodeInvalidState:              http.StatusUnprocessableEntity,
	ErrCodeOverpayment:               http.StatusUnprocessableEntity,
	ErrCodeUSDEquivalentMissing:      http.StatusUnprocessableEntity,
	ErrCodeEUREquivalentMissing:      http.StatusUnprocessableEntity,
	ErrCodeInvoiceIdentifiersMissing: http.StatusUnprocessableEntity,

	// Upstream failures -> 502 Bad Gateway
	ErrCodeCloseFailed: http.StatusBadGateway,
	ErrCodeUpstream:    http.StatusBadGateway,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                   ErrCodeNotFound,
	"INVALID_INPUT":               ErrCodeInvalidInput,
	"INVALID_STATE":               ErrCodeInvalidState,
	"CONFLICT":                    ErrCodeConflict,
	"UNAUTHORIZED":                ErrCodeUnauthorized,
	"FORBIDDEN":                   ErrCodeForbidden,
	"OVERPAYMENT":                 ErrCodeOverpayment,
	"USD_EQUIVALENT_MISSING":      ErrCodeUSDEquivalentMissing,
	"EUR_EQUIVALENT_MISSING":      ErrCodeEUREquivalentMissing,
	"INVOICE_IDENTIFIERS_MISSING": ErrCodeInvoiceIdentifiersMissing,
	"CLOSE_FAILED":                ErrCodeCloseFailed,
	"VALIDATION_ERROR":            ErrCodeValidation,
	"BAD_REQUEST":                 ErrCodeBadRequest,
	"INTERNAL_ERROR":              ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
