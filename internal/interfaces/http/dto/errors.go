package dto

import "net/http"

// Error code constants, format ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeInternal = "ERR_INTERNAL"
	ErrCodeUnknown  = "ERR_UNKNOWN"
)

// Input error codes
const (
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeValidation = "ERR_VALIDATION"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound  = "ERR_NOT_FOUND"
	ErrCodeConflict  = "ERR_CONFLICT"
	ErrCodeDuplicate = "ERR_DUPLICATE_SUBMISSION"
)

// Ledger business rule error codes
const (
	ErrCodeInsufficientStock = "ERR_INSUFFICIENT_STOCK"
	ErrCodeAllocationFailed  = "ERR_ALLOCATION_FAILED"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,
	ErrCodeUnknown:  http.StatusInternalServerError,

	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeValidation: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:  http.StatusNotFound,
	ErrCodeConflict:  http.StatusConflict,
	ErrCodeDuplicate: http.StatusConflict,

	ErrCodeInsufficientStock: http.StatusUnprocessableEntity,
	ErrCodeAllocationFailed:  http.StatusUnprocessableEntity,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not found.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
