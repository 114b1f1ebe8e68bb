package errors

import (
	"fmt"
	"net/http"
)

// Code 错误码、HTTP 状态码和默认提示
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Auth errors (2000-2999)
	ErrAuthInvalidToken = 2006
	ErrAuthTokenExpired = 2007

	// File manager errors (4000-4999)
	ErrFileNotFound      = 4000
	ErrObjectMissing     = 4001
	ErrStorageBackend    = 4002
	ErrMetadataBackend   = 4003
	ErrPartialFailure    = 4004
	ErrFileTooLarge      = 4005
	ErrReconcileDisabled = 4006
)

// codeMap 错误码表，未登记的错误码按内部错误处理
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Auth errors
	ErrAuthInvalidToken: {ErrAuthInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	ErrAuthTokenExpired: {ErrAuthTokenExpired, http.StatusUnauthorized, "Token expired"},

	// File manager errors
	ErrFileNotFound:      {ErrFileNotFound, http.StatusNotFound, "File entry not found"},
	ErrObjectMissing:     {ErrObjectMissing, http.StatusNotFound, "Stored object missing for file entry"},
	ErrStorageBackend:    {ErrStorageBackend, http.StatusBadGateway, "Object storage operation failed"},
	ErrMetadataBackend:   {ErrMetadataBackend, http.StatusBadGateway, "Metadata storage operation failed"},
	ErrPartialFailure:    {ErrPartialFailure, http.StatusInternalServerError, "Operation partially applied, stores are inconsistent"},
	ErrFileTooLarge:      {ErrFileTooLarge, http.StatusRequestEntityTooLarge, "File size exceeds limit"},
	ErrReconcileDisabled: {ErrReconcileDisabled, http.StatusServiceUnavailable, "Reconciliation ledger is disabled"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
