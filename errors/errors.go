package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"

	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
)

// AppError is the client-facing error type
type AppError struct {
	Raw       error
	HTTPCode  int
	Code      ErrorCode
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// Error implements error interface
func (e AppError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code.String(), e.Message, e.Raw)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap exposes the underlying error
func (e AppError) Unwrap() error {
	return e.Raw
}

// WithDetail adds a detail to the error
func (e AppError) WithDetail(key, value string) AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// General Errors
func ErrInternal(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTERNAL,
		Message:  "Internal server error",
	}
}

func ErrInvalidArgument(message string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_ARGUMENT,
		Message:  message,
	}
}

func ErrNotFound(resource string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  fmt.Sprintf("%s not found", resource),
	}
}

func ErrInvalidPayload(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_PAYLOAD,
		Message:  "Invalid payload",
	}
}

// Session Errors
func ErrSessionNotFound(sessionID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_SESSION_NOT_FOUND,
		Message:  "Session not found",
	}.WithDetail("session_id", sessionID)
}

func ErrSessionExists(sessionID string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_SESSION_EXISTS,
		Message:  "Session already exists",
	}.WithDetail("session_id", sessionID)
}

func ErrSessionInactive(sessionID string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_SESSION_INACTIVE,
		Message:  "Session is no longer accepting changes",
	}.WithDetail("session_id", sessionID)
}

// Enrichment Errors
func ErrEnrichmentFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadGateway,
		Code:     ErrorCode_ENRICHMENT_FAILED,
		Message:  "Extraction service call failed",
	}
}

func ErrReportGenerationFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadGateway,
		Code:     ErrorCode_REPORT_GENERATION_FAILED,
		Message:  "Failed to generate report",
	}
}

// Integration Errors
func ErrStorageFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTEGRATION_STORAGE_FAILED,
		Message:  fmt.Sprintf("Storage operation failed: %s", operation),
	}
}

func ErrCacheFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTEGRATION_CACHE_FAILED,
		Message:  fmt.Sprintf("Cache operation failed: %s", operation),
	}
}

func ErrDBQueryFailed(query string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_DB_QUERY_FAILED,
		Message:  "Database query failed",
	}.WithDetail("query", query)
}

// FromUsecase maps a usecase error to the AppError clients see. Errors that
// already are AppErrors pass through.
func FromUsecase(sessionID string, err error) AppError {
	var appErr AppError
	if stdErrors.As(err, &appErr) {
		return appErr
	}

	var out AppError
	switch {
	case stdErrors.Is(err, ucerrors.ErrSessionNotFound):
		out = ErrSessionNotFound(sessionID)
	case stdErrors.Is(err, ucerrors.ErrSessionExists):
		out = ErrSessionExists(sessionID)
	case stdErrors.Is(err, ucerrors.ErrSessionInactive):
		out = ErrSessionInactive(sessionID)
	case stdErrors.Is(err, ucerrors.ErrInvalidInput):
		out = ErrInvalidArgument(err.Error())
	case stdErrors.Is(err, ucerrors.ErrReportFailed):
		out = ErrReportGenerationFailed(err)
	case stdErrors.Is(err, ucerrors.ErrEnrichmentCallFailed),
		stdErrors.Is(err, ucerrors.ErrEnrichmentMalformed):
		out = ErrEnrichmentFailed(err)
	default:
		return ErrInternal(err)
	}
	if out.Raw == nil {
		out.Raw = err
	}
	return out
}
