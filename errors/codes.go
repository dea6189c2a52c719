package errors

import "strconv"

// ErrorCode is the machine-readable code returned to clients
type ErrorCode int32

const (
	ErrorCode_HTTP_OK ErrorCode = 0

	// General
	ErrorCode_INTERNAL         ErrorCode = 1000
	ErrorCode_INVALID_ARGUMENT ErrorCode = 1001
	ErrorCode_NOT_FOUND        ErrorCode = 1002
	ErrorCode_ALREADY_EXISTS   ErrorCode = 1003
	ErrorCode_INVALID_PAYLOAD  ErrorCode = 1004

	// Sessions
	ErrorCode_SESSION_NOT_FOUND ErrorCode = 2000
	ErrorCode_SESSION_EXISTS    ErrorCode = 2001
	ErrorCode_SESSION_INACTIVE  ErrorCode = 2002

	// Enrichment and reports
	ErrorCode_ENRICHMENT_FAILED        ErrorCode = 3000
	ErrorCode_REPORT_GENERATION_FAILED ErrorCode = 3001

	// Integrations
	ErrorCode_INTEGRATION_STORAGE_FAILED ErrorCode = 4000
	ErrorCode_INTEGRATION_CACHE_FAILED   ErrorCode = 4001
	ErrorCode_DB_QUERY_FAILED            ErrorCode = 4002
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_HTTP_OK:                    "HTTP_OK",
	ErrorCode_INTERNAL:                   "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:           "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:                  "NOT_FOUND",
	ErrorCode_ALREADY_EXISTS:             "ALREADY_EXISTS",
	ErrorCode_INVALID_PAYLOAD:            "INVALID_PAYLOAD",
	ErrorCode_SESSION_NOT_FOUND:          "SESSION_NOT_FOUND",
	ErrorCode_SESSION_EXISTS:             "SESSION_EXISTS",
	ErrorCode_SESSION_INACTIVE:           "SESSION_INACTIVE",
	ErrorCode_ENRICHMENT_FAILED:          "ENRICHMENT_FAILED",
	ErrorCode_REPORT_GENERATION_FAILED:   "REPORT_GENERATION_FAILED",
	ErrorCode_INTEGRATION_STORAGE_FAILED: "INTEGRATION_STORAGE_FAILED",
	ErrorCode_INTEGRATION_CACHE_FAILED:   "INTEGRATION_CACHE_FAILED",
	ErrorCode_DB_QUERY_FAILED:            "DB_QUERY_FAILED",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "ErrorCode(" + strconv.Itoa(int(c)) + ")"
}

// MarshalText renders the code by name in JSON bodies
func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
