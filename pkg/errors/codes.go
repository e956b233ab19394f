package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
)

// Deadline Module Error Codes
const (
	ErrCodeDeadlineConfiguration ErrorCode = "DDL_001"
	ErrCodeDeadlineInvalidInput  ErrorCode = "DDL_002"
)

// Company Module Error Codes
const (
	ErrCodeCompanyNotFound          ErrorCode = "CMP_001"
	ErrCodeCompanyAlreadyExists     ErrorCode = "CMP_002"
	ErrCodeCompanyInvalidIdentifier ErrorCode = "CMP_003"
)

// Upload Module Error Codes
const (
	ErrCodeUploadNotFound        ErrorCode = "UPL_001"
	ErrCodeUploadArchiveScanFail ErrorCode = "UPL_002"
)

// Notification Module Error Codes
const (
	ErrCodeNotificationDeliveryFailed ErrorCode = "NTF_001"
	ErrCodeNotificationRenderFailed   ErrorCode = "NTF_002"
	ErrCodeEventPublishFailed         ErrorCode = "NTF_003"
)

// Backup / Export Error Codes
const (
	ErrCodeBackupFailed ErrorCode = "BAK_001"
	ErrCodeExportFailed ErrorCode = "BAK_002"
	ErrCodeStorageError ErrorCode = "BAK_003"
)

// Short aliases used at call sites.
const (
	CodeOK       = ErrorCode("OK")
	CodeUnknown  = ErrorCode("UNKNOWN")
	CodeInternal = ErrCodeInternal

	CodeInvalidParam = ErrCodeBadRequest
	CodeValidation   = ErrCodeValidation
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict

	CodeDatabaseError = ErrCodeDatabaseError
	CodeCacheError    = ErrCodeCacheError
	CodeStorageError  = ErrCodeStorageError

	CodeDeadlineConfiguration = ErrCodeDeadlineConfiguration

	CodeCompanyNotFound          = ErrCodeCompanyNotFound
	CodeCompanyAlreadyExists     = ErrCodeCompanyAlreadyExists
	CodeCompanyInvalidIdentifier = ErrCodeCompanyInvalidIdentifier
	CodeUploadNotFound           = ErrCodeUploadNotFound
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusForbidden,

	ErrCodeDeadlineConfiguration: http.StatusInternalServerError,
	ErrCodeDeadlineInvalidInput:  http.StatusBadRequest,

	ErrCodeCompanyNotFound:          http.StatusNotFound,
	ErrCodeCompanyAlreadyExists:     http.StatusConflict,
	ErrCodeCompanyInvalidIdentifier: http.StatusBadRequest,

	ErrCodeUploadNotFound:        http.StatusNotFound,
	ErrCodeUploadArchiveScanFail: http.StatusInternalServerError,

	ErrCodeNotificationDeliveryFailed: http.StatusBadGateway,
	ErrCodeNotificationRenderFailed:   http.StatusInternalServerError,
	ErrCodeEventPublishFailed:         http.StatusBadGateway,

	ErrCodeBackupFailed: http.StatusInternalServerError,
	ErrCodeExportFailed: http.StatusInternalServerError,
	ErrCodeStorageError: http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",

	ErrCodeDeadlineConfiguration: "deadline rule configuration error",
	ErrCodeDeadlineInvalidInput:  "invalid deadline input",

	ErrCodeCompanyNotFound:          "company not found",
	ErrCodeCompanyAlreadyExists:     "company already exists",
	ErrCodeCompanyInvalidIdentifier: "invalid tax identifier",

	ErrCodeUploadNotFound:        "upload record not found",
	ErrCodeUploadArchiveScanFail: "archive scan failed",

	ErrCodeNotificationDeliveryFailed: "failed to deliver notification",
	ErrCodeNotificationRenderFailed:   "failed to render notification",
	ErrCodeEventPublishFailed:         "failed to publish event",

	ErrCodeBackupFailed: "backup failed",
	ErrCodeExportFailed: "export failed",
	ErrCodeStorageError: "object storage error",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
