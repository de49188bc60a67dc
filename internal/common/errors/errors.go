// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Archive staging
	ErrCodeArchiveDownloadFailed ErrorCode = "ARCHIVE_DOWNLOAD_FAILED"
	ErrCodeArchiveInvalid        ErrorCode = "ARCHIVE_INVALID"
	ErrCodeArchiveMemberMissing  ErrorCode = "ARCHIVE_MEMBER_MISSING"
	ErrCodeObjectUploadFailed    ErrorCode = "OBJECT_UPLOAD_FAILED"
	ErrCodeObjectReadFailed      ErrorCode = "OBJECT_READ_FAILED"

	// Claim recording
	ErrCodeClaimFileNotFound ErrorCode = "CLAIM_FILE_NOT_FOUND"
	ErrCodeClaimParseFailed  ErrorCode = "CLAIM_PARSE_FAILED"
	ErrCodeClaimNotFound     ErrorCode = "CLAIM_NOT_FOUND"

	// Application record store
	ErrCodeRecordUpdateFailed ErrorCode = "RECORD_UPDATE_FAILED"
	ErrCodeRecordNotFound     ErrorCode = "RECORD_NOT_FOUND"

	// Recognition capabilities
	ErrCodeFaceComparisonFailed     ErrorCode = "FACE_COMPARISON_FAILED"
	ErrCodeDocumentExtractionFailed ErrorCode = "DOCUMENT_EXTRACTION_FAILED"
	ErrCodeNoIdentityDocument       ErrorCode = "NO_IDENTITY_DOCUMENT"

	// Outbound transport
	ErrCodeThirdPartyUnavailable  ErrorCode = "THIRD_PARTY_UNAVAILABLE"
	ErrCodeThirdPartyBadResponse  ErrorCode = "THIRD_PARTY_BAD_RESPONSE"
	ErrCodeQueueSendFailed        ErrorCode = "QUEUE_SEND_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeBrokerUnavailable ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeBrokerRejected    ErrorCode = "BROKER_REJECTED"

	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// Kind groups error codes into the classes a stage boundary reacts to.
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindParse      Kind = "PARSE"
	KindCapability Kind = "CAPABILITY"
	KindTransport  Kind = "TRANSPORT"
	KindStorage    Kind = "STORAGE"
	KindInternal   Kind = "INTERNAL"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Kind reports the class of the error code.
func (e *StandardError) Kind() Kind {
	return KindOf(e.Code)
}

// WithMetadata attaches a key to the error metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message string, retryable bool, cause error, details string) *StandardError {
	if details == "" && cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewArchiveDownloadFailedError(key string, err error) *StandardError {
	return newError(ErrCodeArchiveDownloadFailed, "Failed to download archive", true, err,
		fmt.Sprintf("key: %s, error: %v", key, err))
}

// NewArchiveInvalidError is returned for corrupt archives and for member sets
// that do not follow the <id>_selfie / <id>_license / <id>_details.csv naming.
func NewArchiveInvalidError(details string) *StandardError {
	return newError(ErrCodeArchiveInvalid, "Archive content is invalid", false, nil, details)
}

func NewArchiveMemberMissingError(member string) *StandardError {
	return newError(ErrCodeArchiveMemberMissing, "Archive member not found", false, nil,
		fmt.Sprintf("member: %s", member))
}

func NewObjectUploadFailedError(key string, err error) *StandardError {
	return newError(ErrCodeObjectUploadFailed, "Failed to upload object", true, err,
		fmt.Sprintf("key: %s, error: %v", key, err))
}

func NewObjectReadFailedError(key string, err error) *StandardError {
	return newError(ErrCodeObjectReadFailed, "Failed to read object", true, err,
		fmt.Sprintf("key: %s, error: %v", key, err))
}

func NewClaimFileNotFoundError(key string) *StandardError {
	return newError(ErrCodeClaimFileNotFound, "Claim file not found", false, nil,
		fmt.Sprintf("key: %s", key))
}

func NewClaimParseFailedError(details string) *StandardError {
	return newError(ErrCodeClaimParseFailed, "Claim file could not be parsed", false, nil, details)
}

func NewClaimNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeClaimNotFound, "Claimed details not recorded", false, nil,
		fmt.Sprintf("applicationId: %s", applicationID))
}

func NewRecordUpdateFailedError(field string, err error) *StandardError {
	return newError(ErrCodeRecordUpdateFailed, "Application record update failed", true, err,
		fmt.Sprintf("field: %s, error: %v", field, err))
}

func NewRecordNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeRecordNotFound, "Application record not found", false, nil,
		fmt.Sprintf("applicationId: %s", applicationID))
}

func NewFaceComparisonFailedError(err error) *StandardError {
	return newError(ErrCodeFaceComparisonFailed, "Face comparison service error", true, err, "")
}

func NewDocumentExtractionFailedError(err error) *StandardError {
	return newError(ErrCodeDocumentExtractionFailed, "Document extraction service error", true, err, "")
}

func NewNoIdentityDocumentError(key string) *StandardError {
	return newError(ErrCodeNoIdentityDocument, "No identity document detected", false, nil,
		fmt.Sprintf("key: %s", key))
}

func NewThirdPartyUnavailableError(err error) *StandardError {
	return newError(ErrCodeThirdPartyUnavailable, "Third-party validation service unavailable", true, err, "")
}

func NewThirdPartyBadResponseError(details string) *StandardError {
	return newError(ErrCodeThirdPartyBadResponse, "Third-party validation returned an unreadable response", false, nil, details)
}

func NewQueueSendFailedError(err error) *StandardError {
	return newError(ErrCodeQueueSendFailed, "Failed to enqueue message", true, err, "")
}

func NewNotificationSendFailedError(err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification publish failed", true, err, "")
}

func NewBrokerUnavailableError(operation string, err error) *StandardError {
	return newError(ErrCodeBrokerUnavailable, "Workflow broker unavailable", true, err,
		fmt.Sprintf("operation: %s, error: %v", operation, err))
}

func NewBrokerRejectedError(operation string, err error) *StandardError {
	return newError(ErrCodeBrokerRejected, "Workflow broker rejected command", false, err,
		fmt.Sprintf("operation: %s, error: %v", operation, err))
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid job input", false, nil, details)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternalError, "Unexpected error", false, err, "")
}

// ==========================
// 4. Mappings
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes caught by boundary events.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeArchiveDownloadFailed:    "ARCHIVE_DOWNLOAD_FAILED",
	ErrCodeArchiveInvalid:           "ARCHIVE_INVALID",
	ErrCodeArchiveMemberMissing:     "ARCHIVE_INVALID",
	ErrCodeObjectUploadFailed:       "STORAGE_ERROR",
	ErrCodeObjectReadFailed:         "STORAGE_ERROR",
	ErrCodeClaimFileNotFound:        "CLAIM_INVALID",
	ErrCodeClaimParseFailed:         "CLAIM_INVALID",
	ErrCodeClaimNotFound:            "CLAIM_INVALID",
	ErrCodeRecordUpdateFailed:       "STORAGE_ERROR",
	ErrCodeRecordNotFound:           "CLAIM_INVALID",
	ErrCodeFaceComparisonFailed:     "CAPABILITY_ERROR",
	ErrCodeDocumentExtractionFailed: "CAPABILITY_ERROR",
	ErrCodeNoIdentityDocument:       "CAPABILITY_ERROR",
	ErrCodeThirdPartyUnavailable:    "TRANSPORT_ERROR",
	ErrCodeThirdPartyBadResponse:    "TRANSPORT_ERROR",
	ErrCodeQueueSendFailed:          "TRANSPORT_ERROR",
	ErrCodeNotificationSendFailed:   "TRANSPORT_ERROR",
	ErrCodeBrokerUnavailable:        "TRANSPORT_ERROR",
	ErrCodeBrokerRejected:           "TRANSPORT_ERROR",
	ErrCodeInvalidInput:             "INVALID_INPUT",
}

// GetRetryCount returns the number of job retries allowed for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeArchiveDownloadFailed,
		ErrCodeObjectUploadFailed,
		ErrCodeObjectReadFailed,
		ErrCodeRecordUpdateFailed,
		ErrCodeQueueSendFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeBrokerUnavailable:
		return 3

	case ErrCodeFaceComparisonFailed,
		ErrCodeDocumentExtractionFailed,
		ErrCodeThirdPartyUnavailable:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"errorKind":         string(stdErr.Kind()),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// KindOf returns the class of an error code.
func KindOf(code ErrorCode) Kind {
	switch code {
	case ErrCodeArchiveMemberMissing, ErrCodeClaimFileNotFound, ErrCodeClaimNotFound, ErrCodeRecordNotFound:
		return KindNotFound
	case ErrCodeArchiveInvalid, ErrCodeClaimParseFailed, ErrCodeInvalidInput:
		return KindParse
	case ErrCodeFaceComparisonFailed, ErrCodeDocumentExtractionFailed, ErrCodeNoIdentityDocument:
		return KindCapability
	case ErrCodeThirdPartyUnavailable, ErrCodeThirdPartyBadResponse, ErrCodeQueueSendFailed, ErrCodeNotificationSendFailed,
		ErrCodeBrokerUnavailable, ErrCodeBrokerRejected:
		return KindTransport
	case ErrCodeArchiveDownloadFailed, ErrCodeObjectUploadFailed, ErrCodeObjectReadFailed, ErrCodeRecordUpdateFailed:
		return KindStorage
	default:
		return KindInternal
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	return string(KindOf(code))
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// AsStandardError unwraps err into a StandardError, if one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

func isKind(err error, kind Kind) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Kind() == kind
}

func IsNotFound(err error) bool   { return isKind(err, KindNotFound) }
func IsParse(err error) bool      { return isKind(err, KindParse) }
func IsCapability(err error) bool { return isKind(err, KindCapability) }
func IsTransport(err error) bool  { return isKind(err, KindTransport) }
func IsStorage(err error) bool    { return isKind(err, KindStorage) }
