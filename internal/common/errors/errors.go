// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidResearchRequest ErrorCode = "INVALID_RESEARCH_REQUEST"
	ErrCodeInputParsingFailed     ErrorCode = "INPUT_PARSING_FAILED"

	ErrCodeSearchProviderFailed ErrorCode = "SEARCH_PROVIDER_FAILED"
	ErrCodeCRMLookupFailed      ErrorCode = "CRM_LOOKUP_FAILED"
	ErrCodeScrapeFailed         ErrorCode = "SCRAPE_FAILED"
	ErrCodeCacheStoreFailed     ErrorCode = "CACHE_STORE_FAILED"

	ErrCodeLLMNotConfigured     ErrorCode = "LLM_NOT_CONFIGURED"
	ErrCodeLLMGenerationFailed  ErrorCode = "LLM_GENERATION_FAILED"
	ErrCodeLLMEmptyResponse     ErrorCode = "LLM_EMPTY_RESPONSE"
	ErrCodeLLMTimeout           ErrorCode = "LLM_TIMEOUT"
	ErrCodeReportGenerationFail ErrorCode = "REPORT_GENERATION_FAILED"
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
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause so callers can use errors.Is on
// context errors.
func (e *StandardError) Unwrap() error {
	return e.cause
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

// NewInvalidResearchRequestError creates a non-retryable request validation error.
func NewInvalidResearchRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidResearchRequest,
		Message:   "Research request is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInputParsingFailedError creates a non-retryable job variable parsing error.
func NewInputParsingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputParsingFailed,
		Message:   "Failed to parse job variables",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSearchProviderFailedError wraps a web search provider failure.
func NewSearchProviderFailedError(query string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchProviderFailed,
		Message:   "Web search provider failed",
		Details:   fmt.Sprintf("query: %s, error: %s", query, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewCRMLookupFailedError wraps a contact store failure.
func NewCRMLookupFailedError(backend string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCRMLookupFailed,
		Message:   fmt.Sprintf("CRM lookup against '%s' failed", backend),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewScrapeFailedError wraps a webpage fetch or parse failure.
func NewScrapeFailedError(url string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScrapeFailed,
		Message:   "Failed to scrape webpage",
		Details:   fmt.Sprintf("url: %s, error: %s", url, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewCacheStoreFailedError wraps a search cache backend failure.
func NewCacheStoreFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheStoreFailed,
		Message:   fmt.Sprintf("Search cache %s failed", op),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewLLMNotConfiguredError is returned when no LLM API key or endpoint is set.
func NewLLMNotConfiguredError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMNotConfigured,
		Message:   "LLM client is not configured",
		Details:   "apis.llm.api_key is empty",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMGenerationFailedError creates a retryable LLM call error.
func NewLLMGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMGenerationFailed,
		Message:   "LLM generation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewLLMEmptyResponseError is returned when the model produced no usable text.
func NewLLMEmptyResponseError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMEmptyResponse,
		Message:   "LLM returned an empty response",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable LLM deadline error.
func NewLLMTimeoutError(err error) *StandardError {
	details := "generation deadline exceeded"
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM generation timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewReportGenerationFailedError wraps any unexpected report pipeline failure.
func NewReportGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeReportGenerationFail,
		Message:   "Report generation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      "AUTHENTICATION_ERROR",
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidResearchRequest: "INVALID_RESEARCH_REQUEST",
	ErrCodeInputParsingFailed:     "INVALID_RESEARCH_REQUEST",
	ErrCodeLLMNotConfigured:       "LLM_NOT_CONFIGURED",
	ErrCodeLLMGenerationFailed:    "REPORT_GENERATION_FAILED",
	ErrCodeLLMEmptyResponse:       "REPORT_GENERATION_FAILED",
	ErrCodeLLMTimeout:             "LLM_TIMEOUT",
	ErrCodeReportGenerationFail:   "REPORT_GENERATION_FAILED",
}

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeLLMGenerationFailed,
		ErrCodeLLMEmptyResponse,
		ErrCodeReportGenerationFail,
		ErrCodeSearchProviderFailed,
		ErrCodeCRMLookupFailed,
		ErrCodeScrapeFailed,
		ErrCodeCacheStoreFailed:
		return 3

	case ErrCodeLLMTimeout:
		return 1 // generation is slow, one more attempt only

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

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// HasCode reports whether err, or anything it wraps, is a StandardError with
// the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// AsStandardError unwraps err into a StandardError when possible.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	ok := stderrors.As(err, &stdErr)
	return stdErr, ok
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "PARSING"):
		return "VALIDATION"
	case strings.Contains(codeStr, "LLM") || strings.Contains(codeStr, "REPORT"):
		return "AI"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "SCRAPE") || strings.Contains(codeStr, "CACHE"):
		return "RESEARCH"
	case strings.Contains(codeStr, "CRM"):
		return "CRM"
	default:
		return "OTHER"
	}
}
