// Package errors provides standardized error handling for the wizard engine
// and the origination workflow workers.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Wizard-facing errors. Input and step errors are caught before any
	// network call; the other three classify boundary-effect failures.
	ErrCodeInputInvalid    ErrorCode = "INPUT_INVALID"
	ErrCodeStepIncomplete  ErrorCode = "STEP_INCOMPLETE"
	ErrCodeWizardBusy      ErrorCode = "WIZARD_BUSY"
	ErrCodeGatewayRejected ErrorCode = "GATEWAY_REJECTED"
	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"
	ErrCodeAuthMissing     ErrorCode = "AUTH_MISSING"

	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeCatalogLookup     ErrorCode = "CATALOG_LOOKUP_FAILED"
	ErrCodeResumeSnapshot    ErrorCode = "RESUME_SNAPSHOT_INVALID"

	// Origination worker errors.
	ErrCodeLoanValidationFailed   ErrorCode = "LOAN_VALIDATION_FAILED"
	ErrCodeEligibilityCheckFailed ErrorCode = "ELIGIBILITY_CHECK_FAILED"
	ErrCodeDatabaseInsertFailed   ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeDuplicateApplication   ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeSearchIndexFailed      ErrorCode = "SEARCH_INDEX_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Field     string                 `json:"field,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// CodeOf extracts the error code from any error, defaulting to INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

// MessageOf extracts the user-facing message from any error.
func MessageOf(err error) string {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Message
	}
	return err.Error()
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
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

// ToErrorVariables returns a map suitable for setting job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewInputError creates a non-retryable error naming the offending field.
// Used for malformed or out-of-range caller input; never sent to the gateway.
func NewInputError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputInvalid,
		Message:   fmt.Sprintf("Invalid value for %s", field),
		Details:   details,
		Field:     field,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStepIncompleteError reports the first unmet field blocking a step.
func NewStepIncompleteError(field string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStepIncomplete,
		Message:   "Required information is missing for this step",
		Details:   fmt.Sprintf("field: %s", field),
		Field:     field,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWizardBusyError signals a re-entrant advance while an effect is in flight.
func NewWizardBusyError(step string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWizardBusy,
		Message:   "A request for this step is already in progress",
		Details:   fmt.Sprintf("step: %s", step),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError reports an action that the current state forbids.
func NewInvalidTransitionError(state, action string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   fmt.Sprintf("Cannot %s from %s", action, state),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGatewayRejection wraps a success:false gateway response. The gateway's
// message is passed through verbatim for display.
func NewGatewayRejection(message string) *StandardError {
	if message == "" {
		message = "The request was rejected"
	}
	return &StandardError{
		Code:      ErrCodeGatewayRejected,
		Message:   message,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportError wraps network failures, timeouts, and malformed bodies.
func NewTransportError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportFailed,
		Message:   "Could not reach the submission service, please try again",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthMissingError reports a gateway call attempted without a bearer token.
// Fatal to the current action; the caller must complete verification first.
func NewAuthMissingError(action string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthMissing,
		Message:   "Verification is required before this step can be saved",
		Details:   fmt.Sprintf("action: %s", action),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCatalogLookupError creates a retryable loan-type lookup error.
func NewCatalogLookupError(loanTypeID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCatalogLookup,
		Message:   "Loan type lookup failed",
		Details:   fmt.Sprintf("loanTypeId: %s, error: %s", loanTypeID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewResumeSnapshotError reports a cached resume snapshot that failed shape
// validation and was discarded.
func NewResumeSnapshotError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResumeSnapshot,
		Message:   "Stored resume state was invalid and has been discarded",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLoanValidationFailedError creates a non-retryable application validation error.
func NewLoanValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLoanValidationFailed,
		Message:   "Loan application data validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEligibilityCheckFailedError creates a retryable eligibility computation error.
func NewEligibilityCheckFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEligibilityCheckFailed,
		Message:   "Eligibility evaluation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateApplicationError creates a non-retryable duplicate application error.
func NewDuplicateApplicationError(applicationRef string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateApplication,
		Message:   "Application already exists",
		Details:   fmt.Sprintf("applicationRef: %s", applicationRef),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchIndexFailedError creates a retryable search indexing error.
func NewSearchIndexFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchIndexFailed,
		Message:   "Application indexing failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
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
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      "BUSINESS_RULE_VIOLATION",
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
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

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseInsertFailed,
		ErrCodeSearchIndexFailed,
		ErrCodeEligibilityCheckFailed,
		ErrCodeCatalogLookup,
		ErrCodeTransportFailed:
		return 3 // Retryable technical errors

	case "TIMEOUT_ERROR", "EXTERNAL_SERVICE_ERROR":
		return 2

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for the engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
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

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
