package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for each error type
type ErrorCode string

const (
	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	// Wizard flow errors
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodeSessionLocked       ErrorCode = "SESSION_LOCKED"
	ErrCodeInvalidStep         ErrorCode = "INVALID_STEP"
	ErrCodeInvalidFieldPath    ErrorCode = "INVALID_FIELD_PATH"
	ErrCodeDuplicateSubmission ErrorCode = "DUPLICATE_SUBMISSION"

	// Generation errors
	ErrCodeAgentRequestFailed ErrorCode = "AGENT_REQUEST_FAILED"
	ErrCodeAgentBadResponse   ErrorCode = "AGENT_BAD_RESPONSE"
	ErrCodeGenerationTimeout  ErrorCode = "GENERATION_TIMEOUT"
	ErrCodeNoOutstandingJob   ErrorCode = "NO_OUTSTANDING_JOB"

	// Database errors
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
	ErrCodeRecordNotFound  ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeDuplicateRecord ErrorCode = "DUPLICATE_RECORD"

	// Queue errors
	ErrCodeQueueError   ErrorCode = "QUEUE_ERROR"
	ErrCodeTaskNotFound ErrorCode = "TASK_NOT_FOUND"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message, http.StatusNotFound)
}

func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Wizard flow errors

// ValidationFailed signals required fields missing at the current step.
// Field-level annotations travel in Details under "fields".
func ValidationFailed(fields map[string]string) *AppError {
	err := New(ErrCodeValidationFailed, "required fields are missing or malformed", http.StatusUnprocessableEntity)
	if len(fields) > 0 {
		err = err.WithDetails("fields", fields)
	}
	return err
}

// SessionLocked signals an edit or backward navigation attempt while a
// generation job is outstanding.
func SessionLocked() *AppError {
	return New(ErrCodeSessionLocked, "session is locked while the pitch is being generated", http.StatusLocked)
}

func InvalidStep(message string) *AppError {
	return New(ErrCodeInvalidStep, message, http.StatusBadRequest)
}

func InvalidFieldPath(path string) *AppError {
	return New(ErrCodeInvalidFieldPath,
		fmt.Sprintf("unknown field path: %s", path),
		http.StatusBadRequest)
}

// DuplicateSubmission is internal only; the in-flight guard suppresses it
// and returns the original token instead of surfacing this to the caller.
func DuplicateSubmission(sessionID string) *AppError {
	return New(ErrCodeDuplicateSubmission,
		fmt.Sprintf("a submission is already outstanding for session %s", sessionID),
		http.StatusConflict)
}

// Generation errors

func AgentRequestFailed(err error) *AppError {
	return Wrap(err, ErrCodeAgentRequestFailed, "generation service request failed", http.StatusBadGateway)
}

func AgentBadResponse(message string) *AppError {
	return New(ErrCodeAgentBadResponse, message, http.StatusBadGateway)
}

func GenerationTimeout() *AppError {
	return New(ErrCodeGenerationTimeout,
		"the generation job did not complete in time; cancel and retry to unlock",
		http.StatusGatewayTimeout)
}

func NoOutstandingJob() *AppError {
	return New(ErrCodeNoOutstandingJob, "no generation job is outstanding for this session", http.StatusConflict)
}

// Database errors

func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError)
}

func RecordNotFound(resource string) *AppError {
	return New(ErrCodeRecordNotFound,
		fmt.Sprintf("%s not found", resource),
		http.StatusNotFound)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Code == code
}
