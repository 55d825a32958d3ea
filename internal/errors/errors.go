package errors

import "fmt"

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound       ErrCode = "NOT_FOUND"
	ErrCodeValidation     ErrCode = "VALIDATION_ERROR"
	ErrCodeAccessDenied   ErrCode = "ACCESS_DENIED"
	ErrCodeSyncInProgress ErrCode = "SYNC_IN_PROGRESS"
	ErrCodeRateLimited    ErrCode = "RATE_LIMITED"
	ErrCodeInternal       ErrCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NewAccessDeniedError creates a new access denied error
func NewAccessDeniedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeAccessDenied,
		Message: message,
	}
}

// NewSyncInProgressError creates a new sync in progress error
func NewSyncInProgressError(repoID int64) *AppError {
	return &AppError{
		Code:    ErrCodeSyncInProgress,
		Message: fmt.Sprintf("sync already in progress for repository %d", repoID),
	}
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeValidation
	}
	return false
}

// IsSyncInProgress checks if the error is a sync in progress error
func IsSyncInProgress(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeSyncInProgress
	}
	return false
}
