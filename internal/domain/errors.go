package domain

import (
	"errors"
	"fmt"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Error codes surfaced to API clients.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInvalidRoundState = "INVALID_ROUND_STATE"
	CodeRoundClosed       = "ROUND_CLOSED"
	CodeInvalidSelection  = "INVALID_SELECTION"
	CodeIncompleteResults = "INCOMPLETE_RESULTS"
	CodeInvalidState      = "INVALID_STATE"
	CodeNoActiveGateway   = "NO_ACTIVE_GATEWAY"
	CodeGateway           = "GATEWAY_ERROR"
	CodeBelowMinimum      = "BELOW_MINIMUM"
	CodeLimitExceeded     = "LIMIT_EXCEEDED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeAccountLocked     = "ACCOUNT_LOCKED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: CodeInsufficientFunds, Message: "insufficient funds", Status: 400}
}

func ErrInvalidRoundState(msg string) *AppError {
	return &AppError{Code: CodeInvalidRoundState, Message: msg, Status: 409}
}

func ErrRoundClosed(msg string) *AppError {
	return &AppError{Code: CodeRoundClosed, Message: msg, Status: 409}
}

func ErrInvalidSelection(msg string) *AppError {
	return &AppError{Code: CodeInvalidSelection, Message: msg, Status: 400}
}

func ErrIncompleteResults(roundID string, missing int) *AppError {
	return &AppError{
		Code:    CodeIncompleteResults,
		Message: fmt.Sprintf("round %s has %d matches without a result", roundID, missing),
		Status:  409,
	}
}

func ErrInvalidState(msg string) *AppError {
	return &AppError{Code: CodeInvalidState, Message: msg, Status: 409}
}

func ErrNoActiveGateway() *AppError {
	return &AppError{Code: CodeNoActiveGateway, Message: "no active payment gateway configured", Status: 503}
}

func ErrGateway(msg string, cause error) *AppError {
	return &AppError{Code: CodeGateway, Message: msg, Status: 502, Cause: cause}
}

func ErrBelowMinimum(operation string, minimum int64) *AppError {
	return &AppError{
		Code:    CodeBelowMinimum,
		Message: fmt.Sprintf("%s amount must be at least %d centavos", operation, minimum),
		Status:  400,
	}
}

func ErrLimitExceeded(msg string) *AppError {
	return &AppError{Code: CodeLimitExceeded, Message: msg, Status: 422}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrAccountLocked(msg string) *AppError {
	return &AppError{Code: CodeAccountLocked, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// AsAppError returns the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
