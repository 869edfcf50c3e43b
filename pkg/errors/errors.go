// Package errors defines the application error type and its error codes.
// Every error surfaced through the API or the CLI carries an ErrorCode so
// operators can match log lines to responses.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies an error category in API responses and logs.
type ErrorCode string

// General errors (E1xxx)
const (
	ErrCodeInternal     ErrorCode = "E1000"
	ErrCodeValidation   ErrorCode = "E1001"
	ErrCodeNotFound     ErrorCode = "E1002"
	ErrCodeConflict     ErrorCode = "E1003"
	ErrCodeForbidden    ErrorCode = "E1004"
	ErrCodeUnauthorized ErrorCode = "E1005"
)

// Git provider errors (E2xxx)
const (
	ErrCodeProviderNotFound ErrorCode = "E2001"
	ErrCodeProviderAuth     ErrorCode = "E2002"
	ErrCodeProviderAPI      ErrorCode = "E2003"
	ErrCodeWebhookInvalid   ErrorCode = "E2004"
	ErrCodeDiffUnavailable  ErrorCode = "E2005"
)

// Agent errors (E3xxx)
const (
	ErrCodeAgentNotFound    ErrorCode = "E3001"
	ErrCodeAgentUnavailable ErrorCode = "E3002"
	ErrCodeAgentTimeout     ErrorCode = "E3003"
	ErrCodeAgentExecution   ErrorCode = "E3004"
	ErrCodeAgentOutput      ErrorCode = "E3005"
)

// Review pipeline errors (E4xxx)
const (
	ErrCodeReviewNotFound     ErrorCode = "E4001"
	ErrCodeReviewFailed       ErrorCode = "E4002"
	ErrCodeSubmissionNotFound ErrorCode = "E4003"
	ErrCodeQueueDuplicate     ErrorCode = "E4004"
	ErrCodeTrackerWrite       ErrorCode = "E4005"
)

// Database errors (E5xxx)
const (
	ErrCodeDBConnection ErrorCode = "E5001"
	ErrCodeDBQuery      ErrorCode = "E5002"
	ErrCodeDBMigration  ErrorCode = "E5003"
)

// Configuration errors (E6xxx)
const (
	ErrCodeConfigNotFound        ErrorCode = "E6001"
	ErrCodeConfigInvalid         ErrorCode = "E6002"
	ErrCodeConfigParse           ErrorCode = "E6003"
	ErrCodeAdminCredentialsEmpty ErrorCode = "E6004"
	ErrCodePasswordComplexity    ErrorCode = "E6005"
	ErrCodeJWTSecretInvalid      ErrorCode = "E6006"
)

// ExitCodeConfigValidation is the process exit code for configuration
// validation failures at startup.
const ExitCodeConfigValidation = 2

// statusByCode maps error codes onto HTTP statuses. Codes not listed here
// report as internal server errors.
var statusByCode = map[ErrorCode]int{
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeProviderNotFound:   http.StatusNotFound,
	ErrCodeAgentNotFound:      http.StatusNotFound,
	ErrCodeReviewNotFound:     http.StatusNotFound,
	ErrCodeSubmissionNotFound: http.StatusNotFound,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeWebhookInvalid:     http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeProviderAuth:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeQueueDuplicate:     http.StatusConflict,
	ErrCodeAgentTimeout:       http.StatusGatewayTimeout,
	ErrCodeAgentUnavailable:   http.StatusServiceUnavailable,
}

// AppError is an error with a stable code, an operator-facing message, and
// an optional wrapped cause.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	Details any       `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status the error's code maps to.
func (e *AppError) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithDetails attaches structured context that debug-mode API responses
// may include alongside the message.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New returns an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf returns an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an AppError that carries err as its cause.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// AsAppError finds an *AppError anywhere in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
