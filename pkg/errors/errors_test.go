package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors(t *testing.T) {
	cause := stderrors.New("cause")

	tests := []struct {
		name     string
		err      *AppError
		wantCode ErrorCode
		wantMsg  string
		wantErr  error
	}{
		{"New", New(ErrCodeValidation, "validation failed"), ErrCodeValidation, "validation failed", nil},
		{"Newf", Newf(ErrCodeSubmissionNotFound, "submission %s not found", "abc123"), ErrCodeSubmissionNotFound, "submission abc123 not found", nil},
		{"Wrap", Wrap(ErrCodeInternal, "wrapped", cause), ErrCodeInternal, "wrapped", cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
			if tt.err.Err != tt.wantErr {
				t.Errorf("Err = %v, want %v", tt.err.Err, tt.wantErr)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	plain := New(ErrCodeValidation, "invalid input")
	if got := plain.Error(); got != "[E1001] invalid input" {
		t.Errorf("Error() = %q, want %q", got, "[E1001] invalid input")
	}

	wrapped := Wrap(ErrCodeConfigNotFound, "config error", stderrors.New("file not found"))
	if got := wrapped.Error(); got != "[E6001] config error: file not found" {
		t.Errorf("Error() = %q, want %q", got, "[E6001] config error: file not found")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("cause")
	if got := stderrors.Unwrap(Wrap(ErrCodeInternal, "m", cause)); got != cause {
		t.Errorf("Unwrap of wrapped error = %v, want the cause", got)
	}
	if got := stderrors.Unwrap(New(ErrCodeInternal, "m")); got != nil {
		t.Errorf("Unwrap without a cause = %v, want nil", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
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

		// Unmapped codes fall back to 500.
		ErrCodeInternal:      http.StatusInternalServerError,
		ErrCodeTrackerWrite:  http.StatusInternalServerError,
		ErrCodeDBConnection:  http.StatusInternalServerError,
		ErrCodeConfigInvalid: http.StatusInternalServerError,
	}

	for code, want := range tests {
		t.Run(string(code), func(t *testing.T) {
			if got := New(code, "test").HTTPStatus(); got != want {
				t.Errorf("HTTPStatus() = %d, want %d", got, want)
			}
		})
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCodeValidation, "bad field")
	if ret := err.WithDetails("email"); ret != err {
		t.Error("WithDetails must return the receiver for chaining")
	}
	if err.Details != "email" {
		t.Errorf("Details = %v, want %q", err.Details, "email")
	}
}

func TestAsAppError(t *testing.T) {
	base := New(ErrCodeQueueDuplicate, "already queued")

	t.Run("direct", func(t *testing.T) {
		appErr, ok := AsAppError(base)
		if !ok || appErr != base {
			t.Errorf("AsAppError(base) = (%v, %v), want the error itself", appErr, ok)
		}
	})

	t.Run("wrapped with fmt.Errorf", func(t *testing.T) {
		appErr, ok := AsAppError(fmt.Errorf("enqueue: %w", base))
		if !ok || appErr != base {
			t.Error("AsAppError should find an AppError through a wrapped chain")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if _, ok := AsAppError(stderrors.New("plain")); ok {
			t.Error("AsAppError should not match a plain error")
		}
	})

	t.Run("nil", func(t *testing.T) {
		if _, ok := AsAppError(nil); ok {
			t.Error("AsAppError(nil) should report false")
		}
	})
}

func TestCodesAreUnique(t *testing.T) {
	codes := []ErrorCode{
		ErrCodeInternal, ErrCodeValidation, ErrCodeNotFound,
		ErrCodeConflict, ErrCodeForbidden, ErrCodeUnauthorized,
		ErrCodeProviderNotFound, ErrCodeProviderAuth, ErrCodeProviderAPI,
		ErrCodeWebhookInvalid, ErrCodeDiffUnavailable,
		ErrCodeAgentNotFound, ErrCodeAgentUnavailable, ErrCodeAgentTimeout,
		ErrCodeAgentExecution, ErrCodeAgentOutput,
		ErrCodeReviewNotFound, ErrCodeReviewFailed, ErrCodeSubmissionNotFound,
		ErrCodeQueueDuplicate, ErrCodeTrackerWrite,
		ErrCodeDBConnection, ErrCodeDBQuery, ErrCodeDBMigration,
		ErrCodeConfigNotFound, ErrCodeConfigInvalid, ErrCodeConfigParse,
		ErrCodeAdminCredentialsEmpty, ErrCodePasswordComplexity, ErrCodeJWTSecretInvalid,
	}

	seen := make(map[ErrorCode]bool, len(codes))
	for _, code := range codes {
		if code == "" {
			t.Error("empty error code")
		}
		if seen[code] {
			t.Errorf("duplicate error code %s", code)
		}
		seen[code] = true
	}
}
