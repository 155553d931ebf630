package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrExternalService    = errors.New("external service failure")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
	Status  int               `json:"-"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMeta attaches a non-sensitive metadata entry to the error.
func (e *AppError) WithMeta(key, value string) *AppError {
	if e.Meta == nil {
		e.Meta = make(map[string]string, 1)
	}
	e.Meta[key] = value
	return e
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// InvalidCredentials creates a 401 error for failed credential verification.
// The message is deliberately generic so callers cannot distinguish an
// unknown account from a wrong code.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid credentials",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// TokenExpired creates a 401 error for an expired access token.
func TokenExpired() *AppError {
	return &AppError{
		Code:    "TOKEN_EXPIRED",
		Message: "token has expired",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenExpired,
	}
}

// TokenInvalid creates a 401 error for a structurally or cryptographically
// invalid access token.
func TokenInvalid() *AppError {
	return &AppError{
		Code:    "TOKEN_INVALID",
		Message: "token is invalid",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenInvalid,
	}
}

// OAuthInvalidState creates a 400 error for an unknown or expired OAuth state.
func OAuthInvalidState() *AppError {
	return &AppError{
		Code:    "OAUTH_INVALID_STATE",
		Message: "oauth state is unknown or has expired",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidCredentials,
	}
}

// OAuthExchangeFailed creates a 502 error for a failed code exchange or
// userinfo fetch against the provider.
func OAuthExchangeFailed(err error) *AppError {
	return &AppError{
		Code:    "OAUTH_EXCHANGE_FAILED",
		Message: "oauth provider exchange failed",
		Status:  http.StatusBadGateway,
		Err:     errors.Join(ErrExternalService, err),
	}
}

// TOTPInvalid creates a 401 error for a TOTP code that failed verification.
func TOTPInvalid() *AppError {
	return &AppError{
		Code:    "TOTP_INVALID",
		Message: "verification code is invalid",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// PasskeyInvalid creates a 401 error for a passkey assertion or attestation
// that failed verification.
func PasskeyInvalid() *AppError {
	return &AppError{
		Code:    "PASSKEY_INVALID",
		Message: "passkey verification failed",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// PasskeyChallengeFailed creates a 400 error for a missing or expired
// passkey challenge.
func PasskeyChallengeFailed() *AppError {
	return &AppError{
		Code:    "PASSKEY_CHALLENGE_FAILED",
		Message: "passkey challenge is unknown or has expired",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidCredentials,
	}
}

// VerificationCodeInvalid creates a 400 error for a wrong verification code.
func VerificationCodeInvalid() *AppError {
	return &AppError{
		Code:    "VERIFICATION_CODE_INVALID",
		Message: "verification code is invalid",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidCredentials,
	}
}

// VerificationCodeExpired creates a 400 error for an expired verification code.
func VerificationCodeExpired() *AppError {
	return &AppError{
		Code:    "VERIFICATION_CODE_EXPIRED",
		Message: "verification code has expired",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidCredentials,
	}
}

// TooManyAttempts creates a 429 error when a verification record has
// exceeded its attempt budget. The flow must be restarted from init.
func TooManyAttempts() *AppError {
	return &AppError{
		Code:    "TOO_MANY_ATTEMPTS",
		Message: "too many attempts, restart the flow",
		Status:  http.StatusTooManyRequests,
		Err:     ErrTooManyAttempts,
	}
}

// RateLimited creates a 429 error carrying the retry-after duration.
func RateLimited(retryAfter time.Duration) *AppError {
	e := &AppError{
		Code:    "RATE_LIMITED",
		Message: "rate limit exceeded",
		Status:  http.StatusTooManyRequests,
		Err:     ErrRateLimited,
	}
	if retryAfter > 0 {
		e.WithMeta("retry_after", fmt.Sprintf("%d", int64(retryAfter.Seconds())))
	}
	return e
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
