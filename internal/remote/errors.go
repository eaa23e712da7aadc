package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError is a parsed error response from the remote API.
type APIError struct {
	StatusCode int
	Category   string
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote api error %d %s: %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("remote api error %d: %s", e.StatusCode, e.Detail)
}

// IsRetryable reports transient failures: timeouts, rate limits and 5xx.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 || apiErr.Code == "RATE_LIMITED"
	}
	return false
}

// IsUnauthorized reports missing credentials or OAuth scopes.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized ||
			apiErr.StatusCode == http.StatusForbidden ||
			apiErr.Code == "INSUFFICIENT_SCOPES" ||
			apiErr.Category == "AUTHENTICATION_ERROR"
	}
	return false
}

// IsConflict reports version or idempotency conflicts, which are never retried
// blindly.
func IsConflict(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusConflict ||
			apiErr.Code == "VERSION_MISMATCH" ||
			apiErr.Code == "CONFLICT" ||
			apiErr.Code == "IDEMPOTENCY_KEY_REUSED"
	}
	return false
}
