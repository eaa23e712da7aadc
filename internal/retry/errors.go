package retry

import (
	"errors"

	"github.com/fekuna/omnipos-sync-service/internal/remote"
)

var (
	ErrEventNotFound = errors.New("retryable event not found")
	// ErrPermanent marks a failure that must not be retried.
	ErrPermanent = errors.New("permanent failure")
)

// IsPermanent reports failures that replaying cannot fix: explicit
// ErrPermanent wraps and remote rejections that are not transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return true
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return !remote.IsRetryable(err)
	}
	return false
}
