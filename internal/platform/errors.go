package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotConfigured is returned when a platform has no registered adapter,
// usually because its client credentials are missing from the environment.
var ErrNotConfigured = errors.New("platform not configured")

// APIError is a non-2xx response from a platform endpoint.
type APIError struct {
	Platform   string
	StatusCode int
	Code       string // platform-specific error code, if any
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s api error %d (%s): %s", e.Platform, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s api error %d: %s", e.Platform, e.StatusCode, e.Message)
}

// Transient reports whether the error is worth retrying: rate limits and
// server errors recover on their own, everything else needs intervention.
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTransient classifies an error from a platform call. Network-level
// failures and timeouts count as transient; any other 4xx is permanent.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
