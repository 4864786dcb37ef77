package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// StatusError is an upstream HTTP response outside the 2xx range.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Code)
}

// StatusCode returns the HTTP status carried by the error.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// IsNotFound reports a definitive not-found response, fatal for the item.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}

// IsRateLimited reports a rate-limit or transient-block response that
// warrants backoff and identity rotation.
func IsRateLimited(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == 429 || se.Code == 403
}

// IsRetryable classifies transient failures: rate limiting, 5xx responses,
// timeouts and connection-level errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsNotFound(err) {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Unclassified errors from a fetch are assumed connection-level.
	return true
}
