package reliability

import (
	"context"
	"errors"
	"net"
)

// Fallback reasons reported when an external responder call fails.
const (
	ReasonTimeout     = "timeout"
	ReasonCanceled    = "canceled"
	ReasonUnavailable = "upstream_unavailable"
	ReasonRejected    = "upstream_rejected"
	ReasonEmpty       = "empty"
	ReasonError       = "error"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

type statusCoder interface {
	StatusCode() int
}

// FallbackReason maps a responder error to a low-cardinality metric label.
func FallbackReason(err error) string {
	if err == nil {
		return ReasonEmpty
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		if IsRetryableHTTPStatus(sc.StatusCode()) {
			return ReasonUnavailable
		}
		return ReasonRejected
	}
	return ReasonError
}

// IsRetryable reports whether a later attempt could plausibly succeed.
func IsRetryable(err error) bool {
	switch FallbackReason(err) {
	case ReasonTimeout, ReasonUnavailable:
		return true
	default:
		return false
	}
}
