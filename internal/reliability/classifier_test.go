package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestFallbackReason(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		want      string
		retryable bool
	}{
		{"nil", nil, ReasonEmpty, false},
		{"deadline", fmt.Errorf("send request: %w", context.DeadlineExceeded), ReasonTimeout, true},
		{"canceled", context.Canceled, ReasonCanceled, false},
		{"net timeout", fmt.Errorf("send request: %w", timeoutErr{}), ReasonTimeout, true},
		{"bad gateway", fmt.Errorf("wrap: %w", statusErr(502)), ReasonUnavailable, true},
		{"bad request", statusErr(400), ReasonRejected, false},
		{"other", errors.New("boom"), ReasonError, false},
	}
	for _, tc := range cases {
		if got := FallbackReason(tc.err); got != tc.want {
			t.Fatalf("%s: FallbackReason() = %q, want %q", tc.name, got, tc.want)
		}
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Fatalf("%s: IsRetryable() = %v, want %v", tc.name, got, tc.retryable)
		}
	}
}
