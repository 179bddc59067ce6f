package biz

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons returned by the sync pipeline.
const (
	ReasonSourceUnavailable = "SOURCE_UNAVAILABLE"
	ReasonCircuitOpen       = "CIRCUIT_OPEN"
	ReasonRateLimited       = "RATE_LIMITED"
)

// newSourceUnavailableError reports a tenant without an active connection for a source.
// It is never counted by the breaker or the limiter.
func newSourceUnavailableError(service string, tenantID int64) error {
	return errors.New(
		400,
		ReasonSourceUnavailable,
		fmt.Sprintf("%s not connected for business %d", service, tenantID),
	)
}

// newCircuitOpenError reports a call rejected without running the action.
func newCircuitOpenError(service, scope string, retryAfter time.Duration) error {
	return errors.New(
		503, // HTTP 503 Service Unavailable
		ReasonCircuitOpen,
		fmt.Sprintf("circuit open: service=%s scope=%s retry_after=%ds",
			service, scope, int64(retryAfter.Seconds())),
	).WithMetadata(map[string]string{
		"service":     service,
		"scope":       scope,
		"retry_after": fmt.Sprintf("%d", int64(retryAfter.Seconds())),
	})
}

// newRateLimitedError reports a denied or exhausted rate limit window.
func newRateLimitedError(service, scope string, used, limit int64) error {
	return errors.New(
		429, // HTTP 429 Too Many Requests
		ReasonRateLimited,
		fmt.Sprintf("rate limit exceeded: service=%s scope=%s current=%d limit=%d",
			service, scope, used, limit),
	)
}

// IsSourceUnavailable reports whether err means the tenant has no active connection.
func IsSourceUnavailable(err error) bool {
	return err != nil && errors.Reason(err) == ReasonSourceUnavailable
}

// IsCircuitOpen reports whether err was raised by an open breaker.
func IsCircuitOpen(err error) bool {
	return err != nil && errors.Reason(err) == ReasonCircuitOpen
}

// IsRateLimited reports whether err was raised by the rate limiter.
func IsRateLimited(err error) bool {
	return err != nil && errors.Reason(err) == ReasonRateLimited
}
