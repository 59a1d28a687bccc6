// Package retry runs a single outbound call under a bounded exponential
// backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts is the number of tries, including the first one.
	DefaultMaxAttempts = 7
	// DefaultInitialInterval is the wait after the first failure.
	DefaultInitialInterval = 500 * time.Millisecond
	// DefaultMaxInterval caps the wait between two attempts.
	DefaultMaxInterval = 30 * time.Second

	// QuotaExhaustedType is the error type (or code) reported on a 429 when the
	// account is permanently out of quota.
	QuotaExhaustedType = "insufficient_quota"
)

// HTTPError is a non-2xx response from a remote API. Type and Code come from
// the structured error body when one is present.
type HTTPError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if e.Type != "" {
		return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, msg)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, msg)
}

// QuotaExhausted reports whether the error body marks the quota as used up.
func (e *HTTPError) QuotaExhausted() bool {
	return e.Type == QuotaExhaustedType || e.Code == QuotaExhaustedType
}

// Policy describes how a call is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// ShouldRetry decides whether a failure is worth another attempt.
	// Nil means ShouldRetry from this package.
	ShouldRetry func(error) bool
	// Notify is called before sleeping for wait after a retryable failure.
	Notify func(err error, attempt int, wait time.Duration)
}

// DefaultPolicy returns the policy used for every outbound API call.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	// attempts are bounded by count, not elapsed time
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Do runs op until it succeeds, fails with a non-retryable error, the attempt
// budget is spent, or ctx is done. The last error from op is returned as is.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = ShouldRetry
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || !shouldRetry(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	var notify backoff.Notify
	if p.Notify != nil {
		notify = func(err error, wait time.Duration) {
			p.Notify(err, attempt, wait)
		}
	}

	return backoff.RetryNotifyWithData(operation, p.backOff(ctx), notify)
}

// ShouldRetry is the default predicate:
//   - transport failures (connection refused, DNS, per-attempt timeouts) retry
//   - 429 retries unless the body reports insufficient_quota
//   - any 5xx retries
//   - everything else fails immediately
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return !httpErr.QuotaExhausted()
		case httpErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	return IsTransportError(err)
}

// IsTransportError reports whether err happened before an HTTP response was
// received.
func IsTransportError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
