package remote

import (
	"errors"
	"fmt"
	"time"
)

// RetryPolicy defines the parameters for the exponential backoff and retry mechanism.
// One policy is fixed per Executor; ExecuteWith accepts a different one per call.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	// For example, if MaxAttempts is 3, the call is issued at most 3 times.
	MaxAttempts int

	// BaseDelay is the wait time before the second attempt.
	// This duration doubles with each further attempt (BaseDelay * 2^attempt).
	BaseDelay time.Duration

	// MaxDelay is the hard limit for the sleep duration between attempts.
	// Even if the exponential calculation exceeds this value, the wait time will be capped here.
	MaxDelay time.Duration

	// RequestTimeout is the deadline of a single attempt. Every attempt gets a fresh one.
	RequestTimeout time.Duration
}

// DefaultRetryPolicy is used for dashboard calls when nothing else is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       10 * time.Second,
		RequestTimeout: 15 * time.Second,
	}
}

// Validate reports whether the policy can drive a retry loop.
func (p RetryPolicy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1; got %d", p.MaxAttempts))
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if p.BaseDelay > p.MaxDelay {
		errs = append(errs, fmt.Errorf("base delay %s exceeds max delay %s", p.BaseDelay, p.MaxDelay))
	}
	if p.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Backoff returns the sleep that follows the given zero-based attempt:
// min(BaseDelay * 2^attempt, MaxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		// Doubling past MaxDelay/2 would reach the cap anyway, or overflow.
		if delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	return min(delay, p.MaxDelay)
}
