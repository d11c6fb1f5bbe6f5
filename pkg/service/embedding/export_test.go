package embedding

import "time"

// NewBackOffForTest exposes the retry wait policy
func NewBackOffForTest(base, max time.Duration) interface{ NextBackOff() time.Duration } {
	s := &Service{baseDelay: base, maxDelay: max}
	return s.newBackOff()
}

// ErrMalformedResponse is exported for testing
var ErrMalformedResponse = errMalformedResponse

// WithTestRetry disables waiting between retries
func WithTestRetry(maxRetries int) Option {
	return WithRetry(maxRetries, time.Nanosecond, time.Nanosecond)
}
