package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
)

// Retry defaults
const (
	// DefaultRetryMaxElapsedTime is the maximum time to spend retrying a single request
	DefaultRetryMaxElapsedTime = 2 * time.Minute

	// DefaultRetryInitialInterval is the initial backoff interval for retries
	DefaultRetryInitialInterval = 1 * time.Second

	// DefaultRetryMaxInterval is the maximum backoff interval between retries
	DefaultRetryMaxInterval = 30 * time.Second
)

// RetryPolicy configures RetrySender. Zero fields take the defaults above.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// RetrySender retries transport failures and transient HTTP statuses with
// exponential backoff. It is the only retry layer; the polling engine itself
// never retries a failed poll.
type RetrySender struct {
	next   Sender
	policy RetryPolicy
	logger *logger.Logger
}

// NewRetrySender wraps next with retry logic
func NewRetrySender(next Sender, policy RetryPolicy, log *logger.Logger) *RetrySender {
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryInitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultRetryMaxInterval
	}
	if policy.MaxElapsedTime <= 0 {
		policy.MaxElapsedTime = DefaultRetryMaxElapsedTime
	}
	return &RetrySender{next: next, policy: policy, logger: log}
}

// Do sends req, retrying until it succeeds, a non-transient status is returned,
// the policy gives up or ctx is done. When retries are exhausted on a transient
// status the last response is returned so the caller can report it.
func (s *RetrySender) Do(ctx context.Context, req *Request) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.policy.InitialInterval
	bo.MaxInterval = s.policy.MaxInterval
	bo.MaxElapsedTime = s.policy.MaxElapsedTime

	var (
		resp     *Response
		attempts int
	)
	operation := func() error {
		attempts++
		r, err := s.next.Do(ctx, req)
		if err != nil {
			resp = nil
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			s.logger.Debug("Request failed, will retry",
				"method", req.Method,
				"url", req.URL,
				"attempt", attempts,
				"error", err)
			return err
		}
		resp = r
		if isTransientStatus(r.StatusCode()) {
			s.logger.Debug("Transient status, will retry",
				"method", req.Method,
				"url", req.URL,
				"attempt", attempts,
				"status_code", r.StatusCode())
			return fmt.Errorf("transient status %d", r.StatusCode())
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if resp != nil && ctx.Err() == nil {
			return resp, nil
		}
		return nil, fmt.Errorf("%s %s failed after %d attempt(s): %w", req.Method, req.URL, attempts, err)
	}
	return resp, nil
}

// isTransientStatus reports whether a status code is worth retrying
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
