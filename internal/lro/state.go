package lro

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

// Kind identifies the polling strategy selected for an operation
type Kind string

// Strategy kinds
const (
	KindAzureAsyncOperation Kind = "AzureAsyncOperation"
	KindLocation            Kind = "Location"
	KindProvisioningState   Kind = "ProvisioningState"
	KindCompleted           Kind = "Completed"
)

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	switch k {
	case KindAzureAsyncOperation, KindLocation, KindProvisioningState, KindCompleted:
		return true
	}
	return false
}

// Response headers consumed by the engine
const (
	HeaderAzureAsyncOperation = "Azure-AsyncOperation"
	HeaderLocation            = "Location"
	HeaderRetryAfter          = "Retry-After"
	HeaderRetryAfterMS        = "retry-after-ms"
	HeaderXMSRetryAfterMS     = "x-ms-retry-after-ms"
)

// DefaultDelay is the inter-poll delay used when a response carries no hint
const DefaultDelay = 30 * time.Second

// resumeTokenPrefix versions the resume token format
const resumeTokenPrefix = "lro1."

// CapturedResponse is a response kept for final result materialization
type CapturedResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       []byte `json:"body,omitempty"`
}

// State is the complete, serializable state of one in-flight operation.
// A State is only ever replaced as a whole by a poll transition; nothing
// mutates it in place.
type State struct {
	Kind        Kind              `json:"kind"`
	Method      string            `json:"method"`
	OriginalURL string            `json:"originalUrl"`
	PollURL     string            `json:"pollUrl,omitempty"`
	LocationURL string            `json:"locationUrl,omitempty"`
	Status      string            `json:"status"`
	DelayMillis int64             `json:"delayInMilliseconds"`
	Final       *CapturedResponse `json:"final,omitempty"`
	Failure     *ErrorInfo        `json:"failure,omitempty"`
}

// Done reports whether the state is terminal
func (s State) Done() bool {
	return IsTerminal(s.Status)
}

// Delay returns the delay to wait before the next poll
func (s State) Delay() time.Duration {
	return time.Duration(s.DelayMillis) * time.Millisecond
}

// pollTarget is the URL the next poll GET is issued against
func (s State) pollTarget() string {
	if s.Kind == KindProvisioningState {
		return s.OriginalURL
	}
	return s.PollURL
}

func (s State) validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("unknown strategy kind %q", s.Kind)
	}
	if s.Method == "" || s.OriginalURL == "" {
		return fmt.Errorf("missing original request")
	}
	if (s.Kind == KindAzureAsyncOperation || s.Kind == KindLocation) && s.PollURL == "" {
		return fmt.Errorf("%s strategy without a poll URL", s.Kind)
	}
	if s.Status == "" {
		return fmt.Errorf("missing status")
	}
	if s.DelayMillis < 0 {
		return fmt.Errorf("negative delay %d", s.DelayMillis)
	}
	return nil
}

// EncodeResumeToken externalizes a state so polling can resume in another process
func EncodeResumeToken(s State) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding resume token: %w", err)
	}
	return resumeTokenPrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeResumeToken reverses EncodeResumeToken
func DecodeResumeToken(token string) (State, error) {
	encoded, ok := strings.CutPrefix(strings.TrimSpace(token), resumeTokenPrefix)
	if !ok {
		return State{}, fmt.Errorf("%w: unknown format", ErrInvalidResumeToken)
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidResumeToken, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidResumeToken, err)
	}
	if err := s.validate(); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidResumeToken, err)
	}
	return s, nil
}

// Hints beyond these would overflow time.Duration and are ignored
const (
	maxDelaySeconds = math.MaxInt64 / int64(time.Second)
	maxDelayMillis  = math.MaxInt64 / int64(time.Millisecond)
)

// delayFrom resolves the next delay: Retry-After (seconds), then the
// millisecond interval hints, then the default
func delayFrom(resp *transport.Response, defaultDelay time.Duration) time.Duration {
	if v := resp.Header(HeaderRetryAfter); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 && secs <= maxDelaySeconds {
			return time.Duration(secs) * time.Second
		}
	}
	for _, h := range []string{HeaderRetryAfterMS, HeaderXMSRetryAfterMS} {
		if v := resp.Header(h); v != "" {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 && ms <= maxDelayMillis {
				return time.Duration(ms) * time.Millisecond
			}
		}
	}
	return defaultDelay
}

func capture(resp *transport.Response) (*CapturedResponse, error) {
	body, err := resp.Body()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &CapturedResponse{StatusCode: resp.StatusCode(), Body: body}, nil
}

func is2xx(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
