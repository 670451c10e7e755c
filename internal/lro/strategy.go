package lro

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

// Strategy drives one operation's state machine. Created -> Polling ->
// Succeeded | Failed | Canceled; no transition leaves a terminal state and the
// kind never changes after selection. A Strategy is owned by a single poll
// loop and is not safe for concurrent use.
type Strategy struct {
	state        State
	sender       transport.Sender
	decoder      Decoder
	defaultDelay time.Duration
}

func newStrategy(state State, sender transport.Sender, decoder Decoder, defaultDelay time.Duration) *Strategy {
	return &Strategy{
		state:        state,
		sender:       sender,
		decoder:      decoder,
		defaultDelay: defaultDelay,
	}
}

// Kind returns the selected strategy kind
func (s *Strategy) Kind() Kind { return s.state.Kind }

// Status returns the current status string
func (s *Strategy) Status() string { return s.state.Status }

// Done reports whether a terminal status was reached, without network I/O
func (s *Strategy) Done() bool { return s.state.Done() }

// Delay returns the delay to wait before the next Update
func (s *Strategy) Delay() time.Duration { return s.state.Delay() }

// State returns a copy of the current state
func (s *Strategy) State() State { return s.state }

// ResumeToken externalizes the current state
func (s *Strategy) ResumeToken() (string, error) {
	return EncodeResumeToken(s.state)
}

// Update issues one poll GET and applies the response. It is a no-op once
// Done is true. On error the state is left unchanged.
func (s *Strategy) Update(ctx context.Context) (bool, error) {
	if s.Done() {
		return true, nil
	}

	target := s.state.pollTarget()
	resp, err := s.sender.Do(ctx, transport.NewRequest(http.MethodGet, target))
	if err != nil {
		return false, fmt.Errorf("poll %s: %w", target, err)
	}
	// A GET already in flight when the caller gave up is not acted upon
	if err := ctx.Err(); err != nil {
		return false, err
	}

	next, err := s.state.apply(resp, s.decoder, s.defaultDelay)
	if err != nil {
		return false, err
	}
	s.state = next
	return s.Done(), nil
}

// apply computes the state following a poll response
func (s State) apply(resp *transport.Response, decoder Decoder, defaultDelay time.Duration) (State, error) {
	next := s
	next.DelayMillis = delayFrom(resp, defaultDelay).Milliseconds()

	switch s.Kind {
	case KindAzureAsyncOperation:
		return next.applyAsyncOperation(resp, decoder)
	case KindLocation:
		return next.applyLocation(resp)
	case KindProvisioningState:
		return next.applyProvisioningState(resp, decoder)
	case KindCompleted:
		return s, nil
	default:
		return s, fmt.Errorf("unknown strategy kind %q", s.Kind)
	}
}

// asyncOperationBody is the body served at an Azure-AsyncOperation URL
type asyncOperationBody struct {
	Status string     `json:"status"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

func (s State) applyAsyncOperation(resp *transport.Response, decoder Decoder) (State, error) {
	if err := checkStatus(resp, http.StatusOK, http.StatusCreated, http.StatusAccepted); err != nil {
		return State{}, err
	}
	if u := resp.Header(HeaderAzureAsyncOperation); u != "" {
		s.PollURL = u
	}
	if u := resp.Header(HeaderLocation); u != "" {
		s.LocationURL = u
	}

	body, err := resp.Body()
	if err != nil {
		return State{}, fmt.Errorf("reading Azure-AsyncOperation response: %w", err)
	}
	if isBlank(body) {
		return State{}, &ProtocolError{Message: msgMissingBody, Response: resp}
	}
	var op asyncOperationBody
	if err := decoder.Decode(body, &op); err != nil {
		return State{}, fmt.Errorf("decoding Azure-AsyncOperation response: %w", err)
	}
	if op.Status == "" {
		return State{}, &ProtocolError{
			Message:  "The response from the Azure-AsyncOperation URL does not contain a status.",
			Response: resp,
		}
	}

	s.Status = op.Status
	if op.Status == StatusFailed || op.Status == StatusCanceled {
		s.Failure = op.Error
	}
	return s, nil
}

func (s State) applyLocation(resp *transport.Response) (State, error) {
	if u := resp.Header(HeaderLocation); u != "" {
		s.PollURL = u
	}

	code := resp.StatusCode()
	switch {
	case code == http.StatusAccepted:
		s.Status = StatusInProgress
	case is2xx(code):
		final, err := capture(resp)
		if err != nil {
			return State{}, err
		}
		s.Status = StatusSucceeded
		s.Final = final
	default:
		return State{}, unexpectedStatus(resp, http.StatusOK, http.StatusAccepted)
	}
	return s, nil
}

// provisioningStateBody is the generic "resource with provisioning state" shape
type provisioningStateBody struct {
	Properties *struct {
		ProvisioningState string `json:"provisioningState"`
	} `json:"properties,omitempty"`
}

func (b provisioningStateBody) state() string {
	if b.Properties == nil {
		return ""
	}
	return b.Properties.ProvisioningState
}

func (s State) applyProvisioningState(resp *transport.Response, decoder Decoder) (State, error) {
	if err := checkStatus(resp, http.StatusOK, http.StatusCreated, http.StatusAccepted); err != nil {
		return State{}, err
	}
	body, err := resp.Body()
	if err != nil {
		return State{}, fmt.Errorf("reading resource response: %w", err)
	}
	if isBlank(body) {
		return State{}, &ProtocolError{Message: msgMissingBody, Response: resp}
	}
	var payload provisioningStateBody
	if err := decoder.Decode(body, &payload); err != nil {
		return State{}, fmt.Errorf("decoding provisioning state: %w", err)
	}

	// A resource without a provisioning state has finished provisioning
	status := payload.state()
	if status == "" {
		status = StatusSucceeded
	}
	s.Status = status
	if IsTerminal(status) {
		s.Final = &CapturedResponse{StatusCode: resp.StatusCode(), Body: body}
	}
	return s, nil
}

// checkStatus validates a status code against the expected set
func checkStatus(resp *transport.Response, expected ...int) error {
	for _, c := range expected {
		if resp.StatusCode() == c {
			return nil
		}
	}
	return unexpectedStatus(resp, expected...)
}

func unexpectedStatus(resp *transport.Response, expected ...int) error {
	e := &UnexpectedStatusError{Expected: expected, Actual: resp.StatusCode()}
	if raw := resp.Raw(); raw != nil && raw.Request != nil {
		e.Cause = runtime.NewResponseError(raw)
	}
	return e
}

func isBlank(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}
