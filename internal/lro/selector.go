package lro

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

// Select chooses the polling strategy for an initial response, or a Completed
// state when the operation already finished. Candidates are tried in this order:
//
//	status 200 (any method):   Azure-AsyncOperation, provisioning state or completed
//	status 201 (PUT/PATCH):    Azure-AsyncOperation, provisioning state or completed
//	status 202 (PUT/PATCH):    Azure-AsyncOperation, Location
//	status 202 (other method): Azure-AsyncOperation, Location, else a ProtocolError
//	anything else:             completed
//
// A missing header only moves on to the next candidate.
func Select(method, originalURL string, resp *transport.Response, desc Descriptor, decoder Decoder, defaultDelay time.Duration) (State, error) {
	method = strings.ToUpper(method)
	base := State{
		Method:      method,
		OriginalURL: originalURL,
		DelayMillis: delayFrom(resp, defaultDelay).Milliseconds(),
	}
	putOrPatch := method == http.MethodPut || method == http.MethodPatch

	switch code := resp.StatusCode(); {
	case code == http.StatusOK, code == http.StatusCreated && putOrPatch:
		if s, ok := tryAsyncOperation(base, resp); ok {
			return s, nil
		}
		return provisioningStateOrCompleted(base, resp, desc, decoder)

	case code == http.StatusAccepted:
		if s, ok := tryAsyncOperation(base, resp); ok {
			return s, nil
		}
		if s, ok := tryLocation(base, resp); ok {
			return s, nil
		}
		if !putOrPatch {
			return State{}, &ProtocolError{Message: msgMissingPollHeaders, Response: resp}
		}
	}
	return completed(base, resp, StatusSucceeded)
}

func tryAsyncOperation(base State, resp *transport.Response) (State, bool) {
	u := resp.Header(HeaderAzureAsyncOperation)
	if u == "" {
		return State{}, false
	}
	base.Kind = KindAzureAsyncOperation
	base.PollURL = u
	base.LocationURL = resp.Header(HeaderLocation)
	base.Status = StatusInProgress
	return base, true
}

func tryLocation(base State, resp *transport.Response) (State, bool) {
	u := resp.Header(HeaderLocation)
	if u == "" {
		return State{}, false
	}
	base.Kind = KindLocation
	base.PollURL = u
	base.Status = StatusInProgress
	return base, true
}

func provisioningStateOrCompleted(base State, resp *transport.Response, desc Descriptor, decoder Decoder) (State, error) {
	switch base.Method {
	case http.MethodDelete, http.MethodGet, http.MethodHead:
		return completed(base, resp, StatusSucceeded)
	}
	if !desc.ExpectsBody {
		return completed(base, resp, StatusSucceeded)
	}

	body, err := resp.Body()
	if err != nil {
		return State{}, fmt.Errorf("reading initial response: %w", err)
	}
	if isBlank(body) {
		return State{}, &ProtocolError{Message: msgMissingBody, Response: resp}
	}
	var payload provisioningStateBody
	if err := decoder.Decode(body, &payload); err != nil {
		return State{}, fmt.Errorf("decoding provisioning state: %w", err)
	}

	ps := payload.state()
	if ps != "" && !IsTerminal(ps) {
		base.Kind = KindProvisioningState
		base.Status = ps
		return base, nil
	}
	status := StatusSucceeded
	if ps != "" {
		status = ps
	}
	return completed(base, resp, status)
}

// completed builds the state of an operation finished at selection time,
// keeping the initial response for replay
func completed(base State, resp *transport.Response, status string) (State, error) {
	final, err := capture(resp)
	if err != nil {
		return State{}, err
	}
	base.Kind = KindCompleted
	base.Status = status
	base.Final = final
	return base, nil
}
