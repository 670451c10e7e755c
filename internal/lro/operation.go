package lro

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sync/atomic"

	"github.com/zgpcy/azure-lro-poller/internal/logger"
	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

// Operation is one long-running operation bound to a dispatcher. It is driven
// by a single consumer and is not safe for concurrent use.
type Operation[T any] struct {
	d        *Dispatcher
	desc     Descriptor
	strategy *Strategy
	initial  *transport.Response // nil for resumed operations
	consumed atomic.Bool
	started  bool
	result   *OperationStatus[T] // set once PollUntilDone materializes the result
	log      *logger.Logger
}

// Begin sends the initial request of a long-running operation and selects
// its polling strategy. Descriptor, status and selection errors are returned
// here, before any polling starts.
func Begin[T any](ctx context.Context, d *Dispatcher, req *transport.Request, desc Descriptor) (*Operation[T], error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	resp, err := d.sender.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	if err := checkStatus(resp, desc.expectedStatus()...); err != nil {
		return nil, err
	}

	state, err := Select(req.Method, req.URL, resp, desc, d.decoder, d.defaultDelay)
	if err != nil {
		return nil, err
	}

	op := newOperation[T](d, state, desc)
	op.initial = resp
	op.log.Info("Long-running operation accepted",
		"status_code", resp.StatusCode(),
		"status", state.Status,
		"poll_url", state.pollTarget())
	return op, nil
}

// Resume rebinds an externalized resume token to d. The strategy recorded
// in the token is kept as is; no selection happens.
func Resume[T any](d *Dispatcher, token string, desc Descriptor) (*Operation[T], error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	state, err := DecodeResumeToken(token)
	if err != nil {
		return nil, err
	}
	return ResumeState[T](d, state, desc)
}

// ResumeState is Resume for an already decoded State
func ResumeState[T any](d *Dispatcher, state State, desc Descriptor) (*Operation[T], error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if err := state.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResumeToken, err)
	}
	op := newOperation[T](d, state, desc)
	op.log.Info("Long-running operation resumed",
		"status", state.Status,
		"poll_url", state.pollTarget())
	return op, nil
}

func newOperation[T any](d *Dispatcher, state State, desc Descriptor) *Operation[T] {
	return &Operation[T]{
		d:        d,
		desc:     desc,
		strategy: newStrategy(state, d.sender, d.decoder, d.defaultDelay),
		log: d.logger.WithFields(
			"operation", desc.Name,
			"strategy", string(state.Kind),
			"method", state.Method),
	}
}

// Kind returns the selected strategy kind
func (o *Operation[T]) Kind() Kind { return o.strategy.Kind() }

// Status returns the current status
func (o *Operation[T]) Status() string { return o.strategy.Status() }

// Done reports whether the operation reached a terminal status
func (o *Operation[T]) Done() bool { return o.strategy.Done() }

// ResumeToken externalizes the current state for Resume
func (o *Operation[T]) ResumeToken() (string, error) { return o.strategy.ResumeToken() }

// PollUntilDone polls until a terminal status and returns the final result.
// Failed and Canceled are returned as statuses with a nil error; errors are
// reserved for transport, protocol and decoding failures. Once a result has
// been returned, later calls return it again without further requests.
func (o *Operation[T]) PollUntilDone(ctx context.Context) (OperationStatus[T], error) {
	var zero OperationStatus[T]
	if o.desc.Shape != ShapeSingle {
		return zero, o.shapeMismatch("PollUntilDone", ShapeSingle)
	}
	if o.result != nil {
		return *o.result, nil
	}

	o.start()
	for !o.strategy.Done() {
		if err := o.wait(ctx); err != nil {
			o.finish(OutcomeAbandoned)
			return zero, err
		}
		if err := o.poll(ctx); err != nil {
			o.finish(OutcomeError)
			return zero, err
		}
	}

	result, err := o.materialize(ctx)
	if err != nil {
		o.finish(OutcomeError)
		return zero, err
	}
	o.result = &result
	o.finish(result.Status)
	return result, nil
}

// Updates returns the stream of status updates. For an operation started by
// Begin the first item is the initial response decoded into T with the status
// selected for it; each later item follows one poll, and the last item carries
// the final result. Resumed operations start with the first poll after
// resumption.
//
// The stream is consume-once: ranging over it a second time yields a single
// ErrStreamConsumed instead of silently resuming live polling. Stopping the
// iteration, or cancelling ctx, stops further polls.
func (o *Operation[T]) Updates(ctx context.Context) iter.Seq2[OperationStatus[T], error] {
	return func(yield func(OperationStatus[T], error) bool) {
		var zero OperationStatus[T]
		if o.desc.Shape != ShapeStreamed {
			yield(zero, o.shapeMismatch("Updates", ShapeStreamed))
			return
		}
		if !o.consumed.CompareAndSwap(false, true) {
			yield(zero, ErrStreamConsumed)
			return
		}

		o.start()
		if o.initial != nil {
			first, err := o.firstStatus()
			if err != nil {
				o.finish(OutcomeError)
				yield(zero, err)
				return
			}
			if !yield(first, nil) {
				o.finish(OutcomeAbandoned)
				return
			}
			if o.strategy.Done() {
				o.finish(first.Status)
				return
			}
		} else if o.strategy.Done() {
			o.emitFinal(ctx, yield)
			return
		}

		for !o.strategy.Done() {
			if err := o.wait(ctx); err != nil {
				o.finish(OutcomeAbandoned)
				yield(zero, err)
				return
			}
			if err := o.poll(ctx); err != nil {
				o.finish(OutcomeError)
				yield(zero, err)
				return
			}
			if o.strategy.Done() {
				o.emitFinal(ctx, yield)
				return
			}
			if !yield(OperationStatus[T]{Status: o.strategy.Status()}, nil) {
				o.finish(OutcomeAbandoned)
				return
			}
		}
	}
}

func (o *Operation[T]) emitFinal(ctx context.Context, yield func(OperationStatus[T], error) bool) {
	result, err := o.materialize(ctx)
	if err != nil {
		o.finish(OutcomeError)
		yield(OperationStatus[T]{}, err)
		return
	}
	o.finish(result.Status)
	yield(result, nil)
}

// firstStatus decodes the initial response into the first stream item
func (o *Operation[T]) firstStatus() (OperationStatus[T], error) {
	first := OperationStatus[T]{Status: o.strategy.Status()}
	if !o.desc.ExpectsBody {
		return first, nil
	}
	body, err := o.initial.Body()
	if err != nil {
		return OperationStatus[T]{}, fmt.Errorf("reading initial response: %w", err)
	}
	first.Value, err = o.decodeValue(body)
	if err != nil {
		return OperationStatus[T]{}, err
	}
	return first, nil
}

// materialize builds the final result of a terminal operation, issuing the
// final GET when the result lives at another URL
func (o *Operation[T]) materialize(ctx context.Context) (OperationStatus[T], error) {
	st := o.strategy.State()
	result := OperationStatus[T]{Status: st.Status, Failure: st.Failure}
	if st.Status != StatusSucceeded || !o.desc.ExpectsBody {
		return result, nil
	}

	var body []byte
	if st.Kind == KindAzureAsyncOperation {
		u := finalResourceURL(st)
		if u == "" {
			return result, nil
		}
		resp, err := o.d.sender.Do(ctx, transport.NewRequest(http.MethodGet, u))
		if err != nil {
			return OperationStatus[T]{}, fmt.Errorf("final GET %s: %w", u, err)
		}
		if !is2xx(resp.StatusCode()) {
			return OperationStatus[T]{}, unexpectedStatus(resp, http.StatusOK)
		}
		if body, err = resp.Body(); err != nil {
			return OperationStatus[T]{}, fmt.Errorf("reading final response: %w", err)
		}
		o.log.Debug("Fetched final resource", "url", u, "status_code", resp.StatusCode())
	} else if st.Final != nil {
		body = st.Final.Body
	}

	value, err := o.decodeValue(body)
	if err != nil {
		return OperationStatus[T]{}, err
	}
	result.Value = value
	return result, nil
}

// finalResourceURL is where an Azure-AsyncOperation result lives: the
// original URL for PUT and PATCH, the Location URL for POST, nothing otherwise
func finalResourceURL(st State) string {
	switch st.Method {
	case http.MethodPut, http.MethodPatch:
		return st.OriginalURL
	case http.MethodPost:
		return st.LocationURL
	}
	return ""
}

func (o *Operation[T]) decodeValue(body []byte) (*T, error) {
	if isBlank(body) {
		return nil, nil
	}
	v := new(T)
	if err := o.d.decoder.Decode(body, v); err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", o.desc.Name, err)
	}
	return v, nil
}

// wait blocks for the strategy's current delay or until ctx is done
func (o *Operation[T]) wait(ctx context.Context) error {
	delay := o.strategy.Delay()
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.d.clock.After(delay):
		return nil
	}
}

func (o *Operation[T]) poll(ctx context.Context) error {
	start := o.d.clock.Now()
	_, err := o.strategy.Update(ctx)
	elapsed := o.d.clock.Now().Sub(start)
	o.d.observer.PollCompleted(o.strategy.Kind(), elapsed, err)
	if err != nil {
		o.log.Warn("Poll failed", "error", err)
		return err
	}
	o.log.Debug("Polled operation",
		"status", o.strategy.Status(),
		"delay_ms", o.strategy.State().DelayMillis,
		"poll_url", o.strategy.State().pollTarget())
	return nil
}

func (o *Operation[T]) start() {
	if o.started {
		return
	}
	o.started = true
	o.d.observer.OperationStarted(o.strategy.Kind())
}

func (o *Operation[T]) finish(outcome string) {
	if !o.started {
		return
	}
	o.started = false
	o.d.observer.OperationFinished(o.strategy.Kind(), outcome)
	o.log.Info("Long-running operation finished", "outcome", outcome)
}

func (o *Operation[T]) shapeMismatch(method string, want Shape) error {
	return &ConfigError{
		Operation: o.desc.Name,
		Err:       fmt.Errorf("%w: %s requires shape %s, descriptor declares %s", ErrShapeMismatch, method, want, o.desc.Shape),
	}
}
