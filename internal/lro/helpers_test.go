package lro

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

const (
	testResourceURL = "https://management.azure.com/subscriptions/sub-1/resourceGroups/rg-1?api-version=2021-04-01"
	testActionURL   = "https://management.azure.com/subscriptions/sub-1/providers/Microsoft.Foo/doThing?api-version=2021-04-01"
)

var errUnexpectedRequest = errors.New("unexpected request")

// scriptedSender returns queued responses in order and records every request
type scriptedSender struct {
	mu        sync.Mutex
	responses []scriptedReply
	requests  []*transport.Request
}

type scriptedReply struct {
	resp   *transport.Response
	err    error
	before func()
}

func (s *scriptedSender) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, errUnexpectedRequest
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	if next.before != nil {
		next.before()
	}
	return next.resp, next.err
}

func (s *scriptedSender) reply(status int, headers map[string]string, body string) *scriptedSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedReply{resp: response(status, headers, body)})
	return s
}

func (s *scriptedSender) fail(err error) *scriptedSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedReply{err: err})
	return s
}

func (s *scriptedSender) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Method + " " + r.URL
	}
	return out
}

func (s *scriptedSender) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func response(status int, headers map[string]string, body string) *transport.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return transport.NewBufferedResponse(status, h, []byte(body))
}

// fakeClock fires every timer immediately and records the requested delays
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// stuckClock never fires
type stuckClock struct{}

func (stuckClock) Now() time.Time                       { return time.Time{} }
func (stuckClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

// recordingObserver counts engine events
type recordingObserver struct {
	mu       sync.Mutex
	started  []Kind
	polls    int
	failures int
	finished []string
}

func (r *recordingObserver) OperationStarted(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, kind)
}

func (r *recordingObserver) PollCompleted(_ Kind, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	if err != nil {
		r.failures++
	}
}

func (r *recordingObserver) OperationFinished(_ Kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, outcome)
}

func newTestDispatcher(t *testing.T, sender transport.Sender, clk *fakeClock) *Dispatcher {
	t.Helper()
	return NewDispatcher(sender, Options{
		DefaultDelay: 10 * time.Millisecond,
		Clock:        clk,
	})
}

func newRequest(method, url, body string) *transport.Request {
	req := transport.NewRequest(method, url)
	if body != "" {
		req.Body = []byte(body)
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func putRequest(url string) *transport.Request {
	return newRequest(http.MethodPut, url, `{"location":"westeurope"}`)
}

func singleDesc(name string) Descriptor {
	return Descriptor{Name: name, Shape: ShapeSingle, ExpectsBody: true}
}

func streamedDesc(name string) Descriptor {
	return Descriptor{Name: name, Shape: ShapeStreamed, ExpectsBody: true}
}
