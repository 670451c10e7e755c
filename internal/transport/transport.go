package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
)

// Request is a single HTTP request issued by the polling engine or its host
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest creates a request without a body
func NewRequest(method, url string) *Request {
	return &Request{
		Method: strings.ToUpper(method),
		URL:    url,
		Header: http.Header{},
	}
}

// Response wraps an *http.Response whose body is buffered on first read,
// so headers, status and body can be inspected any number of times
type Response struct {
	raw *http.Response
}

// NewResponse wraps a raw HTTP response
func NewResponse(raw *http.Response) *Response {
	return &Response{raw: raw}
}

// NewBufferedResponse builds a response from already-known parts. It is used to
// replay captured responses and in tests.
func NewBufferedResponse(statusCode int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{raw: &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}}
}

// StatusCode returns the HTTP status code
func (r *Response) StatusCode() int {
	return r.raw.StatusCode
}

// Header returns the first value of the named header, or "" when absent
func (r *Response) Header(name string) string {
	return strings.TrimSpace(r.raw.Header.Get(name))
}

// Body returns the buffered response body. The first call downloads the body,
// later calls return the cached bytes.
func (r *Response) Body() ([]byte, error) {
	return runtime.Payload(r.raw)
}

// Raw returns the underlying *http.Response
func (r *Response) Raw() *http.Response {
	return r.raw
}

// Sender sends a request and returns the response. Non-2xx responses are not
// errors at this layer; only transport failures are.
type Sender interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f(ctx, req)
func (f SenderFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
