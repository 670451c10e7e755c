package lro

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

// Sentinel errors
var (
	// ErrUnsupportedShape is wrapped by ConfigError when a descriptor declares
	// a result shape the engine does not support
	ErrUnsupportedShape = errors.New("unsupported result shape")

	// ErrShapeMismatch is wrapped by ConfigError when an operation is consumed
	// through the accessor of the other shape
	ErrShapeMismatch = errors.New("result shape mismatch")

	// ErrStreamConsumed is yielded when a stream of status updates is iterated twice
	ErrStreamConsumed = errors.New("status update stream already consumed")

	// ErrInvalidResumeToken is returned when a resume token cannot be decoded
	ErrInvalidResumeToken = errors.New("invalid resume token")
)

// Selection failure messages
const (
	msgMissingPollHeaders = "Response does not contain an Azure-AsyncOperation or Location header."
	msgMissingBody        = "The HTTP response does not contain a body."
)

// ProtocolError reports a response that does not follow the long-running
// operation protocol. It carries the offending response for diagnostics.
type ProtocolError struct {
	Message  string
	Response *transport.Response
}

func (e *ProtocolError) Error() string {
	if e.Response != nil {
		return fmt.Sprintf("cloud operation protocol error (status %d): %s", e.Response.StatusCode(), e.Message)
	}
	return "cloud operation protocol error: " + e.Message
}

// UnexpectedStatusError reports a status code outside the expected set.
// Cause is an *azcore.ResponseError when the raw response was available.
type UnexpectedStatusError struct {
	Expected []int
	Actual   int
	Cause    error
}

func (e *UnexpectedStatusError) Error() string {
	codes := make([]string, len(e.Expected))
	for i, c := range e.Expected {
		codes[i] = fmt.Sprintf("%d", c)
	}
	msg := fmt.Sprintf("unexpected response status %d, expected one of [%s]", e.Actual, strings.Join(codes, ", "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Cause
}

// ConfigError is a programming-time contract violation, raised before any I/O
type ConfigError struct {
	Operation string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("operation %s: %v", e.Operation, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
