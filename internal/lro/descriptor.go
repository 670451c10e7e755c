package lro

import (
	"fmt"
	"net/http"
)

// Shape is the result shape an operation is consumed through
type Shape int

const (
	// ShapeUnknown is the zero value and is rejected
	ShapeUnknown Shape = iota
	// ShapeSingle delivers only the final result, via PollUntilDone
	ShapeSingle
	// ShapeStreamed delivers one OperationStatus per poll, via Updates
	ShapeStreamed
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeStreamed:
		return "streamed"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// DefaultExpectedStatus is the initial status set accepted when a descriptor does not name one
var DefaultExpectedStatus = []int{http.StatusOK, http.StatusCreated, http.StatusAccepted}

// Descriptor statically declares how a long-running operation is consumed.
// Client code generators emit one per operation.
type Descriptor struct {
	// Name is the fully qualified operation name, used in errors and logs
	Name string
	// Shape selects single-result or streamed consumption
	Shape Shape
	// ExpectsBody is false for operations whose responses carry no body
	ExpectsBody bool
	// ExpectedStatus overrides DefaultExpectedStatus for the initial response
	ExpectedStatus []int
}

// Validate checks the descriptor contract
func (d Descriptor) Validate() error {
	name := d.Name
	if name == "" {
		name = "<unnamed>"
	}
	if d.Shape != ShapeSingle && d.Shape != ShapeStreamed {
		return &ConfigError{
			Operation: name,
			Err: fmt.Errorf("%w %s: long-running operations only support a single eventual result or a stream of OperationStatus[T]",
				ErrUnsupportedShape, d.Shape),
		}
	}
	return nil
}

func (d Descriptor) expectedStatus() []int {
	if len(d.ExpectedStatus) > 0 {
		return d.ExpectedStatus
	}
	return DefaultExpectedStatus
}
