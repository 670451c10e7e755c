package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/zgpcy/azure-lro-poller/internal/lro"
	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

// Result type names
const (
	ResultRaw           = "raw"
	ResultResourceGroup = "resource-group"
	ResultCostQuery     = "cost-query"
)

// Result is the final outcome of an operation in printable form
type Result struct {
	Status  string         `json:"status"`
	Failure *lro.ErrorInfo `json:"failure,omitempty"`
	Value   any            `json:"value,omitempty"`
}

// Poller is a typed lro.Operation with its result type erased
type Poller interface {
	Kind() lro.Kind
	Status() string
	Done() bool
	ResumeToken() (string, error)
	Wait(ctx context.Context) (Result, error)
}

// ResultType decodes final results of one resource shape
type ResultType struct {
	Name        string
	Description string

	begin  func(ctx context.Context, d *lro.Dispatcher, req *transport.Request, desc lro.Descriptor) (Poller, error)
	resume func(d *lro.Dispatcher, token string, desc lro.Descriptor) (Poller, error)
}

var resultTypes = map[string]ResultType{
	ResultRaw:           newResultType[json.RawMessage](ResultRaw, "untyped JSON payload"),
	ResultResourceGroup: newResultType[armresources.ResourceGroup](ResultResourceGroup, "armresources.ResourceGroup"),
	ResultCostQuery:     newResultType[armcostmanagement.QueryResult](ResultCostQuery, "armcostmanagement.QueryResult"),
}

func newResultType[T any](name, description string) ResultType {
	return ResultType{
		Name:        name,
		Description: description,
		begin: func(ctx context.Context, d *lro.Dispatcher, req *transport.Request, desc lro.Descriptor) (Poller, error) {
			op, err := lro.Begin[T](ctx, d, req, desc)
			if err != nil {
				return nil, err
			}
			return typedPoller[T]{op}, nil
		},
		resume: func(d *lro.Dispatcher, token string, desc lro.Descriptor) (Poller, error) {
			op, err := lro.Resume[T](d, token, desc)
			if err != nil {
				return nil, err
			}
			return typedPoller[T]{op}, nil
		},
	}
}

// LookupResultType returns the registered result type called name
func LookupResultType(name string) (ResultType, error) {
	rt, ok := resultTypes[name]
	if !ok {
		return ResultType{}, fmt.Errorf("unknown result type %q (available: %s)",
			name, strings.Join(ResultTypeNames(), ", "))
	}
	return rt, nil
}

// ResultTypeNames returns the registered names in order
func ResultTypeNames() []string {
	names := make([]string, 0, len(resultTypes))
	for n := range resultTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// deleteExpectedStatus adds 204, returned when ARM deletes synchronously or
// the resource is already gone
var deleteExpectedStatus = []int{http.StatusOK, http.StatusAccepted, http.StatusNoContent}

// Descriptor is the single-result descriptor used for method. DELETE
// operations carry no final body.
func (rt ResultType) Descriptor(method string) lro.Descriptor {
	desc := lro.Descriptor{
		Name:        "lrowatch/" + rt.Name,
		Shape:       lro.ShapeSingle,
		ExpectsBody: true,
	}
	if strings.EqualFold(method, http.MethodDelete) {
		desc.ExpectsBody = false
		desc.ExpectedStatus = deleteExpectedStatus
	}
	return desc
}

// Begin sends req and returns a poller decoding into this result type
func (rt ResultType) Begin(ctx context.Context, d *lro.Dispatcher, req *transport.Request) (Poller, error) {
	return rt.begin(ctx, d, req, rt.Descriptor(req.Method))
}

// Resume rebinds a resume token to this result type
func (rt ResultType) Resume(d *lro.Dispatcher, token string) (Poller, error) {
	st, err := lro.DecodeResumeToken(token)
	if err != nil {
		return nil, err
	}
	return rt.resume(d, token, rt.Descriptor(st.Method))
}

type typedPoller[T any] struct {
	op *lro.Operation[T]
}

func (p typedPoller[T]) Kind() lro.Kind               { return p.op.Kind() }
func (p typedPoller[T]) Status() string               { return p.op.Status() }
func (p typedPoller[T]) Done() bool                   { return p.op.Done() }
func (p typedPoller[T]) ResumeToken() (string, error) { return p.op.ResumeToken() }

func (p typedPoller[T]) Wait(ctx context.Context) (Result, error) {
	st, err := p.op.PollUntilDone(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Status: st.Status, Failure: st.Failure}
	if st.Value != nil {
		res.Value = st.Value
	}
	return res, nil
}

// WriteResult prints res as indented JSON
func WriteResult(w io.Writer, res Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}
