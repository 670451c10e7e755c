package azure

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zgpcy/azure-lro-poller/internal/config"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
	"github.com/zgpcy/azure-lro-poller/internal/lro"
	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

const testScope = "https://management.azure.com/.default"

// fakeCredential hands out a static token
type fakeCredential struct {
	calls atomic.Int32
}

func (c *fakeCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	c.calls.Add(1)
	return azcore.AccessToken{Token: "fake-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

// armRecorder records what reached the fake ARM endpoint
type armRecorder struct {
	mu       sync.Mutex
	requests []string
	auth     []string
	agents   []string
	bodies   []string
}

func (r *armRecorder) record(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req.Method+" "+req.URL.Path)
	r.auth = append(r.auth, req.Header.Get("Authorization"))
	r.agents = append(r.agents, req.Header.Get("User-Agent"))
	r.bodies = append(r.bodies, string(body))
}

func (r *armRecorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.requests...)
}

func newARM(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *armRecorder) {
	t.Helper()
	rec := &armRecorder{}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestSender(t *testing.T, srv *httptest.Server) (*PipelineSender, *fakeCredential) {
	t.Helper()
	cred := &fakeCredential{}
	s, err := NewPipelineSender(cred, SenderOptions{
		Endpoint:  srv.URL,
		Scopes:    []string{testScope},
		Timeout:   5 * time.Second,
		Transport: srv.Client(),
	})
	require.NoError(t, err)
	return s, cred
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// TestPipelineSender_Do tests authentication, telemetry, URL resolution and bodies
func TestPipelineSender_Do(t *testing.T) {
	srv, rec := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "tag-1", r.Header.Get("x-ms-client-request-tag"))
		writeJSON(w, http.StatusOK, `{"ok":true}`)
	})
	s, cred := newTestSender(t, srv)

	req := transport.NewRequest(http.MethodPut, "/subscriptions/sub-1/resourcegroups/rg-1?api-version=2021-04-01")
	req.Header.Set("x-ms-client-request-tag", "tag-1")
	req.Body = []byte(`{"location":"westeurope"}`)

	resp, err := s.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())

	body, err := resp.Body()
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	require.NotNil(t, resp.Raw().Request, "pipeline responses keep their request")

	assert.Equal(t, []string{"PUT /subscriptions/sub-1/resourcegroups/rg-1"}, rec.paths())
	assert.Equal(t, "Bearer fake-token", rec.auth[0])
	assert.Contains(t, rec.agents[0], "azsdk-go-azure-lro-poller/")
	assert.Equal(t, `{"location":"westeurope"}`, rec.bodies[0])
	assert.Equal(t, int32(1), cred.calls.Load())
}

// TestPipelineSender_NoPipelineRetries tests that azcore retries are disabled
func TestPipelineSender_NoPipelineRetries(t *testing.T) {
	srv, rec := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})
	s, _ := newTestSender(t, srv)

	resp, err := s.Do(context.Background(), transport.NewRequest(http.MethodGet, srv.URL+"/x"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode())
	assert.Len(t, rec.paths(), 1)
}

// TestPipelineSender_Timeout tests the per-request timeout
func TestPipelineSender_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	s, err := NewPipelineSender(&fakeCredential{}, SenderOptions{
		Endpoint:  srv.URL,
		Scopes:    []string{testScope},
		Timeout:   50 * time.Millisecond,
		Transport: srv.Client(),
	})
	require.NoError(t, err)

	_, err = s.Do(context.Background(), transport.NewRequest(http.MethodGet, "/slow"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

// TestNewPipelineSender_Validation tests option validation
func TestNewPipelineSender_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts SenderOptions
	}{
		{"relative endpoint", SenderOptions{Endpoint: "management.azure.com", Scopes: []string{testScope}}},
		{"no scopes", SenderOptions{Endpoint: "https://management.azure.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipelineSender(&fakeCredential{}, tt.opts)
			assert.Error(t, err)
		})
	}

	s, err := NewPipelineSender(&fakeCredential{}, SenderOptions{Endpoint: "https://management.azure.com", Scopes: []string{testScope}})
	require.NoError(t, err)
	assert.Equal(t, DefaultRequestTimeout, s.timeout)
}

// TestPipelineSender_Resolve tests relative and absolute URL handling
func TestPipelineSender_Resolve(t *testing.T) {
	s, err := NewPipelineSender(&fakeCredential{}, SenderOptions{Endpoint: "https://management.azure.com", Scopes: []string{testScope}})
	require.NoError(t, err)

	tests := []struct {
		in, want string
	}{
		{"/subscriptions/sub-1?api-version=2022-01-01", "https://management.azure.com/subscriptions/sub-1?api-version=2022-01-01"},
		{"subscriptions/sub-1", "https://management.azure.com/subscriptions/sub-1"},
		{"https://westeurope.management.azure.com/ops/1", "https://westeurope.management.azure.com/ops/1"},
	}
	for _, tt := range tests {
		got, err := s.resolve(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err = s.resolve("://bad")
	assert.Error(t, err)
}

// TestNewSender tests that the production sender is wrapped with retries
func TestNewSender(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	s, err := NewSender(cfg, logger.Discard())
	if err != nil {
		// environments without any credential source cannot build the chain
		t.Skipf("default credential unavailable: %v", err)
	}
	assert.NotNil(t, s)
}

func newDispatcher(sender transport.Sender) *lro.Dispatcher {
	return lro.NewDispatcher(sender, lro.Options{DefaultDelay: time.Millisecond})
}

// TestResultType_ResourceGroup tests an async PUT decoded into armresources.ResourceGroup
func TestResultType_ResourceGroup(t *testing.T) {
	var srvURL string
	var polls atomic.Int32
	srv, rec := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			w.Header().Set("Azure-AsyncOperation", srvURL+"/operations/op1")
			writeJSON(w, http.StatusCreated, `{"name":"rg-1","properties":{"provisioningState":"Accepted"}}`)
		case r.URL.Path == "/operations/op1":
			if polls.Add(1) == 1 {
				writeJSON(w, http.StatusOK, `{"status":"InProgress"}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"status":"Succeeded"}`)
		default:
			writeJSON(w, http.StatusOK, `{"name":"rg-1","location":"westeurope","properties":{"provisioningState":"Succeeded"}}`)
		}
	})
	srvURL = srv.URL
	s, _ := newTestSender(t, srv)

	rt, err := LookupResultType(ResultResourceGroup)
	require.NoError(t, err)

	req := transport.NewRequest(http.MethodPut, "/subscriptions/sub-1/resourcegroups/rg-1?api-version=2021-04-01")
	req.Body = []byte(`{"location":"westeurope"}`)
	p, err := rt.Begin(context.Background(), newDispatcher(s), req)
	require.NoError(t, err)
	assert.Equal(t, lro.KindAzureAsyncOperation, p.Kind())
	assert.False(t, p.Done())

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lro.StatusSucceeded, res.Status)

	rg, ok := res.Value.(*armresources.ResourceGroup)
	require.True(t, ok, "value is %T", res.Value)
	require.NotNil(t, rg.Name)
	assert.Equal(t, "rg-1", *rg.Name)
	assert.Equal(t, "westeurope", *rg.Location)

	assert.Equal(t, []string{
		"PUT /subscriptions/sub-1/resourcegroups/rg-1",
		"GET /operations/op1",
		"GET /operations/op1",
		"GET /subscriptions/sub-1/resourcegroups/rg-1",
	}, rec.paths())
}

// TestResultType_CostQuery tests a Location POST with a relative poll URL
func TestResultType_CostQuery(t *testing.T) {
	payload, err := os.ReadFile(filepath.Join("testdata", "cost_query_result.json"))
	require.NoError(t, err)

	srv, _ := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Location", "/subscriptions/sub-1/providers/Microsoft.CostManagement/operationResults/q1")
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeJSON(w, http.StatusOK, string(payload))
	})
	s, _ := newTestSender(t, srv)

	rt, err := LookupResultType(ResultCostQuery)
	require.NoError(t, err)

	req := transport.NewRequest(http.MethodPost, "/subscriptions/sub-1/providers/Microsoft.CostManagement/query?api-version=2023-03-01")
	req.Body = []byte(`{"type":"ActualCost","timeframe":"MonthToDate"}`)
	p, err := rt.Begin(context.Background(), newDispatcher(s), req)
	require.NoError(t, err)
	assert.Equal(t, lro.KindLocation, p.Kind())

	res, err := p.Wait(context.Background())
	require.NoError(t, err)

	q, ok := res.Value.(*armcostmanagement.QueryResult)
	require.True(t, ok, "value is %T", res.Value)
	require.NotNil(t, q.Properties)
	require.Len(t, q.Properties.Columns, 4)
	assert.Equal(t, "PreTaxCost", *q.Properties.Columns[0].Name)
	require.Len(t, q.Properties.Rows, 2)
	assert.Equal(t, "Storage", q.Properties.Rows[0][2])
}

// TestResultType_ResumeRaw tests resuming a token under the raw result type
func TestResultType_ResumeRaw(t *testing.T) {
	var srvURL string
	srv, _ := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/action":
			w.Header().Set("Location", srvURL+"/results/1")
			w.WriteHeader(http.StatusAccepted)
		default:
			writeJSON(w, http.StatusOK, `{"exported":42}`)
		}
	})
	srvURL = srv.URL
	s, _ := newTestSender(t, srv)
	d := newDispatcher(s)

	raw, err := LookupResultType(ResultRaw)
	require.NoError(t, err)
	p, err := raw.Begin(context.Background(), d, transport.NewRequest(http.MethodPost, "/action"))
	require.NoError(t, err)
	token, err := p.ResumeToken()
	require.NoError(t, err)

	resumed, err := raw.Resume(d, token)
	require.NoError(t, err)
	assert.Equal(t, lro.StatusInProgress, resumed.Status())

	res, err := resumed.Wait(context.Background())
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, WriteResult(&out, res))
	var printed struct {
		Status string          `json:"status"`
		Value  json.RawMessage `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.String()), &printed))
	assert.Equal(t, "Succeeded", printed.Status)
	assert.JSONEq(t, `{"exported":42}`, string(printed.Value))

	_, err = raw.Resume(d, "garbage")
	assert.ErrorIs(t, err, lro.ErrInvalidResumeToken)
}

// TestResultType_DeleteHasNoValue tests that DELETE results print without a value
func TestResultType_DeleteHasNoValue(t *testing.T) {
	srv, _ := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s, _ := newTestSender(t, srv)

	rt, err := LookupResultType(ResultRaw)
	require.NoError(t, err)
	assert.False(t, rt.Descriptor(http.MethodDelete).ExpectsBody)
	assert.True(t, rt.Descriptor(http.MethodPut).ExpectsBody)

	p, err := rt.Begin(context.Background(), newDispatcher(s), transport.NewRequest(http.MethodDelete, "/subscriptions/sub-1/resourcegroups/rg-1"))
	require.NoError(t, err)
	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lro.StatusSucceeded, res.Status)
	assert.Nil(t, res.Value)

	var out strings.Builder
	require.NoError(t, WriteResult(&out, res))
	assert.NotContains(t, out.String(), "value")
}

// TestResultType_DeleteNoContent tests that a synchronous 204 DELETE completes
func TestResultType_DeleteNoContent(t *testing.T) {
	srv, _ := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s, _ := newTestSender(t, srv)

	rt, err := LookupResultType(ResultRaw)
	require.NoError(t, err)
	assert.Contains(t, rt.Descriptor(http.MethodDelete).ExpectedStatus, http.StatusNoContent)
	assert.Empty(t, rt.Descriptor(http.MethodPut).ExpectedStatus)

	p, err := rt.Begin(context.Background(), newDispatcher(s), transport.NewRequest(http.MethodDelete, "/subscriptions/sub-1/resourcegroups/rg-1"))
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, lro.KindCompleted, p.Kind())

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lro.StatusSucceeded, res.Status)
	assert.Nil(t, res.Value)

	_, err = rt.Begin(context.Background(), newDispatcher(s), transport.NewRequest(http.MethodPut, "/subscriptions/sub-1/resourcegroups/rg-1"))
	var statusErr *lro.UnexpectedStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNoContent, statusErr.Actual)
}

// TestResultType_ARMErrorCode tests that ARM error codes surface through azcore.ResponseError
func TestResultType_ARMErrorCode(t *testing.T) {
	srv, _ := newARM(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":{"code":"ResourceGroupNotFound","message":"Resource group 'rg-9' could not be found."}}`)
	})
	s, _ := newTestSender(t, srv)

	rt, err := LookupResultType(ResultResourceGroup)
	require.NoError(t, err)
	_, err = rt.Begin(context.Background(), newDispatcher(s), transport.NewRequest(http.MethodPut, "/subscriptions/sub-1/resourcegroups/rg-9"))
	require.Error(t, err)

	var statusErr *lro.UnexpectedStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Actual)

	var respErr *azcore.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "ResourceGroupNotFound", respErr.ErrorCode)
}

// TestLookupResultType tests the registry
func TestLookupResultType(t *testing.T) {
	assert.Equal(t, []string{ResultCostQuery, ResultRaw, ResultResourceGroup}, ResultTypeNames())

	for _, name := range ResultTypeNames() {
		rt, err := LookupResultType(name)
		require.NoError(t, err)
		assert.Equal(t, name, rt.Name)
		assert.NotEmpty(t, rt.Description)
	}

	_, err := LookupResultType("virtual-machine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: cost-query, raw, resource-group")
}
