package azure

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/zgpcy/azure-lro-poller/internal/config"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
	"github.com/zgpcy/azure-lro-poller/internal/transport"
	"github.com/zgpcy/azure-lro-poller/internal/version"
)

// DefaultRequestTimeout bounds a single request when no timeout is configured
const DefaultRequestTimeout = 30 * time.Second

// PipelineSender sends transport requests through an azcore pipeline that
// authenticates against Azure Resource Manager. It does not retry; wrap it
// in a transport.RetrySender.
type PipelineSender struct {
	pipeline runtime.Pipeline
	endpoint *url.URL
	timeout  time.Duration
}

var _ transport.Sender = (*PipelineSender)(nil)

// SenderOptions configures NewPipelineSender
type SenderOptions struct {
	// Endpoint resolves relative request URLs
	Endpoint string
	Scopes   []string
	// Timeout bounds each request (DefaultRequestTimeout when zero)
	Timeout time.Duration
	// Transport overrides the HTTP client, for tests
	Transport policy.Transporter
}

// NewSender builds the production sender from config: a bearer-token pipeline
// over the default Azure credential chain, wrapped with transport retries
func NewSender(cfg *config.Config, log *logger.Logger) (*transport.RetrySender, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	ps, err := NewPipelineSender(cred, SenderOptions{
		Endpoint: cfg.Transport.Endpoint,
		Scopes:   cfg.Transport.Scopes,
		Timeout:  cfg.APITimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Created ARM sender",
		"endpoint", cfg.Transport.Endpoint,
		"scopes", cfg.Transport.Scopes,
		"api_timeout", cfg.APITimeoutDuration().String())

	return transport.NewRetrySender(ps, transport.RetryPolicy{
		InitialInterval: cfg.Transport.RetryInitialInterval(),
		MaxInterval:     cfg.Transport.RetryMaxInterval(),
		MaxElapsedTime:  cfg.Transport.RetryMaxElapsed(),
	}, log), nil
}

// NewPipelineSender creates a sender authenticating with cred
func NewPipelineSender(cred azcore.TokenCredential, opts SenderOptions) (*PipelineSender, error) {
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil || !endpoint.IsAbs() {
		return nil, fmt.Errorf("invalid endpoint %q", opts.Endpoint)
	}
	if len(opts.Scopes) == 0 {
		return nil, fmt.Errorf("at least one token scope is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}

	pl := runtime.NewPipeline(version.Module, version.Telemetry(),
		runtime.PipelineOptions{
			PerCall: []policy.Policy{runtime.NewBearerTokenPolicy(cred, opts.Scopes, nil)},
		},
		&policy.ClientOptions{
			Transport: opts.Transport,
			// transport.RetrySender is the only retry layer
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	)

	return &PipelineSender{pipeline: pl, endpoint: endpoint, timeout: opts.Timeout}, nil
}

// Do implements transport.Sender. The pipeline buffers the response body
// before returning, so the per-request timeout ends with Do.
func (s *PipelineSender) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	target, err := s.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pr, err := runtime.NewRequest(ctx, req.Method, target)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for name, values := range req.Header {
		for _, v := range values {
			pr.Raw().Header.Add(name, v)
		}
	}
	if len(req.Body) > 0 {
		contentType := req.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		if err := pr.SetBody(streaming.NopCloser(bytes.NewReader(req.Body)), contentType); err != nil {
			return nil, fmt.Errorf("setting request body: %w", err)
		}
	}

	resp, err := s.pipeline.Do(pr)
	if err != nil {
		return nil, err
	}
	return transport.NewResponse(resp), nil
}

// resolve makes raw absolute against the configured endpoint
func (s *PipelineSender) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return s.endpoint.ResolveReference(u).String(), nil
}
