package verda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	oaierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/runtime"
	"github.com/go-openapi/validate"
	"github.com/sirupsen/logrus"
)

// DefaultInferenceTimeout is the default timeout of inference requests.
const DefaultInferenceTimeout = 300 * time.Second

const (
	headerPrefer      = "Prefer"
	headerInferenceID = "X-Inference-Id"

	preferRespondAsync      = "respond-async"
	preferRespondAsyncProxy = "respond-async-proxy"

	defaultHealthcheckPath = "/health"
)

// InferenceClient calls the HTTP endpoint of a single container deployment.
//
// It authenticates with a static inference key sent as a bearer token; there
// is no token lifecycle. Requests can be answered synchronously
// ([InferenceClient.RunSync]), asynchronously through an execution id that is
// polled later ([InferenceClient.Run]), or as a stream (RunSync with Stream set).
//
// The global headers are a plain map owned by the client. Mutating them
// while requests are in flight on other goroutines is not safe.
type InferenceClient struct {
	inferenceKey    string
	endpointBaseURL string
	timeout         time.Duration
	httpClient      *http.Client
	globalHeaders   map[string]string
	logger          logrus.FieldLogger
}

// InferenceRequest describes a call to an inference endpoint.
type InferenceRequest struct {
	// Data is encoded as the JSON request body. Nil sends no body.
	Data any

	// Path is appended to the endpoint base URL. Empty targets the base URL.
	Path string

	// Timeout overrides the client timeout. It covers reading the body,
	// unless Stream is set: a streamed body may run for as long as ctx allows
	// and Timeout only bounds the wait for the response headers.
	Timeout time.Duration

	// Headers are merged over the global headers.
	Headers map[string]string

	// Method is the HTTP method. Default: POST.
	Method string

	// Stream marks the response as a stream for [InferenceResponse.IsStreamResponse].
	Stream bool

	// NoResponse makes [InferenceClient.Run] fire and forget: the server
	// does not return an execution id and Run returns nil.
	NoResponse bool
}

// NewInferenceClient creates a client for the deployment endpoint at
// endpointBaseURL, authenticated with inferenceKey.
//
//	ic, err := verda.NewInferenceClient(key, "https://containers.datacrunch.io/my-deployment")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := ic.RunSync(ctx, &verda.InferenceRequest{Data: map[string]any{"prompt": "hi"}})
func NewInferenceClient(inferenceKey, endpointBaseURL string, opts ...InferenceOption) (*InferenceClient, error) {
	if err := validate.RequiredString("inference_key", "client", inferenceKey); err != nil {
		return nil, err
	}
	if err := validateEndpointURL(endpointBaseURL); err != nil {
		return nil, err
	}

	c := &InferenceClient{
		inferenceKey:    inferenceKey,
		endpointBaseURL: strings.TrimRight(endpointBaseURL, "/"),
		timeout:         DefaultInferenceTimeout,
		httpClient:      http.DefaultClient,
		globalHeaders: map[string]string{
			runtime.HeaderAuthorization: "Bearer " + inferenceKey,
			runtime.HeaderContentType:   runtime.JSONMime,
		},
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func validateEndpointURL(endpointBaseURL string) error {
	u, err := url.Parse(endpointBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return oaierrors.New(http.StatusUnprocessableEntity, "endpoint_base_url must be a valid URL, got %q", endpointBaseURL)
	}
	return nil
}

// EndpointBaseURL returns the endpoint base URL without a trailing slash.
func (c *InferenceClient) EndpointBaseURL() string {
	return c.endpointBaseURL
}

// GlobalHeaders returns a copy of the headers sent with every request.
func (c *InferenceClient) GlobalHeaders() map[string]string {
	headers := make(map[string]string, len(c.globalHeaders))
	for k, v := range c.globalHeaders {
		headers[k] = v
	}
	return headers
}

// SetGlobalHeader sets or replaces a header sent with every request.
func (c *InferenceClient) SetGlobalHeader(key, value string) {
	c.globalHeaders[key] = value
}

// SetGlobalHeaders sets or replaces several global headers at once.
func (c *InferenceClient) SetGlobalHeaders(headers map[string]string) {
	for k, v := range headers {
		c.globalHeaders[k] = v
	}
}

// RemoveGlobalHeader removes a global header. Removing an absent header is a no-op.
func (c *InferenceClient) RemoveGlobalHeader(key string) {
	delete(c.globalHeaders, key)
}

// RunSync sends req and waits for the response.
//
// The returned response owns the body: read it with [InferenceResponse.Output]
// or [InferenceResponse.Stream] and close it when done.
func (c *InferenceClient) RunSync(ctx context.Context, req *InferenceRequest) (*InferenceResponse, error) {
	if req == nil {
		req = &InferenceRequest{}
	}
	resp, err := c.send(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return newInferenceResponse(resp, req.Stream), nil
}

// Run submits req for asynchronous execution.
//
// By default the server answers with an execution id and Run returns an
// [AsyncInferenceExecution] to poll. With NoResponse set the request is
// fire-and-forget and Run returns nil, nil.
func (c *InferenceClient) Run(ctx context.Context, req *InferenceRequest) (*AsyncInferenceExecution, error) {
	if req == nil {
		req = &InferenceRequest{}
	}
	prefer := preferRespondAsync
	if req.NoResponse {
		prefer = preferRespondAsyncProxy
	}

	resp, err := c.send(ctx, req, map[string]string{headerPrefer: prefer})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if req.NoResponse {
		return nil, nil
	}

	var body struct {
		ID string `json:"Id"`
	}
	if err := runtime.JSONConsumer().Consume(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode async response: %w", err)
	}
	if body.ID == "" {
		return nil, errors.New("decode async response: missing execution Id")
	}

	c.logger.WithField("inference_id", body.ID).Debug("async inference submitted")
	return newAsyncInferenceExecution(c, body.ID), nil
}

// Health checks the deployment's health endpoint. An empty path uses "/health".
func (c *InferenceClient) Health(ctx context.Context, path string) (*http.Response, error) {
	if path == "" {
		path = defaultHealthcheckPath
	}
	resp, err := c.Get(ctx, path)
	if err != nil {
		healthErr := &InferenceError{Path: path, Message: "Health check failed", Cause: err}
		var inner *InferenceError
		if errors.As(err, &inner) {
			healthErr.StatusCode = inner.StatusCode
		}
		return nil, healthErr
	}
	return resp, nil
}

// Get sends a GET request to the deployment.
func (c *InferenceClient) Get(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.request(ctx, http.MethodGet, path, opts)
}

// Post sends a POST request to the deployment.
func (c *InferenceClient) Post(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.request(ctx, http.MethodPost, path, opts)
}

// Put sends a PUT request to the deployment.
func (c *InferenceClient) Put(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.request(ctx, http.MethodPut, path, opts)
}

// Delete sends a DELETE request to the deployment.
func (c *InferenceClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.request(ctx, http.MethodDelete, path, opts)
}

// Patch sends a PATCH request to the deployment.
func (c *InferenceClient) Patch(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.request(ctx, http.MethodPatch, path, opts)
}

// Head sends a HEAD request to the deployment.
func (c *InferenceClient) Head(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.request(ctx, http.MethodHead, path, opts)
}

// Options sends an OPTIONS request to the deployment.
func (c *InferenceClient) Options(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.request(ctx, http.MethodOptions, path, opts)
}

func (c *InferenceClient) buildURL(path string) string {
	return c.endpointBaseURL + "/" + strings.TrimLeft(path, "/")
}

// splitEndpoint splits the endpoint base URL at its last slash into the
// base domain and the deployment name.
func (c *InferenceClient) splitEndpoint() (baseDomain, deploymentName string) {
	i := strings.LastIndex(c.endpointBaseURL, "/")
	if i < 0 {
		return c.endpointBaseURL, ""
	}
	return c.endpointBaseURL[:i], c.endpointBaseURL[i+1:]
}

func (c *InferenceClient) send(ctx context.Context, req *InferenceRequest, extra map[string]string) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	opts := []RequestOption{WithHeaders(req.Headers), WithRequestTimeout(req.Timeout)}
	if req.Data != nil {
		opts = append(opts, WithJSONBody(req.Data))
	}
	if len(extra) > 0 {
		opts = append(opts, WithHeaders(extra))
	}
	o := applyRequestOptions(opts)
	o.stream = req.Stream
	return c.do(ctx, method, c.buildURL(req.Path), req.Path, o)
}

func (c *InferenceClient) request(ctx context.Context, method, path string, opts []RequestOption) (*http.Response, error) {
	return c.do(ctx, method, c.buildURL(path), path, applyRequestOptions(opts))
}

// do sends a request to an absolute URL. path is only used in error messages.
func (c *InferenceClient) do(ctx context.Context, method, rawURL, path string, o *requestOptions) (*http.Response, error) {
	body, err := o.encodeBody()
	if err != nil {
		return nil, &InferenceError{Path: path, Message: fmt.Sprintf("Request to %s failed", path), Cause: err}
	}

	timeout := c.timeout
	if o.timeout > 0 {
		timeout = o.timeout
	}
	var (
		reqCtx context.Context
		cancel context.CancelFunc
		stop   = func() {}
	)
	if o.stream {
		reqCtx, cancel, stop = withHeaderTimeout(ctx, timeout)
	} else {
		reqCtx, cancel = withTimeout(ctx, timeout)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		cancel()
		return nil, &InferenceError{Path: path, Message: fmt.Sprintf("Request to %s failed", path), Cause: err}
	}
	for k, v := range c.globalHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	if len(o.query) > 0 {
		req.URL.RawQuery = o.query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(context.Cause(reqCtx), context.DeadlineExceeded) {
			if !errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
			}
			return nil, &InferenceError{
				Path:    path,
				Message: fmt.Sprintf("Request to %s timed out after %s seconds", path, formatSeconds(timeout)),
				Cause:   err,
			}
		}
		return nil, &InferenceError{Path: path, Message: fmt.Sprintf("Request to %s failed", path), Cause: err}
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
		"stream": o.stream,
	}).Debug("inference request")

	if resp.StatusCode >= http.StatusBadRequest {
		defer cancel()
		return nil, &InferenceError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Request to %s failed", path),
			Cause:      inferenceFailureCause(resp),
		}
	}

	stop()
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// inferenceFailureCause prefers the API error body of a failed response and
// falls back to the status line.
func inferenceFailureCause(resp *http.Response) error {
	statusErr := fmt.Errorf("%s for url: %s", resp.Status, resp.Request.URL)
	err := newAPIError(resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return statusErr
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
