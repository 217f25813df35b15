package verda

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-openapi/runtime"
)

// maxErrorBodySize limits the size of error response bodies read from the server.
const maxErrorBodySize = 64 * 1024

// RequestOption configures a single request made through [HTTPClient] or
// the generic verbs of [InferenceClient].
type RequestOption func(*requestOptions)

type requestOptions struct {
	body    any
	rawBody []byte
	query   url.Values
	headers map[string]string
	timeout time.Duration
	stream  bool
}

// WithJSONBody sets a value to be encoded as the JSON request body.
func WithJSONBody(v any) RequestOption {
	return func(o *requestOptions) {
		o.body = v
	}
}

// WithRawBody sets the request body verbatim.
func WithRawBody(b []byte) RequestOption {
	return func(o *requestOptions) {
		o.rawBody = b
	}
}

// WithQuery sets the query string parameters.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		o.query = q
	}
}

// WithHeader sets a single request header, overriding the default.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// WithHeaders sets several request headers, overriding the defaults.
func WithHeaders(headers map[string]string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

// WithRequestTimeout overrides the client timeout for one request.
// The timeout covers reading the response body, except for streamed
// inference requests where it only bounds the wait for the headers.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

func applyRequestOptions(opts []RequestOption) *requestOptions {
	o := &requestOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// encodeBody returns the request body reader, or http.NoBody.
func (o *requestOptions) encodeBody() (io.Reader, error) {
	if o.rawBody != nil {
		return bytes.NewReader(o.rawBody), nil
	}
	if o.body == nil {
		return http.NoBody, nil
	}
	var buf bytes.Buffer
	if err := runtime.JSONProducer().Produce(&buf, o.body); err != nil {
		return nil, err
	}
	return &buf, nil
}

// withTimeout derives a request context bounded by d. A zero or negative d
// leaves the parent untouched.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// withHeaderTimeout bounds only the wait for response headers. Calling stop
// once the headers are in leaves the body read limited by ctx alone.
// A timeout cancels the context with cause context.DeadlineExceeded.
func withHeaderTimeout(ctx context.Context, d time.Duration) (reqCtx context.Context, cancel, stop func()) {
	if d <= 0 {
		return ctx, func() {}, func() {}
	}
	c, cancelCause := context.WithCancelCause(ctx)
	timer := time.AfterFunc(d, func() { cancelCause(context.DeadlineExceeded) })
	cancel = func() {
		timer.Stop()
		cancelCause(context.Canceled)
	}
	return c, cancel, func() { timer.Stop() }
}

// cancelOnClose releases a request context once the response body is closed,
// so a per-request timeout keeps covering body reads after the call returns.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// readErrorBody reads at most maxErrorBodySize bytes of an error response and closes it.
func readErrorBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
}

// isOK mirrors the transport's notion of success: any status below 400.
func isOK(status int) bool {
	return status >= 200 && status < 400
}

// decodeResponse decodes a JSON response body into v and closes it.
func decodeResponse(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()
	if err := runtime.JSONConsumer().Consume(resp.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readText returns a response body as trimmed text and closes it. Create
// endpoints answer with the bare id of the new resource, sometimes quoted.
func readText(resp *http.Response) (string, error) {
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return strings.Trim(strings.TrimSpace(string(b)), `"`), nil
}

// discardResponse closes a response whose body carries nothing useful.
func discardResponse(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
