package verda

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-openapi/runtime"
	"github.com/sirupsen/logrus"
)

// HTTPClient sends authenticated requests to the Verda API.
//
// Before every request it makes sure the access token is fresh: an expired
// token is refreshed, and if the refresh fails for any reason the client
// re-authenticates once with its credentials. If that fails too the error is
// returned. Requests are never retried after they were sent.
//
// Responses with a status of 400 or above are returned as [*APIError].
// Successful responses are returned as-is and the caller must close the body.
//
// HTTPClient shares the token of its [AuthenticationService] and is not safe
// for concurrent use without external synchronization.
type HTTPClient struct {
	baseURL    string
	auth       *AuthenticationService
	httpClient *http.Client
	timeout    time.Duration
	logger     logrus.FieldLogger
}

// NewHTTPClient creates an HTTP client for baseURL authenticated by auth.
// It does not authenticate; see [Client] for the eager variant.
func NewHTTPClient(auth *AuthenticationService, baseURL string, httpClient *http.Client, timeout time.Duration) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		baseURL:    baseURL,
		auth:       auth,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     discardLogger(),
	}
}

// BaseURL returns the API base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Get sends a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, opts)
}

// Post sends a POST request.
func (c *HTTPClient) Post(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, opts)
}

// Put sends a PUT request.
func (c *HTTPClient) Put(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, path, opts)
}

// Patch sends a PATCH request.
func (c *HTTPClient) Patch(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.do(ctx, http.MethodPatch, path, opts)
}

// Delete sends a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, opts)
}

// userAgent returns the User-Agent sent with API requests.
func (c *HTTPClient) userAgent() string {
	return fmt.Sprintf("verda-go-v%s-%s", Version, clientFingerprint(c.auth.ClientID()))
}

func (c *HTTPClient) headers(overrides map[string]string) http.Header {
	h := make(http.Header)
	h.Set(runtime.HeaderAuthorization, "Bearer "+c.auth.Token().AccessToken)
	h.Set("User-Agent", c.userAgent())
	h.Set(runtime.HeaderContentType, runtime.JSONMime)
	for k, v := range overrides {
		h.Set(k, v)
	}
	return h
}

// ensureFreshToken refreshes an expired token, falling back to a single
// re-authentication when the refresh fails.
func (c *HTTPClient) ensureFreshToken(ctx context.Context) error {
	if !c.auth.IsExpired() {
		return nil
	}
	if _, err := c.auth.Refresh(ctx); err != nil {
		c.logger.WithError(err).Debug("token refresh failed, re-authenticating")
		if _, err := c.auth.Authenticate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, opts []RequestOption) (*http.Response, error) {
	o := applyRequestOptions(opts)

	body, err := o.encodeBody()
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	if err := c.ensureFreshToken(ctx); err != nil {
		return nil, err
	}

	timeout := c.timeout
	if o.timeout > 0 {
		timeout = o.timeout
	}
	reqCtx, cancel := withTimeout(ctx, timeout)

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = c.headers(o.headers)
	if len(o.query) > 0 {
		req.URL.RawQuery = o.query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("api request")

	if !isOK(resp.StatusCode) {
		defer cancel()
		return nil, newAPIError(resp)
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}
