package verda

import (
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API base URL. It must not end with a slash.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithInferenceKey sets the inference key used to call deployment endpoints.
func WithInferenceKey(key string) Option {
	return func(c *Client) {
		c.inferenceKey = key
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// InferenceOption configures an InferenceClient.
type InferenceOption func(*InferenceClient)

// WithInferenceTimeout sets the default timeout of inference requests.
func WithInferenceTimeout(d time.Duration) InferenceOption {
	return func(c *InferenceClient) {
		c.timeout = d
	}
}

// WithInferenceHTTPClient sets a custom HTTP client for inference requests.
func WithInferenceHTTPClient(httpClient *http.Client) InferenceOption {
	return func(c *InferenceClient) {
		c.httpClient = httpClient
	}
}

// WithInferenceLogger sets the logger of an InferenceClient.
func WithInferenceLogger(logger logrus.FieldLogger) InferenceOption {
	return func(c *InferenceClient) {
		c.logger = logger
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
