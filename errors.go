package verda

import (
	"errors"
	"fmt"
)

// Error codes returned by the Verda API in the "code" field of error bodies.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeUnauthorizedRequest = "unauthorized_request"
	ErrorCodeInsufficientFunds   = "insufficient_funds"
	ErrorCodeForbiddenAction     = "forbidden_action"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeServerError         = "server_error"
	ErrorCodeServiceUnavailable  = "service_unavailable"
)

// APIError represents an error response from the Verda API.
//
// It is only produced from a non-2xx response whose body is a JSON object.
// Code and Message hold the "code" and "message" keys of that object and are
// empty when the server omitted them.
//
//	_, err := client.Instances.Get(ctx, "")
//	var apiErr *verda.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == verda.ErrorCodeUnauthorizedRequest {
//	    // credentials were rejected
//	}
type APIError struct {
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("error code: %s\nmessage: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("message: %s", e.Message)
}

// IsNotFound returns true if the error is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.Code == ErrorCodeNotFound || e.StatusCode == 404
}

// ErrStreamResponse is returned by [InferenceResponse.Output] when the body
// could not be decoded and the response looks like a stream.
// Use [InferenceResponse.Stream] for such responses.
var ErrStreamResponse = errors.New("response is a stream, use Stream() instead")

// ErrInferenceClientNotInitialized is returned by deployment inference helpers
// when no inference client has been bound to the deployment.
var ErrInferenceClientNotInitialized = errors.New(
	"inference client not initialized: use SetInferenceClient or create the client with an inference key")

// InferenceError represents a failed call to an inference endpoint.
//
// Cause holds the underlying error: an [*APIError] when the endpoint returned
// a JSON error body, otherwise the transport error.
type InferenceError struct {
	Path       string
	StatusCode int
	Message    string
	Cause      error
}

func (e *InferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InferenceError) Unwrap() error {
	return e.Cause
}
