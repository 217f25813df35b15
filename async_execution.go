package verda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/runtime"
	"github.com/sirupsen/logrus"
)

// AsyncStatus is the lifecycle state of an asynchronous inference.
type AsyncStatus int

const (
	AsyncStatusInitialized AsyncStatus = iota
	AsyncStatusQueue
	AsyncStatusInference
	AsyncStatusCompleted
)

var asyncStatusNames = map[AsyncStatus]string{
	AsyncStatusInitialized: "Initialized",
	AsyncStatusQueue:       "Queue",
	AsyncStatusInference:   "Inference",
	AsyncStatusCompleted:   "Completed",
}

// String returns the status name.
func (s AsyncStatus) String() string {
	if name, ok := asyncStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("AsyncStatus(%d)", int(s))
}

// parseAsyncStatus accepts the numeric forms the status endpoint returns as
// well as a status name.
func parseAsyncStatus(v any) (AsyncStatus, error) {
	switch s := v.(type) {
	case json.Number:
		n, err := s.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid status %q", s)
		}
		return checkAsyncStatus(int(n))
	case float64:
		return checkAsyncStatus(int(s))
	case int:
		return checkAsyncStatus(s)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return checkAsyncStatus(n)
		}
		for status, name := range asyncStatusNames {
			if strings.EqualFold(name, s) {
				return status, nil
			}
		}
		return 0, fmt.Errorf("unknown status %q", s)
	default:
		return 0, fmt.Errorf("unexpected status type %T", v)
	}
}

func checkAsyncStatus(n int) (AsyncStatus, error) {
	s := AsyncStatus(n)
	if _, ok := asyncStatusNames[s]; !ok {
		return 0, fmt.Errorf("unknown status %d", n)
	}
	return s, nil
}

// AsyncInferenceExecution is a handle on an inference submitted with
// [InferenceClient.Run]. The cached status only changes when
// [AsyncInferenceExecution.StatusJSON] is called.
type AsyncInferenceExecution struct {
	// ID is the execution id returned by the server.
	ID string

	client *InferenceClient
	status AsyncStatus
}

func newAsyncInferenceExecution(c *InferenceClient, id string) *AsyncInferenceExecution {
	return &AsyncInferenceExecution{
		ID:     id,
		client: c,
		status: AsyncStatusInitialized,
	}
}

// Status returns the last known status without calling the server.
func (e *AsyncInferenceExecution) Status() AsyncStatus {
	return e.status
}

// StatusJSON fetches the current status of the execution, updates the cached
// status and returns the full payload.
func (e *AsyncInferenceExecution) StatusJSON(ctx context.Context) (map[string]any, error) {
	resp, err := e.get(ctx, "status")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload map[string]any
	if err := runtime.JSONConsumer().Consume(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	raw, ok := payload["Status"]
	if !ok {
		return nil, fmt.Errorf("decode status response: missing Status")
	}
	status, err := parseAsyncStatus(raw)
	if err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	if status != e.status {
		e.client.logger.WithFields(logrus.Fields{
			"inference_id": e.ID,
			"from":         e.status.String(),
			"to":           status.String(),
		}).Debug("async inference status changed")
	}
	e.status = status
	return payload, nil
}

// Result fetches the output of the execution. A JSON response is decoded;
// any other body is returned as {"result": text}. The status is not checked
// first, so calling Result before completion returns whatever the server sends.
func (e *AsyncInferenceExecution) Result(ctx context.Context) (map[string]any, error) {
	resp, err := e.get(ctx, "result")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if mediaType, _, err := runtime.ContentType(resp.Header); err == nil && mediaType == runtime.JSONMime {
		var out map[string]any
		if err := runtime.JSONConsumer().Consume(resp.Body, &out); err != nil {
			return nil, fmt.Errorf("decode result response: %w", err)
		}
		return out, nil
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read result response: %w", err)
	}
	return map[string]any{"result": string(b)}, nil
}

// Output is an alias of [AsyncInferenceExecution.Result].
func (e *AsyncInferenceExecution) Output(ctx context.Context) (map[string]any, error) {
	return e.Result(ctx)
}

// Wait polls the status every interval until the execution completes or ctx
// is done. The first polling error is returned as is.
func (e *AsyncInferenceExecution) Wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.StatusJSON(ctx); err != nil {
			return err
		}
		if e.status == AsyncStatusCompleted {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// get calls {baseDomain}/{kind}/{deploymentName} with the execution id header.
func (e *AsyncInferenceExecution) get(ctx context.Context, kind string) (*http.Response, error) {
	baseDomain, deploymentName := e.client.splitEndpoint()
	path := "/" + kind + "/" + deploymentName
	o := applyRequestOptions([]RequestOption{WithHeader(headerInferenceID, e.ID)})
	return e.client.do(ctx, http.MethodGet, baseDomain+path, path, o)
}
