package verda

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-openapi/runtime"
)

// defaultChunkSize is the raw chunk size used by Stream when none is given.
const defaultChunkSize = 512

// Media types that mark a response as a stream.
var streamMediaTypes = map[string]struct{}{
	"text/event-stream":       {},
	"application/x-ndjson":    {},
	"application/stream+json": {},
}

// InferenceResponse is the response of a synchronous inference call.
//
// The body is owned by the response and can be consumed once, either
// buffered ([InferenceResponse.Output], [InferenceResponse.Text],
// [InferenceResponse.Decode]) or lazily ([InferenceResponse.Stream],
// [InferenceResponse.Events]). Buffered reads cache the body so they can be
// repeated; streaming after a buffered read replays the cached bytes, but a
// buffered read after streaming only sees what the stream left unread.
type InferenceResponse struct {
	Headers    http.Header
	StatusCode int
	StatusText string

	body       io.ReadCloser
	buffered   []byte
	isBuffered bool
	streamHint bool
}

func newInferenceResponse(resp *http.Response, stream bool) *InferenceResponse {
	r := &InferenceResponse{
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		StatusText: strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))),
		body:       resp.Body,
		streamHint: stream,
	}
	// net/http strips Transfer-Encoding from the header map.
	for _, te := range resp.TransferEncoding {
		if strings.EqualFold(te, "chunked") && r.Headers.Get("Transfer-Encoding") == "" {
			r.Headers = r.Headers.Clone()
			r.Headers.Set("Transfer-Encoding", "chunked")
		}
	}
	return r
}

// IsStreamResponse guesses whether the body is better consumed as a stream.
//
// The rules are checked in order and any match returns true: the Stream flag
// of the request; Transfer-Encoding: chunked; a Content-Type of
// text/event-stream, application/x-ndjson or application/stream+json; or
// Connection: keep-alive without a Content-Length header.
//
// This is a heuristic. A chunked JSON body is reported as a stream, and a
// stream sent with a Content-Length is not.
func (r *InferenceResponse) IsStreamResponse() bool {
	return isStreamResponse(r.Headers, r.streamHint)
}

func isStreamResponse(h http.Header, streamHint bool) bool {
	if streamHint {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(h.Get("Transfer-Encoding")), "chunked") {
		return true
	}
	if ct := h.Get(runtime.HeaderContentType); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			mediaType = strings.ToLower(strings.TrimSpace(ct))
		}
		if _, ok := streamMediaTypes[mediaType]; ok {
			return true
		}
	}
	if strings.EqualFold(strings.TrimSpace(h.Get("Connection")), "keep-alive") {
		if _, ok := h[http.CanonicalHeaderKey("Content-Length")]; !ok {
			return true
		}
	}
	return false
}

// Output returns the buffered body: a string when isText is set, otherwise
// the decoded JSON value (map[string]any, []any, json.Number, ...).
//
// When the body does not decode and the response looks like a stream,
// Output returns [ErrStreamResponse].
func (r *InferenceResponse) Output(isText bool) (any, error) {
	if isText {
		return r.Text()
	}
	var out any
	if err := r.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Text returns the buffered body as a string.
func (r *InferenceResponse) Text() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", r.streamError(err)
	}
	return string(b), nil
}

// Decode decodes the buffered JSON body into v.
func (r *InferenceResponse) Decode(v any) error {
	b, err := r.bytes()
	if err != nil {
		return r.streamError(err)
	}
	if err := runtime.JSONConsumer().Consume(bytes.NewReader(b), v); err != nil {
		return r.streamError(fmt.Errorf("decode inference response: %w", err))
	}
	return nil
}

// streamError reports a failed buffered read of a response that looks like a
// stream as ErrStreamResponse.
func (r *InferenceResponse) streamError(err error) error {
	if r.IsStreamResponse() {
		return fmt.Errorf("%w: %v", ErrStreamResponse, err)
	}
	return err
}

// Stream returns a forward-only iterator over the body.
//
// With asText the body is split into lines; otherwise into raw chunks of at
// most chunkSize bytes (512 when chunkSize <= 0). A raw chunk is returned as
// soon as data arrives. Empty chunks are skipped. The stream cannot be
// restarted and closing it closes the response.
//
// When the request set Stream, its timeout stopped at the response headers
// and only the request context limits how long the body may run. Otherwise
// the timeout keeps covering every read.
func (r *InferenceResponse) Stream(chunkSize int, asText bool) *ResponseStream {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return newResponseStream(r.reader(), r, chunkSize, asText)
}

// Events returns a Server-Sent Events iterator over the body.
func (r *InferenceResponse) Events() *EventStream {
	return newEventStream(r.reader(), r)
}

// Close releases the response body.
func (r *InferenceResponse) Close() error {
	if r.body == nil {
		return nil
	}
	return r.body.Close()
}

func (r *InferenceResponse) reader() io.Reader {
	if r.isBuffered {
		return bytes.NewReader(r.buffered)
	}
	if r.body == nil {
		return bytes.NewReader(nil)
	}
	return r.body
}

func (r *InferenceResponse) bytes() ([]byte, error) {
	if r.isBuffered {
		return r.buffered, nil
	}
	if r.body == nil {
		r.isBuffered = true
		return nil, nil
	}
	defer func() { _ = r.body.Close() }()
	b, err := io.ReadAll(r.body)
	if err != nil {
		return nil, fmt.Errorf("read inference response: %w", err)
	}
	r.buffered = b
	r.isBuffered = true
	return b, nil
}
