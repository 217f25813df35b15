package verda

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxEventSize limits the maximum size of a single SSE event or text line to
// prevent memory exhaustion from streams that never send a delimiter.
const maxEventSize = 10 * 1024 * 1024 // 10MB

// ResponseStream is a forward-only iterator over an inference response body.
//
// Use [InferenceResponse.Stream] to create one, then iterate:
//
//	stream := resp.Stream(512, true)
//	defer stream.Close()
//
//	for stream.Next() {
//	    fmt.Println(stream.Text())
//	}
//
//	if err := stream.Err(); err != nil {
//	    log.Fatal(err)
//	}
//
// A stream cannot be restarted: once consumed the underlying connection is
// exhausted.
type ResponseStream struct {
	reader    *bufio.Reader
	closer    io.Closer
	chunkSize int
	asText    bool
	current   []byte
	err       error
	closed    bool
}

func newResponseStream(r io.Reader, closer io.Closer, chunkSize int, asText bool) *ResponseStream {
	return &ResponseStream{
		reader:    bufio.NewReaderSize(r, chunkSize),
		closer:    closer,
		chunkSize: chunkSize,
		asText:    asText,
	}
}

// Next advances to the next non-empty chunk.
//
// Returns false when the stream is exhausted, closed, or an error occurred.
// Call [ResponseStream.Err] to check for errors.
func (s *ResponseStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	for {
		chunk, err := s.readChunk()
		if len(chunk) > 0 {
			s.current = chunk
			if err != nil && !errors.Is(err, io.EOF) {
				s.err = err
			}
			return true
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return false
		}
	}
}

// Text returns the current chunk as a string. In text mode the trailing
// line terminator is removed.
func (s *ResponseStream) Text() string {
	return string(s.current)
}

// Bytes returns the current chunk. The slice is only valid until the next call to Next.
func (s *ResponseStream) Bytes() []byte {
	return s.current
}

// Err returns the first error encountered while reading, if any.
func (s *ResponseStream) Err() error {
	return s.err
}

// Close closes the stream and the underlying response. Close is safe to call
// multiple times.
func (s *ResponseStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *ResponseStream) readChunk() ([]byte, error) {
	if !s.asText {
		// A single read returns whatever has arrived, up to chunkSize bytes.
		buf := make([]byte, s.chunkSize)
		n, err := s.reader.Read(buf)
		return buf[:n], err
	}

	var line []byte
	for {
		frag, err := s.reader.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > maxEventSize {
			return nil, fmt.Errorf("line exceeds maximum size of %d bytes", maxEventSize)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line = trimLineEnding(line)
		return line, err
	}
}

func trimLineEnding(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

// StreamEvent represents a single event from a Server-Sent Events stream.
type StreamEvent struct {
	// Type is the event type (from "event:" line).
	Type string

	// Data is the event payload (from "data:" lines, joined by newlines).
	Data string

	// ID is the event ID (from "id:" line), if provided.
	ID string
}

// EventStream iterates over the Server-Sent Events of an inference response.
//
//	events := resp.Events()
//	defer events.Close()
//
//	for events.Next() {
//	    fmt.Print(events.Event().Data)
//	}
type EventStream struct {
	reader  *bufio.Reader
	closer  io.Closer
	current *StreamEvent
	err     error
	closed  bool
}

func newEventStream(r io.Reader, closer io.Closer) *EventStream {
	return &EventStream{
		reader: bufio.NewReader(r),
		closer: closer,
	}
}

// Next advances to the next event.
func (s *EventStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}

	event, err := s.readEvent()
	if err != nil {
		if err != io.EOF {
			s.err = err
		}
		return false
	}

	s.current = event
	return true
}

// Event returns the current event.
func (s *EventStream) Event() *StreamEvent {
	return s.current
}

// Err returns any error that occurred during streaming.
func (s *EventStream) Err() error {
	return s.err
}

// Close closes the stream and releases the response. Safe to call multiple times.
func (s *EventStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// readEvent reads the next SSE event from the stream.
func (s *EventStream) readEvent() (*StreamEvent, error) {
	event := &StreamEvent{}
	hasData := false
	totalSize := 0

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF && hasData {
				return event, nil
			}
			return nil, err
		}

		totalSize += len(line)
		if totalSize > maxEventSize {
			return nil, fmt.Errorf("event exceeds maximum size of %d bytes", maxEventSize)
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		// Empty line marks end of event
		if line == "" {
			if hasData {
				return event, nil
			}
			if err == io.EOF {
				return nil, err
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "data:"):
			data := fieldValue(line, "data:")
			if hasData {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
			hasData = true
		case strings.HasPrefix(line, "event:"):
			event.Type = fieldValue(line, "event:")
		case strings.HasPrefix(line, "id:"):
			event.ID = fieldValue(line, "id:")
		}
		// "retry:" and comment lines are ignored: there is no reconnection.

		if err == io.EOF {
			if hasData {
				return event, nil
			}
			return nil, err
		}
	}
}

func fieldValue(line, prefix string) string {
	v := strings.TrimPrefix(line, prefix)
	return strings.TrimPrefix(v, " ")
}
