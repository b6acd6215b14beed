package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"
)

const (
	// MaxSSELineSize is the maximum size of a single SSE line (64KB).
	// Lines exceeding this will cause the connection to close.
	MaxSSELineSize = 64 * 1024

	// MaxSSEEventSize is the maximum total size of an SSE event's data (1MB).
	// Events exceeding this will be discarded.
	MaxSSEEventSize = 1024 * 1024
)

// Event is one push delivery. Data holds the payload's "data" object; Err is
// set on the final event of a stream that ended with an error.
type Event struct {
	Data json.RawMessage
	Err  error
}

// Subscriber opens push streams. The returned channel is closed when the
// stream ends or ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, op Operation, vars map[string]any) (<-chan Event, error)
}

// sseFrame is a raw Server-Sent Event.
type sseFrame struct {
	Type string
	Data string
}

// SSE subscribes over graphql-sse (distinct connections mode).
type SSE struct {
	endpoint   string
	tokens     TokenSource
	httpClient *http.Client
}

// NewSSE creates a graphql-sse subscriber for endpoint.
func NewSSE(endpoint string, tokens TokenSource) *SSE {
	return &SSE{
		endpoint:   endpoint,
		tokens:     tokens,
		httpClient: &http.Client{
			// No timeout - SSE connections are long-lived
		},
	}
}

// Subscribe starts op as a server-sent event stream.
func (s *SSE) Subscribe(ctx context.Context, op Operation, vars map[string]any) (<-chan Event, error) {
	body, err := json.Marshal(request{Query: op.Document, OperationName: op.Name, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	var token string
	if s.tokens != nil {
		token = s.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to SSE: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		e := &Error{StatusCode: resp.StatusCode, Body: string(text), kind: classify(resp.StatusCode, nil)}
		s.invalidate(token, e)
		return nil, e
	}

	frames := make(chan sseFrame, 100)
	go readFrames(ctx, resp.Body, frames)

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		for f := range frames {
			ev, done := s.decode(token, f)
			if ev != nil {
				select {
				case events <- *ev:
				case <-ctx.Done():
					drain(frames)
					return
				}
			}
			if done {
				drain(frames)
				return
			}
		}
	}()
	return events, nil
}

// decode turns a graphql-sse frame into an Event. done is true when the
// stream is finished.
func (s *SSE) decode(token string, f sseFrame) (ev *Event, done bool) {
	switch f.Type {
	case "complete":
		return nil, true
	case "next", "message":
		var payload response
		if err := json.Unmarshal([]byte(f.Data), &payload); err != nil {
			glog.Warningf("sse: discarding malformed payload: %v", err)
			return nil, false
		}
		if len(payload.Errors) > 0 {
			e := &Error{StatusCode: http.StatusOK, Errors: payload.Errors, kind: classify(0, payload.Errors)}
			s.invalidate(token, e)
			return &Event{Err: e}, true
		}
		return &Event{Data: payload.Data}, false
	}
	return nil, false
}

func (s *SSE) invalidate(token string, e *Error) {
	if IsAuth(e) && s.tokens != nil && token != "" {
		s.tokens.Invalidate(token, e)
	}
}

func drain[T any](ch <-chan T) {
	go func() {
		for range ch {
		}
	}()
}

// readFrames reads SSE frames from body until EOF or cancellation.
func readFrames(ctx context.Context, body io.ReadCloser, frames chan<- sseFrame) {
	defer close(frames)
	defer func() { _ = body.Close() }()

	// Use Scanner with explicit buffer limit to prevent memory DoS
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, MaxSSELineSize), MaxSSELineSize)

	var frame sseFrame
	var data strings.Builder
	var lines int
	var oversized bool

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				glog.Warningf("sse: connection error: %v", err)
			}
			return
		}

		line := scanner.Text()

		// Empty line signals end of frame
		if line == "" {
			if lines > 0 && !oversized {
				frame.Data = data.String()
				if frame.Type == "" {
					frame.Type = "message"
				}
				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}
			}
			frame = sseFrame{}
			data.Reset()
			lines = 0
			oversized = false
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.Type = value
		case "data":
			if oversized {
				continue
			}
			size := data.Len() + len(value)
			if lines > 0 {
				size++
			}
			if size > MaxSSEEventSize {
				glog.Warningf("sse: discarding oversized event (%d bytes, limit %d)", size, MaxSSEEventSize)
				oversized = true
				data.Reset()
				continue
			}
			if lines > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			lines++
		}
	}
}
