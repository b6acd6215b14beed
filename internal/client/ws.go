package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// graphql-transport-ws message types.
const (
	wsConnectionInit = "connection_init"
	wsConnectionAck  = "connection_ack"
	wsPing           = "ping"
	wsPong           = "pong"
	wsSubscribe      = "subscribe"
	wsNext           = "next"
	wsError          = "error"
	wsComplete       = "complete"
)

// DefaultAckTimeout bounds the wait for connection_ack.
const DefaultAckTimeout = 10 * time.Second

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WS subscribes over the graphql-transport-ws protocol. Each subscription
// uses its own connection.
type WS struct {
	url        string
	tokens     TokenSource
	dialer     *websocket.Dialer
	AckTimeout time.Duration
}

// NewWS creates a websocket subscriber for url (ws:// or wss://).
func NewWS(url string, tokens TokenSource) *WS {
	return &WS{
		url:    url,
		tokens: tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultTimeout,
			Subprotocols:     []string{"graphql-transport-ws"},
		},
		AckTimeout: DefaultAckTimeout,
	}
}

// Subscribe opens a connection, completes the handshake and starts op.
func (w *WS) Subscribe(ctx context.Context, op Operation, vars map[string]any) (<-chan Event, error) {
	var token string
	if w.tokens != nil {
		token = w.tokens.Token()
	}
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			e := &Error{StatusCode: resp.StatusCode, Body: err.Error(), kind: classify(resp.StatusCode, nil)}
			w.invalidate(token, e)
			return nil, e
		}
		return nil, fmt.Errorf("%w: dialing %s: %w", ErrTransport, w.url, err)
	}

	if err := w.handshake(conn, token); err != nil {
		_ = conn.Close()
		return nil, err
	}

	id := uuid.NewString()
	payload, err := json.Marshal(request{Query: op.Document, OperationName: op.Name, Variables: vars})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	if err := conn.WriteJSON(wsMessage{ID: id, Type: wsSubscribe, Payload: payload}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: subscribing: %w", ErrTransport, err)
	}
	glog.V(1).Infof("ws: subscribed %s id=%s", op.Name, id)

	s := &wsStream{conn: conn, id: id, token: token, done: make(chan struct{})}
	events := make(chan Event, 16)
	go s.watch(ctx)
	go s.read(ctx, w, events)
	return events, nil
}

func (w *WS) handshake(conn *websocket.Conn, token string) error {
	init := map[string]string{}
	if token != "" {
		init["Authorization"] = token
	}
	payload, _ := json.Marshal(init)
	if err := conn.WriteJSON(wsMessage{Type: wsConnectionInit, Payload: payload}); err != nil {
		return fmt.Errorf("%w: connection_init: %w", ErrTransport, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(w.AckTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == 4403 {
				e := &Error{StatusCode: http.StatusForbidden, Body: ce.Text, kind: ErrUnauthorized}
				w.invalidate(token, e)
				return e
			}
			return fmt.Errorf("%w: awaiting connection_ack: %w", ErrTransport, err)
		}
		switch msg.Type {
		case wsConnectionAck:
			return nil
		case wsPing:
			if err := conn.WriteJSON(wsMessage{Type: wsPong}); err != nil {
				return fmt.Errorf("%w: pong: %w", ErrTransport, err)
			}
		}
	}
}

func (w *WS) invalidate(token string, e *Error) {
	if IsAuth(e) && w.tokens != nil && token != "" {
		w.tokens.Invalidate(token, e)
	}
}

// wsStream is one live subscription.
type wsStream struct {
	conn    *websocket.Conn
	id      string
	token   string
	writeMu sync.Mutex
	done    chan struct{}
}

func (s *wsStream) write(msg wsMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// watch sends complete and closes the connection when ctx ends, which
// unblocks read.
func (s *wsStream) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		_ = s.write(wsMessage{ID: s.id, Type: wsComplete})
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	case <-s.done:
	}
}

func (s *wsStream) read(ctx context.Context, w *WS, events chan<- Event) {
	defer close(events)
	defer func() { _ = s.conn.Close() }()
	defer close(s.done)

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				glog.Warningf("ws: connection error: %v", err)
				send(Event{Err: fmt.Errorf("%w: %w", ErrTransport, err)})
			}
			return
		}

		switch msg.Type {
		case wsPing:
			if err := s.write(wsMessage{Type: wsPong}); err != nil {
				return
			}
		case wsNext:
			if msg.ID != s.id {
				continue
			}
			var payload response
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				glog.Warningf("ws: discarding malformed payload: %v", err)
				continue
			}
			if len(payload.Errors) > 0 {
				e := &Error{StatusCode: http.StatusOK, Errors: payload.Errors, kind: classify(0, payload.Errors)}
				w.invalidate(s.token, e)
				send(Event{Err: e})
				return
			}
			if !send(Event{Data: payload.Data}) {
				return
			}
		case wsError:
			var gqlErrors []GraphQLError
			_ = json.Unmarshal(msg.Payload, &gqlErrors)
			e := &Error{StatusCode: http.StatusOK, Body: string(msg.Payload), Errors: gqlErrors, kind: classify(0, gqlErrors)}
			w.invalidate(s.token, e)
			send(Event{Err: e})
			return
		case wsComplete:
			if msg.ID == s.id {
				return
			}
		}
	}
}
