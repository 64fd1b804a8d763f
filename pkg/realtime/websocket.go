package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketSession carries the realtime event protocol over a WebSocket.
// It is transport-only: no media tracks are negotiated, which makes it
// the right choice for text-only consoles and for tests.
type WebSocketSession struct {
	conn      *websocket.Conn
	config    *ConnectConfig
	sessionID string
	state     State
	closeCh   chan struct{}
	eventsCh  chan eventOrError
	closeOnce sync.Once
	mu        sync.Mutex
	writeMu   sync.Mutex
}

// connectWebSocket dials the realtime WebSocket endpoint.
func (c *Client) connectWebSocket(ctx context.Context, config *ConnectConfig) (*WebSocketSession, error) {
	if config == nil {
		config = &ConnectConfig{}
	}
	if config.Model == "" {
		config.Model = ModelGPT4oRealtimePreview20241217
	}

	url := fmt.Sprintf("%s?model=%s", c.config.wsURL, config.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.config.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "websocket_dial_failed",
				Message:    fmt.Sprintf("failed to dial realtime endpoint: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("realtime: dial websocket: %w", err)
	}

	session := &WebSocketSession{
		conn:     conn,
		config:   config,
		state:    StateActive,
		closeCh:  make(chan struct{}),
		eventsCh: make(chan eventOrError, 100),
	}
	go session.readLoop()
	return session, nil
}

// readLoop pumps inbound messages until the connection closes.
func (s *WebSocketSession) readLoop() {
	defer close(s.eventsCh)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
			default:
				s.deliver(eventOrError{err: fmt.Errorf("realtime: read message: %w", err)})
			}
			s.mu.Lock()
			s.state = StateIdle
			s.mu.Unlock()
			return
		}
		s.handleMessage(data)
	}
}

func (s *WebSocketSession) handleMessage(data []byte) {
	event, err := parseServerEvent(data)
	if err != nil {
		s.deliver(eventOrError{err: err})
		return
	}

	if event.Type == EventTypeSessionCreated && event.Session != nil {
		s.mu.Lock()
		s.sessionID = event.Session.ID
		s.mu.Unlock()
	}

	if event.Type == EventTypeError && event.EventErr != nil {
		s.deliver(eventOrError{err: event.EventErr.ToError()})
		return
	}

	s.deliver(eventOrError{event: event})
}

func (s *WebSocketSession) deliver(item eventOrError) {
	select {
	case <-s.closeCh:
	case s.eventsCh <- item:
	}
}

// UpdateSession sends a session.update event.
func (s *WebSocketSession) UpdateSession(config *SessionConfig) error {
	return s.sendEvent(NewClientEvent(EventTypeSessionUpdate, map[string]any{
		"session": config,
	}))
}

// SendUserMessage adds a user text message to the conversation.
func (s *WebSocketSession) SendUserMessage(text string) error {
	return s.sendEvent(UserMessageEvent(text))
}

// CreateResponse requests the model to generate a response.
func (s *WebSocketSession) CreateResponse() error {
	return s.sendEvent(ResponseCreateEvent())
}

// CancelResponse cancels the current response generation.
func (s *WebSocketSession) CancelResponse() error {
	return s.sendEvent(NewClientEvent(EventTypeResponseCancel, nil))
}

// SendRaw transmits a pre-built event.
func (s *WebSocketSession) SendRaw(event map[string]any) error {
	return s.sendEvent(event)
}

// Events returns an iterator over server events.
func (s *WebSocketSession) Events() iter.Seq2[*ServerEvent, error] {
	return func(yield func(*ServerEvent, error) bool) {
		for {
			select {
			case <-s.closeCh:
				return
			case item, ok := <-s.eventsCh:
				if !ok {
					return
				}
				if !yield(item.event, item.err) {
					return
				}
				if item.err != nil {
					return
				}
			}
		}
	}
}

// State reports the current lifecycle phase.
func (s *WebSocketSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the server-assigned session ID.
func (s *WebSocketSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Close terminates the session. Safe to call more than once.
func (s *WebSocketSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.writeMu.Lock()
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	})
	return err
}

func (s *WebSocketSession) sendEvent(event map[string]any) error {
	select {
	case <-s.closeCh:
		slog.Warn("dropping event, websocket closed", "type", event["type"])
		return ErrChannelNotOpen
	default:
	}

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

var _ Session = (*WebSocketSession)(nil)
