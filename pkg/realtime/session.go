package realtime

import "iter"

// Session is the common interface for realtime sessions. Both the
// WebRTC and WebSocket transports satisfy it.
type Session interface {
	// UpdateSession sends a session.update event with new parameters.
	UpdateSession(config *SessionConfig) error

	// SendUserMessage adds a user text message to the conversation.
	SendUserMessage(text string) error

	// CreateResponse requests the model to generate a response.
	CreateResponse() error

	// CancelResponse cancels the current response generation.
	CancelResponse() error

	// SendRaw transmits a pre-built event. The event must already carry
	// its event_id and timestamp; see [NewClientEvent].
	SendRaw(event map[string]any) error

	// Events returns an iterator over server events. The iterator ends
	// when the session closes or after yielding an error.
	Events() iter.Seq2[*ServerEvent, error]

	// State reports the current lifecycle phase.
	State() State

	// SessionID returns the server-assigned session ID, or "" before
	// session.created arrives.
	SessionID() string

	// Close tears the session down and returns it to idle.
	Close() error
}

// eventOrError is the internal fan-in item for the event stream.
type eventOrError struct {
	event *ServerEvent
	err   error
}
