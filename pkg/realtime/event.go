package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Client event types (sent from client to server).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
	EventTypeResponseCancel         = "response.cancel"
)

// Server event types (sent from server to client).
const (
	EventTypeError = "error"

	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeConversationItemCreated = "conversation.item.created"

	EventTypeResponseCreated = "response.created"
	EventTypeResponseDone    = "response.done"

	EventTypeResponseTextDelta = "response.text.delta"
	EventTypeResponseTextDone  = "response.text.done"

	EventTypeResponseAudioDelta = "response.audio.delta"
	EventTypeResponseAudioDone  = "response.audio.done"

	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"
)

// NewEventID generates a unique client event identifier.
func NewEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// NewClientEvent builds a fully populated outbound event: the type,
// a fresh event_id, and a display timestamp are all assigned before the
// event is transmitted or recorded anywhere. Existing event_id and
// timestamp fields are preserved.
func NewClientEvent(eventType string, fields map[string]any) map[string]any {
	event := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		event[k] = v
	}
	event["type"] = eventType
	if _, ok := event["event_id"]; !ok {
		event["event_id"] = NewEventID()
	}
	if _, ok := event["timestamp"]; !ok {
		event["timestamp"] = time.Now().Format("15:04:05")
	}
	return event
}

// UserMessageEvent builds a conversation.item.create event carrying one
// user text message.
func UserMessageEvent(text string) map[string]any {
	return NewClientEvent(EventTypeConversationItemCreate, map[string]any{
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// ResponseCreateEvent builds a response.create event asking the model to
// generate a reply.
func ResponseCreateEvent() map[string]any {
	return NewClientEvent(EventTypeResponseCreate, nil)
}

// ServerEvent represents an event received from the realtime service.
type ServerEvent struct {
	// Type is the event type.
	Type string `json:"type"`

	// EventID is the unique identifier for this event.
	EventID string `json:"event_id,omitzero"`

	// Session contains session information (for session.created,
	// session.updated).
	Session *SessionResource `json:"session,omitzero"`

	// Item contains the conversation item (for conversation.item.* events).
	Item *ConversationItem `json:"item,omitzero"`

	// ItemID is the ID of the item (for various events).
	ItemID string `json:"item_id,omitzero"`

	// ResponseID is the response identifier.
	ResponseID string `json:"response_id,omitzero"`

	// Delta contains incremental text (for *.delta events).
	Delta string `json:"delta,omitzero"`

	// Transcript is the transcription text.
	Transcript string `json:"transcript,omitzero"`

	// EventErr contains error info for error events.
	EventErr *EventError `json:"error,omitzero"`

	// Raw contains the original JSON message.
	Raw []byte `json:"-"`
}

// SessionResource describes the server-side session.
type SessionResource struct {
	ID    string `json:"id"`
	Model string `json:"model,omitzero"`
	Voice string `json:"voice,omitzero"`
}

// ConversationItem is one item in the conversation.
type ConversationItem struct {
	ID      string        `json:"id,omitzero"`
	Type    string        `json:"type,omitzero"`
	Role    string        `json:"role,omitzero"`
	Content []ContentPart `json:"content,omitzero"`
}

// ContentPart is one content fragment of a conversation item.
type ContentPart struct {
	Type       string `json:"type,omitzero"`
	Text       string `json:"text,omitzero"`
	Transcript string `json:"transcript,omitzero"`
}

// parseServerEvent parses a raw JSON message into a ServerEvent.
func parseServerEvent(message []byte) (*ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, &Error{Code: "parse_error", Message: err.Error()}
	}
	event.Raw = message
	return &event, nil
}
