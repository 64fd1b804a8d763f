// Package conversation derives a simplified user/assistant message list
// from the realtime event stream, for chat-style rendering.
//
// Only a subset of events produce messages: locally sent user turns and
// remotely created assistant conversation items. Messages are append
// only; the list resets when the session stops.
package conversation

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// WelcomeText is the synthetic assistant message shown when the data
// channel opens.
const WelcomeText = "Welcome to the Realtime Console! I'm ready to assist you."

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn. Messages are never edited or
// removed once appended.
type Message struct {
	ID      string
	Role    Role
	Content string
}

// Thread is the ordered message list for one session.
// It is safe for concurrent use.
type Thread struct {
	mu       sync.Mutex
	messages []Message
}

// New creates an empty thread.
func New() *Thread {
	return &Thread{}
}

// Open initializes the thread for a freshly opened data channel: any
// prior messages are discarded and the assistant welcome is appended.
func (t *Thread) Open() {
	t.mu.Lock()
	t.messages = []Message{{
		ID:      uuid.NewString(),
		Role:    RoleAssistant,
		Content: WelcomeText,
	}}
	t.mu.Unlock()
}

// AppendUser appends one user turn showing the given display text. The
// display text is what the user typed, not the context-augmented wire
// payload.
func (t *Thread) AppendUser(text string) Message {
	msg := Message{ID: uuid.NewString(), Role: RoleUser, Content: text}
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	return msg
}

// itemEnvelope is the subset of conversation.item.create payloads the
// thread extracts messages from.
type itemEnvelope struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Item    *struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"item"`
}

// IngestRemote examines a remote wire payload and appends an assistant
// message when the event is a conversation item authored by the
// assistant. Text-typed content fragments are space-joined. Returns the
// appended message and true, or false when the event produced none.
func (t *Thread) IngestRemote(raw []byte) (Message, bool) {
	var env itemEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, false
	}
	if env.Type != "conversation.item.create" || env.Item == nil || env.Item.Role != string(RoleAssistant) {
		return Message{}, false
	}

	var parts []string
	for _, c := range env.Item.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}

	msg := Message{
		ID:      env.EventID,
		Role:    RoleAssistant,
		Content: strings.Join(parts, " "),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	return msg, true
}

// Messages returns a snapshot of the thread in append order.
func (t *Thread) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

// Reset discards all messages. Called on session stop.
func (t *Thread) Reset() {
	t.mu.Lock()
	t.messages = nil
	t.mu.Unlock()
}
