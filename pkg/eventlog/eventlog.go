// Package eventlog retains the JSON control events exchanged over a
// realtime data channel and prepares them for display.
//
// Every event is recorded exactly once, fully populated, at ingestion
// time: a missing event_id is assigned, a display timestamp is attached,
// and the origin (local or remote) is carried as an explicit field
// rather than inferred from identifier conventions.
//
// The retained list is most-recent-first. [Log.Render] produces the
// display view: incremental "*delta" events are collapsed so that only
// the first event of each delta type appears per pass. Collapsing is
// recomputed on every call and never mutates the retained list, so
// rendering is idempotent.
package eventlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// deltaSuffix marks incremental partial-update event types
// (e.g. "response.audio_transcript.delta").
const deltaSuffix = "delta"

// Origin identifies which side of the data channel produced an event.
type Origin int

const (
	// OriginLocal marks events constructed and sent by this client.
	OriginLocal Origin = iota

	// OriginRemote marks events received from the realtime service.
	OriginRemote
)

// String returns "client" or "server", matching the log display labels.
func (o Origin) String() string {
	if o == OriginLocal {
		return "client"
	}
	return "server"
}

// Event is one immutable record of a control message. All fields are
// populated before the event enters the log.
type Event struct {
	// Type is the wire event type (e.g. "conversation.item.create").
	Type string

	// ID is the unique event identifier. Assigned at ingestion when the
	// wire payload carries none.
	ID string

	// Origin tags the event as locally or remotely originated.
	Origin Origin

	// Timestamp is the display timestamp (wall-clock time of ingestion,
	// or the payload's own timestamp when present).
	Timestamp string

	// Payload is the raw JSON as it crossed the wire.
	Payload json.RawMessage
}

// IsDelta reports whether the event is an incremental partial update,
// distinguished by the "*delta" type naming convention.
func (e Event) IsDelta() bool {
	return len(e.Type) >= len(deltaSuffix) &&
		e.Type[len(e.Type)-len(deltaSuffix):] == deltaSuffix
}

// envelope is the subset of the wire payload the log cares about.
type envelope struct {
	Type      string `json:"type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
}

// Log accumulates events in most-recent-first order.
// It is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	events []Event

	// now is the clock used for display timestamps.
	now func() time.Time
}

// New creates an empty event log.
func New() *Log {
	return &Log{now: time.Now}
}

// SetClock overrides the timestamp clock. Intended for tests.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Ingest parses a raw wire message, fills in any missing identifier and
// timestamp, tags it with the given origin, and prepends it to the log.
// The populated event is returned so callers can correlate it.
func (l *Log) Ingest(raw []byte, origin Origin) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("eventlog: parse event: %w", err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("eventlog: event has no type")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		Type:      env.Type,
		ID:        env.EventID,
		Origin:    origin,
		Timestamp: env.Timestamp,
		Payload:   append(json.RawMessage(nil), raw...),
	}
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	if ev.Timestamp == "" {
		ev.Timestamp = l.now().Format("15:04:05")
	}

	l.events = append([]Event{ev}, l.events...)
	return ev, nil
}

// Record prepends an already-populated event to the log. The event must
// carry a non-empty type and identifier; use [Log.Ingest] for raw wire
// payloads.
func (l *Log) Record(ev Event) {
	l.mu.Lock()
	l.events = append([]Event{ev}, l.events...)
	l.mu.Unlock()
}

// Events returns a snapshot of all retained events, most recent first.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Render returns the display view of the log: all retained events, most
// recent first, with at most one representative per delta event type.
// The first event of a delta type encountered in the pass is kept and
// later ones are omitted. The retained list is not modified, so calling
// Render twice without new ingests yields identical output.
func (l *Log) Render() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool)
	out := make([]Event, 0, len(l.events))
	for _, ev := range l.events {
		if ev.IsDelta() {
			if seen[ev.Type] {
				continue
			}
			seen[ev.Type] = true
		}
		out = append(out, ev)
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Reset discards all retained events.
func (l *Log) Reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

// NewEventID generates a unique event identifier.
func NewEventID() string {
	return "evt_" + uuid.New().String()[:12]
}
