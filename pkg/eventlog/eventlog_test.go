package eventlog

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestIngestAssignsIDAndTimestamp(t *testing.T) {
	log := New()
	log.SetClock(fixedClock())

	ev, err := log.Ingest([]byte(`{"type":"response.create"}`), OriginLocal)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if ev.Timestamp != "10:30:00" {
		t.Errorf("Timestamp = %q, want 10:30:00", ev.Timestamp)
	}
	if ev.Origin != OriginLocal {
		t.Errorf("Origin = %v, want OriginLocal", ev.Origin)
	}
}

func TestIngestKeepsExistingIDAndTimestamp(t *testing.T) {
	log := New()
	raw := []byte(`{"type":"session.created","event_id":"event_abc","timestamp":"09:00:01"}`)
	ev, err := log.Ingest(raw, OriginRemote)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID != "event_abc" {
		t.Errorf("ID = %q, want event_abc", ev.ID)
	}
	if ev.Timestamp != "09:00:01" {
		t.Errorf("Timestamp = %q, want 09:00:01", ev.Timestamp)
	}
}

func TestIngestRejectsMalformed(t *testing.T) {
	log := New()
	if _, err := log.Ingest([]byte(`not json`), OriginRemote); err == nil {
		t.Error("expected error for malformed payload")
	}
	if _, err := log.Ingest([]byte(`{"event_id":"e1"}`), OriginRemote); err == nil {
		t.Error("expected error for event without type")
	}
	if log.Len() != 0 {
		t.Errorf("Len = %d, want 0 after rejected ingests", log.Len())
	}
}

func TestEventsMostRecentFirst(t *testing.T) {
	log := New()
	for i := 0; i < 3; i++ {
		raw := fmt.Appendf(nil, `{"type":"t%d","event_id":"e%d"}`, i, i)
		if _, err := log.Ingest(raw, OriginRemote); err != nil {
			t.Fatal(err)
		}
	}
	events := log.Events()
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	for i, want := range []string{"e2", "e1", "e0"} {
		if events[i].ID != want {
			t.Errorf("events[%d].ID = %q, want %q", i, events[i].ID, want)
		}
	}
}

func TestRenderCollapsesDeltas(t *testing.T) {
	log := New()
	// Interleave deltas with regular events; most-recent-first retention
	// means the first delta encountered during render is the newest one.
	msgs := []string{
		`{"type":"response.created","event_id":"e1"}`,
		`{"type":"response.audio_transcript.delta","event_id":"d1"}`,
		`{"type":"response.text.delta","event_id":"t1"}`,
		`{"type":"response.audio_transcript.delta","event_id":"d2"}`,
		`{"type":"response.audio_transcript.delta","event_id":"d3"}`,
		`{"type":"response.done","event_id":"e2"}`,
	}
	for _, m := range msgs {
		if _, err := log.Ingest([]byte(m), OriginRemote); err != nil {
			t.Fatal(err)
		}
	}

	got := log.Render()
	var ids []string
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	want := []string{"e2", "d3", "t1", "e1"}
	if len(ids) != len(want) {
		t.Fatalf("rendered ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("rendered[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	log := New()
	for i := 0; i < 5; i++ {
		raw := fmt.Appendf(nil, `{"type":"response.audio.delta","event_id":"d%d"}`, i)
		if _, err := log.Ingest(raw, OriginRemote); err != nil {
			t.Fatal(err)
		}
	}

	first := log.Render()
	second := log.Render()
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("render lengths = %d, %d, want 1, 1", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("renders differ: %q vs %q", first[0].ID, second[0].ID)
	}
	// The retained list keeps every delta.
	if log.Len() != 5 {
		t.Errorf("Len = %d, want 5", log.Len())
	}
}

func TestRenderSingleDeltaPerTypeRegardlessOfCount(t *testing.T) {
	for _, n := range []int{1, 2, 10, 100} {
		log := New()
		for i := 0; i < n; i++ {
			raw := fmt.Appendf(nil, `{"type":"response.text.delta","event_id":"d%d"}`, i)
			if _, err := log.Ingest(raw, OriginRemote); err != nil {
				t.Fatal(err)
			}
		}
		if got := len(log.Render()); got != 1 {
			t.Errorf("n=%d: rendered %d events, want 1", n, got)
		}
	}
}

func TestRecord(t *testing.T) {
	log := New()
	log.Record(Event{
		Type:      "conversation.item.create",
		ID:        "evt_local",
		Origin:    OriginLocal,
		Timestamp: "12:00:00",
		Payload:   json.RawMessage(`{"type":"conversation.item.create"}`),
	})
	events := log.Events()
	if len(events) != 1 || events[0].ID != "evt_local" {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestReset(t *testing.T) {
	log := New()
	if _, err := log.Ingest([]byte(`{"type":"x"}`), OriginRemote); err != nil {
		t.Fatal(err)
	}
	log.Reset()
	if log.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", log.Len())
	}
}

func TestOriginString(t *testing.T) {
	if OriginLocal.String() != "client" {
		t.Errorf("OriginLocal = %q, want client", OriginLocal.String())
	}
	if OriginRemote.String() != "server" {
		t.Errorf("OriginRemote = %q, want server", OriginRemote.String())
	}
}

func TestIsDelta(t *testing.T) {
	tests := []struct {
		typ  string
		want bool
	}{
		{"response.text.delta", true},
		{"response.audio_transcript.delta", true},
		{"delta", true},
		{"response.text.done", false},
		{"conversation.item.create", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := (Event{Type: tt.typ}).IsDelta(); got != tt.want {
			t.Errorf("IsDelta(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
