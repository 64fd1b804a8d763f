package console

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acolytehealth/rtconsole/pkg/conversation"
	"github.com/acolytehealth/rtconsole/pkg/eventlog"
	"github.com/acolytehealth/rtconsole/pkg/realtime"
)

type fakeSession struct {
	mu      sync.Mutex
	sent    []map[string]any
	events  chan *realtime.ServerEvent
	state   realtime.State
	closeCh chan struct{}
	once    sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events:  make(chan *realtime.ServerEvent, 16),
		state:   realtime.StateActive,
		closeCh: make(chan struct{}),
	}
}

func (f *fakeSession) UpdateSession(config *realtime.SessionConfig) error {
	return f.SendRaw(realtime.NewClientEvent(realtime.EventTypeSessionUpdate, map[string]any{"session": config}))
}

func (f *fakeSession) SendUserMessage(text string) error {
	return f.SendRaw(realtime.UserMessageEvent(text))
}

func (f *fakeSession) CreateResponse() error {
	return f.SendRaw(realtime.ResponseCreateEvent())
}

func (f *fakeSession) CancelResponse() error {
	return f.SendRaw(realtime.NewClientEvent(realtime.EventTypeResponseCancel, nil))
}

func (f *fakeSession) SendRaw(event map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeSession) Events() iter.Seq2[*realtime.ServerEvent, error] {
	return func(yield func(*realtime.ServerEvent, error) bool) {
		for {
			select {
			case <-f.closeCh:
				return
			case event, ok := <-f.events:
				if !ok {
					return
				}
				if !yield(event, nil) {
					return
				}
			}
		}
	}
}

func (f *fakeSession) State() realtime.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) SessionID() string { return "sess_fake" }

func (f *fakeSession) Close() error {
	f.once.Do(func() {
		close(f.closeCh)
		f.mu.Lock()
		f.state = realtime.StateIdle
		f.mu.Unlock()
	})
	return nil
}

func (f *fakeSession) sentEvents() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.sent...)
}

// mapFetcher returns a fixed context per exact input.
type mapFetcher struct {
	contexts map[string]string
	err      error
}

func (f *mapFetcher) Fetch(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.contexts[text], nil
}

func startedConsole(t *testing.T, fetcher ContextFetcher) (*Console, *fakeSession) {
	t.Helper()
	session := newFakeSession()
	c := New(func(context.Context) (realtime.Session, error) {
		return session, nil
	}, fetcher)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c, session
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartSeedsWelcome(t *testing.T) {
	c, _ := startedConsole(t, nil)
	defer c.Stop()

	messages := c.Messages()
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if messages[0].Role != conversation.RoleAssistant || messages[0].Content != conversation.WelcomeText {
		t.Errorf("welcome message = %+v", messages[0])
	}
	if c.State() != realtime.StateActive {
		t.Errorf("State = %v, want active", c.State())
	}
}

func TestSecondStartRejected(t *testing.T) {
	c, _ := startedConsole(t, nil)
	defer c.Stop()

	if err := c.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start = %v, want ErrSessionActive", err)
	}
}

func TestStartFailureLeavesIdle(t *testing.T) {
	connectErr := errors.New("capture denied")
	c := New(func(context.Context) (realtime.Session, error) {
		return nil, connectErr
	}, nil)

	if err := c.Start(context.Background()); !errors.Is(err, connectErr) {
		t.Fatalf("Start = %v, want connect error", err)
	}
	if c.State() != realtime.StateIdle {
		t.Errorf("State = %v, want idle", c.State())
	}
	if len(c.Messages()) != 0 {
		t.Errorf("messages = %v, want none", c.Messages())
	}
}

func TestSendTextAugmentsWireOnly(t *testing.T) {
	const question = "What is the AWP methodology?"
	const passages = "AWP stands for Advanced Work Packaging."
	fetcher := &mapFetcher{contexts: map[string]string{question: passages}}
	c, session := startedConsole(t, fetcher)
	defer c.Stop()

	if err := c.SendText(context.Background(), question); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	// Display shows exactly the typed text.
	messages := c.Messages()
	last := messages[len(messages)-1]
	if last.Role != conversation.RoleUser || last.Content != question {
		t.Errorf("displayed message = %+v, want exact typed text", last)
	}

	// Wire payload carries the context suffix.
	sent := session.sentEvents()
	if len(sent) != 2 {
		t.Fatalf("sent %d events, want message + response.create", len(sent))
	}
	item := sent[0]["item"].(map[string]any)
	content := item["content"].([]map[string]any)
	wireText := content[0]["text"].(string)
	want := question + "\n\nRelevant context: " + passages
	if wireText != want {
		t.Errorf("wire text = %q, want %q", wireText, want)
	}
	if sent[1]["type"] != realtime.EventTypeResponseCreate {
		t.Errorf("second event type = %v", sent[1]["type"])
	}
}

func TestSendTextEmptyContext(t *testing.T) {
	c, session := startedConsole(t, &mapFetcher{contexts: map[string]string{}})
	defer c.Stop()

	if err := c.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	item := session.sentEvents()[0]["item"].(map[string]any)
	content := item["content"].([]map[string]any)
	if got := content[0]["text"].(string); got != "hello" {
		t.Errorf("wire text = %q, want bare text when no context", got)
	}
}

func TestSendTextRetrievalFailureDegrades(t *testing.T) {
	c, session := startedConsole(t, &mapFetcher{err: errors.New("store down")})
	defer c.Stop()

	if err := c.SendText(context.Background(), "what is awp"); err != nil {
		t.Fatalf("SendText should not surface retrieval errors, got %v", err)
	}

	item := session.sentEvents()[0]["item"].(map[string]any)
	content := item["content"].([]map[string]any)
	if got := content[0]["text"].(string); got != "what is awp" {
		t.Errorf("wire text = %q, want bare text on retrieval failure", got)
	}
}

func TestPerMessageContextCorrelation(t *testing.T) {
	fetcher := &mapFetcher{contexts: map[string]string{
		"first question":  "first context",
		"second question": "second context",
	}}
	c, session := startedConsole(t, fetcher)
	defer c.Stop()

	c.SendText(context.Background(), "first question")
	c.SendText(context.Background(), "second question")

	sent := session.sentEvents()
	texts := make([]string, 0, 2)
	for _, event := range sent {
		if event["type"] != realtime.EventTypeConversationItemCreate {
			continue
		}
		item := event["item"].(map[string]any)
		content := item["content"].([]map[string]any)
		texts = append(texts, content[0]["text"].(string))
	}
	if len(texts) != 2 {
		t.Fatalf("got %d message payloads, want 2", len(texts))
	}
	if !strings.HasSuffix(texts[0], "first context") {
		t.Errorf("first payload %q carries wrong context", texts[0])
	}
	if !strings.HasSuffix(texts[1], "second context") {
		t.Errorf("second payload %q carries wrong context", texts[1])
	}
}

func TestSendTextWithoutSession(t *testing.T) {
	c := New(func(context.Context) (realtime.Session, error) {
		return newFakeSession(), nil
	}, nil)

	if err := c.SendText(context.Background(), "hello"); !errors.Is(err, ErrNoSession) {
		t.Errorf("SendText = %v, want ErrNoSession", err)
	}
}

func TestLocalEventsRecorded(t *testing.T) {
	c, _ := startedConsole(t, nil)
	defer c.Stop()

	c.SendText(context.Background(), "hi there")

	events := c.Events()
	if len(events) != 2 {
		t.Fatalf("log has %d events, want 2", len(events))
	}
	// Most recent first.
	if events[0].Type != realtime.EventTypeResponseCreate || events[1].Type != realtime.EventTypeConversationItemCreate {
		t.Errorf("event types = %q, %q", events[0].Type, events[1].Type)
	}
	for _, event := range events {
		if event.Origin != eventlog.OriginLocal {
			t.Errorf("event %q origin = %v, want local", event.Type, event.Origin)
		}
		if event.ID == "" || event.Timestamp == "" {
			t.Errorf("event %q not fully populated: %+v", event.Type, event)
		}
	}
}

func TestRemoteEventsFlowToLogAndThread(t *testing.T) {
	c, session := startedConsole(t, nil)
	defer c.Stop()

	reply, _ := json.Marshal(map[string]any{
		"type":     "conversation.item.create",
		"event_id": "item_ABC123",
		"item": map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": "Hello"},
				{"type": "audio", "transcript": "Hello there"},
				{"type": "text", "text": "there"},
			},
		},
	})
	session.events <- &realtime.ServerEvent{Type: "conversation.item.create", Raw: reply}

	waitFor(t, func() bool { return len(c.Messages()) == 2 })

	messages := c.Messages()
	if messages[1].Role != conversation.RoleAssistant || messages[1].Content != "Hello there" {
		t.Errorf("assistant message = %+v", messages[1])
	}

	events := c.Events()
	if len(events) != 1 {
		t.Fatalf("log has %d events, want 1", len(events))
	}
	if events[0].Origin != eventlog.OriginRemote {
		t.Errorf("origin = %v, want remote", events[0].Origin)
	}
}

func TestStopClearsEverything(t *testing.T) {
	c, session := startedConsole(t, nil)
	c.SendText(context.Background(), "hello")

	c.Stop()

	if c.State() != realtime.StateIdle {
		t.Errorf("State = %v, want idle", c.State())
	}
	if got := c.Messages(); len(got) != 0 {
		t.Errorf("messages after stop = %v, want none", got)
	}
	if got := c.Events(); len(got) != 0 {
		t.Errorf("events after stop = %v, want none", got)
	}
	if session.State() != realtime.StateIdle {
		t.Error("underlying session not closed")
	}

	// A second stop is a no-op.
	c.Stop()

	// A new session can start afterwards.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	c.Stop()
}

func TestStopClearsBufferedRemoteEvents(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, session := startedConsole(t, nil)

		// Park an assistant item in the session's buffer so the pump
		// can still yield it while the channel is mid-close.
		reply, _ := json.Marshal(map[string]any{
			"type": "conversation.item.create",
			"item": map[string]any{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{
					{"type": "text", "text": "late reply"},
				},
			},
		})
		session.events <- &realtime.ServerEvent{Type: "conversation.item.create", Raw: reply}

		c.Stop()

		if got := c.Events(); len(got) != 0 {
			t.Fatalf("iteration %d: %d events after Stop, want 0", i, len(got))
		}
		if got := c.Messages(); len(got) != 0 {
			t.Fatalf("iteration %d: %d messages after Stop, want 0", i, len(got))
		}
		if c.State() != realtime.StateIdle {
			t.Fatalf("iteration %d: State = %v, want idle", i, c.State())
		}
	}
}

func TestChannelCloseTearsDown(t *testing.T) {
	c, session := startedConsole(t, nil)

	close(session.events)

	waitFor(t, func() bool { return c.State() == realtime.StateIdle })
	if got := c.Messages(); len(got) != 0 {
		t.Errorf("messages after channel close = %v, want none", got)
	}
}
