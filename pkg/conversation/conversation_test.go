package conversation

import "testing"

func TestOpenSeedsWelcome(t *testing.T) {
	th := New()
	th.AppendUser("stale")
	th.Open()

	msgs := th.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1", len(msgs))
	}
	if msgs[0].Role != RoleAssistant || msgs[0].Content != WelcomeText {
		t.Errorf("unexpected welcome message: %+v", msgs[0])
	}
	if msgs[0].ID == "" {
		t.Error("welcome message has no ID")
	}
}

func TestAppendUserShowsDisplayText(t *testing.T) {
	th := New()
	th.Open()
	msg := th.AppendUser("What is the AWP methodology?")

	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want user", msg.Role)
	}
	if msg.Content != "What is the AWP methodology?" {
		t.Errorf("Content = %q", msg.Content)
	}
	msgs := th.Messages()
	if len(msgs) != 2 || msgs[1].ID != msg.ID {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestIngestRemoteAssistantItem(t *testing.T) {
	th := New()
	raw := []byte(`{
		"type": "conversation.item.create",
		"event_id": "event_1",
		"item": {
			"role": "assistant",
			"content": [
				{"type": "text", "text": "Hello"},
				{"type": "audio", "audio": "deadbeef"},
				{"type": "text", "text": "there"}
			]
		}
	}`)

	msg, ok := th.IngestRemote(raw)
	if !ok {
		t.Fatal("expected message")
	}
	if msg.Content != "Hello there" {
		t.Errorf("Content = %q, want %q", msg.Content, "Hello there")
	}
	if msg.ID != "event_1" {
		t.Errorf("ID = %q, want event_1", msg.ID)
	}
	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want assistant", msg.Role)
	}
}

func TestIngestRemoteIgnoresNonAssistantEvents(t *testing.T) {
	th := New()
	cases := []string{
		`{"type":"response.text.delta","delta":"x"}`,
		`{"type":"conversation.item.create","item":{"role":"user","content":[{"type":"text","text":"hi"}]}}`,
		`{"type":"conversation.item.create"}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, ok := th.IngestRemote([]byte(raw)); ok {
			t.Errorf("IngestRemote(%q) produced a message", raw)
		}
	}
	if len(th.Messages()) != 0 {
		t.Errorf("messages = %v, want none", th.Messages())
	}
}

func TestReset(t *testing.T) {
	th := New()
	th.Open()
	th.AppendUser("hi")
	th.Reset()
	if got := th.Messages(); len(got) != 0 {
		t.Errorf("messages after Reset = %v, want none", got)
	}
}
