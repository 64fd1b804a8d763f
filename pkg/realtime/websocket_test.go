package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketSession(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan map[string]any, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("OpenAI-Beta"); got != "realtime=v1" {
			t.Errorf("OpenAI-Beta = %q", got)
		}
		if got := r.URL.Query().Get("model"); got != ModelGPT4oRealtimePreview20241217 {
			t.Errorf("model = %q", got)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"session.created","session":{"id":"sess_ws"}}`))

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var event map[string]any
		json.Unmarshal(data, &event)
		received <- event

		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"response.text.done","text":"done"}`))
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient("sk-test", WithWebSocketURL(wsURL))

	session, err := client.ConnectWebSocket(context.Background(), nil)
	if err != nil {
		t.Fatalf("ConnectWebSocket: %v", err)
	}
	defer session.Close()

	if session.State() != StateActive {
		t.Errorf("State = %v, want active", session.State())
	}

	var types []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event, err := range session.Events() {
			if err != nil {
				return
			}
			types = append(types, event.Type)
			if event.Type == EventTypeSessionCreated {
				if err := session.SendUserMessage("hello"); err != nil {
					t.Errorf("SendUserMessage: %v", err)
				}
			}
			if len(types) == 2 {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	if len(types) != 2 || types[0] != EventTypeSessionCreated {
		t.Fatalf("event types = %v", types)
	}
	if session.SessionID() != "sess_ws" {
		t.Errorf("SessionID = %q, want sess_ws", session.SessionID())
	}

	select {
	case event := <-received:
		if event["type"] != EventTypeConversationItemCreate {
			t.Errorf("server received type %v", event["type"])
		}
		if event["event_id"] == nil || event["timestamp"] == nil {
			t.Error("transmitted event must be fully populated")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the user message")
	}
}

func TestWebSocketSendAfterClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient("sk-test", WithWebSocketURL(wsURL))

	session, err := client.ConnectWebSocket(context.Background(), nil)
	if err != nil {
		t.Fatalf("ConnectWebSocket: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := session.SendUserMessage("late"); err != ErrChannelNotOpen {
		t.Errorf("err = %v, want ErrChannelNotOpen", err)
	}
	if session.State() != StateIdle {
		t.Errorf("State = %v, want idle", session.State())
	}
}
