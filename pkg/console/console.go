// Package console ties the realtime session, the event log, and the
// conversation thread together. It enforces the single-active-session
// rule and binds each outgoing message to its own retrieval result.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/acolytehealth/rtconsole/pkg/conversation"
	"github.com/acolytehealth/rtconsole/pkg/eventlog"
	"github.com/acolytehealth/rtconsole/pkg/realtime"
)

// contextPrefix joins the display text and the retrieved passages in
// the wire payload. The display copy never carries it.
const contextPrefix = "\n\nRelevant context: "

// ErrSessionActive is returned by Start while a session is already live.
var ErrSessionActive = errors.New("console: session already active")

// ErrNoSession is returned by SendText when no session has been started.
var ErrNoSession = errors.New("console: no active session")

// ContextFetcher resolves retrieval context for one utterance.
type ContextFetcher interface {
	Fetch(ctx context.Context, text string) (string, error)
}

// ConnectFunc establishes a realtime session.
type ConnectFunc func(ctx context.Context) (realtime.Session, error)

// Console orchestrates one conversation at a time.
type Console struct {
	connect ConnectFunc
	fetcher ContextFetcher
	log     *eventlog.Log
	thread  *conversation.Thread

	mu      sync.Mutex
	session realtime.Session
	pumpWG  sync.WaitGroup
}

// New creates a console. fetcher may be nil, in which case no context is
// attached to outgoing messages.
func New(connect ConnectFunc, fetcher ContextFetcher) *Console {
	return &Console{
		connect: connect,
		fetcher: fetcher,
		log:     eventlog.New(),
		thread:  conversation.New(),
	}
}

// Start establishes a session. Only one session may be active; a second
// Start while one is live fails without touching the existing session.
// Any connect failure leaves the console idle with no partial state.
func (c *Console) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.mu.Unlock()

	session, err := c.connect(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		session.Close()
		return ErrSessionActive
	}
	c.session = session
	c.mu.Unlock()

	c.thread.Open()

	c.pumpWG.Add(1)
	go c.pump(session)
	return nil
}

// pump feeds remote events into the log and the conversation until the
// session's stream ends, then tears the console down. The pump owns the
// final state reset: a closing session can still yield buffered events,
// so clearing must happen after the stream has fully drained, never
// concurrently with it.
func (c *Console) pump(session realtime.Session) {
	defer c.pumpWG.Done()
	for event, err := range session.Events() {
		if err != nil {
			slog.Error("session error", "error", err)
			break
		}
		if _, err := c.log.Ingest(event.Raw, eventlog.OriginRemote); err != nil {
			slog.Warn("dropping unparseable event", "error", err)
			continue
		}
		c.thread.IngestRemote(event.Raw)
	}

	stale := c.detach(session)
	session.Close()
	if !stale {
		c.thread.Reset()
		c.log.Reset()
	}
}

// detach removes the session from the console if it is still the active
// one. It reports true when a different session has already taken its
// place, in which case the caller must not touch shared state.
func (c *Console) detach(session realtime.Session) (stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == session {
		c.session = nil
		return false
	}
	return c.session != nil
}

// SendText sends one user message. The displayed message carries exactly
// the typed text; the wire payload additionally carries the retrieval
// context when the fetch succeeds with a non-empty result. Each call
// performs its own retrieval, so a slow fetch can never attach its
// result to a later message.
func (c *Console) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return ErrNoSession
	}

	c.thread.AppendUser(text)

	wire := text
	if c.fetcher != nil {
		retrieved, err := c.fetcher.Fetch(ctx, text)
		if err != nil {
			// Retrieval is best effort and never blocks the message.
			slog.Warn("context retrieval failed", "error", err)
		} else if retrieved != "" {
			wire = text + contextPrefix + retrieved
		}
	}

	message := realtime.UserMessageEvent(wire)
	c.recordLocal(message)
	if err := session.SendRaw(message); err != nil {
		return err
	}

	response := realtime.ResponseCreateEvent()
	c.recordLocal(response)
	return session.SendRaw(response)
}

// recordLocal appends an outbound event to the log with a local origin
// tag. The event is already fully populated, so the recorded copy and
// the wire payload are identical.
func (c *Console) recordLocal(event map[string]any) {
	raw, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to record event", "error", err)
		return
	}
	if _, err := c.log.Ingest(raw, eventlog.OriginLocal); err != nil {
		slog.Warn("failed to record event", "error", err)
	}
}

// UpdateSession sends new session parameters over the active session.
func (c *Console) UpdateSession(config *realtime.SessionConfig) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return ErrNoSession
	}
	return session.UpdateSession(config)
}

// Stop closes the active session and clears the conversation state.
// It returns only after the event pump has drained, so a data channel
// caught mid-close cannot resurrect messages or log entries. Stopping
// an idle console is a no-op.
func (c *Console) Stop() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return
	}
	c.detach(session)
	session.Close()
	c.pumpWG.Wait()
}

// State reports the lifecycle phase of the active session, or idle.
func (c *Console) State() realtime.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return realtime.StateIdle
	}
	return c.session.State()
}

// Messages returns the conversation messages, oldest first.
func (c *Console) Messages() []conversation.Message {
	return c.thread.Messages()
}

// Events returns the retained event list, most recent first.
func (c *Console) Events() []eventlog.Event {
	return c.log.Events()
}

// RenderLog returns the display event list with delta types collapsed.
func (c *Console) RenderLog() []eventlog.Event {
	return c.log.Render()
}
