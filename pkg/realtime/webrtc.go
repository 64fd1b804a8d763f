package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"
)

// dataChannel is the subset of *webrtc.DataChannel the session uses for
// sending. Split out so the send path can be exercised in tests.
type dataChannel interface {
	ReadyState() webrtc.DataChannelState
	Send([]byte) error
	Close() error
}

// WebRTCSession is a WebRTC-based realtime session: one peer connection,
// one control-event data channel, and the local/remote audio tracks.
//
// At most one session should be active per console; the session owns its
// connection and channel exclusively.
type WebRTCSession struct {
	pc          *webrtc.PeerConnection
	dc          dataChannel
	config      *ConnectConfig
	client      *Client
	sessionID   string
	state       State
	closeCh     chan struct{}
	openCh      chan struct{}
	openOnce    sync.Once
	eventsCh    chan eventOrError
	closeOnce   sync.Once
	mu          sync.Mutex
	remoteTrack *webrtc.TrackRemote
	localTrack  *webrtc.TrackLocalStaticSample
}

// NewMicrophoneTrack creates a local Opus audio track suitable for
// feeding captured microphone samples into a session.
func NewMicrophoneTrack() (*webrtc.TrackLocalStaticSample, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}, "audio", "microphone")
	if err != nil {
		return nil, fmt.Errorf("realtime: create microphone track: %w", err)
	}
	return track, nil
}

// connectWebRTC establishes a WebRTC connection. Any failure tears down
// everything built so far and returns the caller to idle.
func (c *Client) connectWebRTC(ctx context.Context, config *ConnectConfig) (*WebRTCSession, error) {
	if config == nil {
		config = &ConnectConfig{}
	}
	if config.Model == "" {
		config.Model = ModelGPT4oRealtimePreview20241217
	}
	if config.Voice == "" {
		config.Voice = VoiceVerse
	}

	// Step 1: obtain the short-lived credential.
	credential, err := c.fetchCredential(ctx, config.Model, config.Voice)
	if err != nil {
		return nil, fmt.Errorf("realtime: fetch credential: %w", err)
	}

	// Step 2: create the peer connection.
	peerConnection, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: create peer connection: %w", err)
	}

	session := &WebRTCSession{
		pc:       peerConnection,
		config:   config,
		client:   c,
		state:    StateNegotiating,
		closeCh:  make(chan struct{}),
		openCh:   make(chan struct{}),
		eventsCh: make(chan eventOrError, 100),
	}

	// Step 3: attach local audio capture. A capture failure aborts the
	// start; no partial session is retained.
	mic, err := NewMicrophoneTrack()
	if err != nil {
		peerConnection.Close()
		return nil, err
	}
	if _, err := peerConnection.AddTrack(mic); err != nil {
		peerConnection.Close()
		return nil, fmt.Errorf("realtime: attach local audio: %w", err)
	}
	session.localTrack = mic

	// Remote audio arrives on its own transceiver.
	if _, err := peerConnection.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		peerConnection.Close()
		return nil, fmt.Errorf("realtime: add audio transceiver: %w", err)
	}

	// Step 4: create the control-event data channel.
	channel, err := peerConnection.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		peerConnection.Close()
		return nil, fmt.Errorf("realtime: create data channel: %w", err)
	}
	session.dc = channel

	channel.OnOpen(func() {
		slog.Debug("data channel opened")
		session.openOnce.Do(func() { close(session.openCh) })
	})
	channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		session.handleMessage(msg.Data)
	})
	channel.OnClose(func() {
		slog.Debug("data channel closed")
		session.mu.Lock()
		session.state = StateIdle
		session.mu.Unlock()
		close(session.eventsCh)
	})

	peerConnection.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		slog.Debug("received remote track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			session.mu.Lock()
			session.remoteTrack = track
			session.mu.Unlock()
		}
	})

	// Step 5: create and apply the local description.
	offer, err := peerConnection.CreateOffer(nil)
	if err != nil {
		peerConnection.Close()
		return nil, fmt.Errorf("realtime: create offer: %w", err)
	}
	if err := peerConnection.SetLocalDescription(offer); err != nil {
		peerConnection.Close()
		return nil, fmt.Errorf("realtime: set local description: %w", err)
	}

	// Wait for ICE gathering so the offer carries all candidates.
	<-webrtc.GatheringCompletePromise(peerConnection)

	// Step 6: exchange SDP with the negotiation endpoint.
	answer, err := c.sendOffer(ctx, credential, config.Model, peerConnection.LocalDescription().SDP)
	if err != nil {
		peerConnection.Close()
		return nil, fmt.Errorf("realtime: send offer: %w", err)
	}

	if err := peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		peerConnection.Close()
		return nil, fmt.Errorf("realtime: set remote description: %w", err)
	}

	session.mu.Lock()
	session.state = StateActive
	session.mu.Unlock()

	return session, nil
}

// handleMessage processes one inbound data-channel message.
func (s *WebRTCSession) handleMessage(data []byte) {
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		msg := string(data)
		if len(msg) > 1000 {
			msg = msg[:1000] + "..."
		}
		slog.Debug("received message", "len", len(data), "content", msg)
	}

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

func (s *WebRTCSession) deliver(item eventOrError) {
	select {
	case <-s.closeCh:
	case s.eventsCh <- item:
	}
}

// UpdateSession sends a session.update event.
func (s *WebRTCSession) UpdateSession(config *SessionConfig) error {
	return s.sendEvent(NewClientEvent(EventTypeSessionUpdate, map[string]any{
		"session": config,
	}))
}

// SendUserMessage adds a user text message to the conversation.
func (s *WebRTCSession) SendUserMessage(text string) error {
	return s.sendEvent(UserMessageEvent(text))
}

// CreateResponse requests the model to generate a response.
func (s *WebRTCSession) CreateResponse() error {
	return s.sendEvent(ResponseCreateEvent())
}

// CancelResponse cancels the current response generation.
func (s *WebRTCSession) CancelResponse() error {
	return s.sendEvent(NewClientEvent(EventTypeResponseCancel, nil))
}

// SendRaw transmits a pre-built event.
func (s *WebRTCSession) SendRaw(event map[string]any) error {
	return s.sendEvent(event)
}

// Events returns an iterator over server events.
func (s *WebRTCSession) Events() iter.Seq2[*ServerEvent, error] {
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

// Opened returns a channel closed once the data channel reports open.
func (s *WebRTCSession) Opened() <-chan struct{} {
	return s.openCh
}

// State reports the current lifecycle phase.
func (s *WebRTCSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the server-assigned session ID.
func (s *WebRTCSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// AudioTrack returns the remote audio track, or nil if none has been
// received yet.
func (s *WebRTCSession) AudioTrack() *webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteTrack
}

// LocalAudioTrack returns the attached microphone track.
func (s *WebRTCSession) LocalAudioTrack() *webrtc.TrackLocalStaticSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localTrack
}

// Close stops the session: the channel and connection are closed and the
// state returns to idle. Safe to call more than once.
func (s *WebRTCSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		if s.dc != nil {
			s.dc.Close()
		}
		if s.pc != nil {
			err = s.pc.Close()
		}
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	})
	return err
}

// sendEvent transmits a JSON event through the data channel. Events are
// only sent while the channel is open; otherwise they are dropped with a
// diagnostic and ErrChannelNotOpen — never queued.
func (s *WebRTCSession) sendEvent(event map[string]any) error {
	if s.dc == nil || s.dc.ReadyState() != webrtc.DataChannelStateOpen {
		state := "none"
		if s.dc != nil {
			state = s.dc.ReadyState().String()
		}
		slog.Warn("dropping event, data channel not open", "type", event["type"], "channel_state", state)
		return ErrChannelNotOpen
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		if b, err := json.MarshalIndent(event, "", "  "); err == nil {
			str := string(b)
			if len(str) > 500 {
				str = str[:500] + "..."
			}
			slog.Debug("sending event", "content", str)
		}
	}

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.dc.Send(b)
}

// Ensure WebRTCSession implements Session interface.
var _ Session = (*WebRTCSession)(nil)
