// Package realtime provides the client for the hosted realtime
// speech-to-speech service.
//
// A session carries audio over a WebRTC peer connection and JSON control
// events over its data channel. A WebSocket transport with the same
// event API is available for deployments that cannot run ICE.
//
// # Connecting
//
//	client := realtime.NewClient(apiKey)
//	session, err := client.ConnectWebRTC(ctx, &realtime.ConnectConfig{
//	    Model: realtime.ModelGPT4oRealtimePreview20241217,
//	    Voice: realtime.VoiceVerse,
//	})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
// Connecting fetches a short-lived credential from the session-issuance
// endpoint, exchanges an SDP offer/answer with the negotiation endpoint,
// and opens the "oai-events" data channel. Any failure along the way
// returns the session manager to idle with no partial state.
//
// # Sending and receiving events
//
// Outbound events are fully populated (event_id, timestamp) before
// transmission. Sends are only valid while the data channel is open;
// attempts outside that state are dropped with a diagnostic and
// [ErrChannelNotOpen] — never queued or retried.
//
//	for event, err := range session.Events() {
//	    if err != nil {
//	        return err
//	    }
//	    switch event.Type {
//	    case realtime.EventTypeResponseTextDelta:
//	        fmt.Print(event.Delta)
//	    }
//	}
package realtime
