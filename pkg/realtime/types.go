package realtime

// Models supported by the realtime service.
const (
	// ModelGPT4oRealtimePreview is the GPT-4o realtime preview model.
	ModelGPT4oRealtimePreview = "gpt-4o-realtime-preview"
	// ModelGPT4oRealtimePreview20241217 is the pinned version the
	// console connects with.
	ModelGPT4oRealtimePreview20241217 = "gpt-4o-realtime-preview-2024-12-17"
)

// Voice options for audio output.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// DataChannelLabel is the label of the control-event data channel.
const DataChannelLabel = "oai-events"

// ConnectConfig contains configuration for establishing a session.
type ConnectConfig struct {
	// Model is the model ID to use.
	// Default: gpt-4o-realtime-preview-2024-12-17
	Model string `json:"model,omitzero"`

	// Voice is the voice ID for audio output, used when the credential
	// is issued. Default: verse
	Voice string `json:"voice,omitzero"`
}

// SessionConfig contains parameters for a session.update event.
type SessionConfig struct {
	// Modalities specifies the output modalities.
	Modalities []string `json:"modalities,omitzero"`

	// Instructions is the system prompt.
	Instructions string `json:"instructions,omitzero"`

	// Voice is the voice ID for audio output.
	Voice string `json:"voice,omitzero"`

	// Temperature controls randomness (0.6-1.2).
	Temperature *float64 `json:"temperature,omitzero"`
}

// State is the lifecycle phase of a session.
type State int

const (
	// StateIdle means no connection exists. Sessions return here after
	// any negotiation failure or stop; no partial state is retained.
	StateIdle State = iota

	// StateNegotiating covers credential fetch, local capture
	// attachment, and the SDP offer/answer exchange.
	StateNegotiating

	// StateActive means the remote description has been applied and the
	// session is live.
	StateActive
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}
