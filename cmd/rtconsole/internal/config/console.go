package config

// Service names used by the rtconsole commands. Each maps to one YAML
// file in a context directory.
const (
	ServiceConsole   = "console"
	ServiceRetrieval = "retrieval"
	ServiceGateway   = "gateway"
)

// Console configures the chat command.
type Console struct {
	// APIKey authorizes credential issuance and session negotiation.
	APIKey string `yaml:"api_key"`

	// Model is the realtime model ID. Empty selects the default.
	Model string `yaml:"model"`

	// Voice selects the audio output voice. Empty selects the default.
	Voice string `yaml:"voice"`

	// Transport is "webrtc" (default) or "websocket".
	Transport string `yaml:"transport"`

	// Instructions is an optional system prompt applied after connect.
	Instructions string `yaml:"instructions"`
}

// Retrieval configures the context retrieval backend.
type Retrieval struct {
	// APIKey authorizes embedding requests. Falls back to the console
	// key when empty.
	APIKey string `yaml:"api_key"`

	// EmbedModel is the embedding model ID. Empty selects the default.
	EmbedModel string `yaml:"embed_model"`

	// DatabaseURL is the Postgres connection string for the passage
	// store. Empty selects the in-memory store.
	DatabaseURL string `yaml:"database_url"`

	// Table is the passage table name. Empty selects the default.
	Table string `yaml:"table"`
}

// Gateway configures the serve command.
type Gateway struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080".
	Addr string `yaml:"addr"`

	// APIKey is the server-held secret for credential issuance.
	APIKey string `yaml:"api_key"`
}
