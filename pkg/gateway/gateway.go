// Package gateway implements the console's internal HTTP endpoints: the
// session token passthrough and the context retrieval query. It holds
// the server-side secret so the realtime credential can be issued
// without exposing the key to the page.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/acolytehealth/rtconsole/pkg/realtime"
)

// ContextFetcher resolves retrieval context for one utterance. It is
// satisfied by *retrieval.Bridge.
type ContextFetcher interface {
	Fetch(ctx context.Context, text string) (string, error)
}

// Personas accepted by the voice-query endpoint. Anything else is
// downgraded to PersonaGeneral rather than rejected.
const (
	PersonaGeneral  = "general"
	PersonaRoleplay = "roleplay"
)

// Server handles the internal API endpoints.
type Server struct {
	apiKey      string
	realtimeURL string
	modelsURL   string
	model       string
	voice       string
	httpClient  *http.Client
	fetcher     ContextFetcher
}

// Option configures the Server.
type Option func(*Server)

// WithRealtimeURL overrides the realtime service base URL.
func WithRealtimeURL(url string) Option {
	return func(s *Server) { s.realtimeURL = url }
}

// WithModelsURL overrides the model-listing URL used for key validation.
func WithModelsURL(url string) Option {
	return func(s *Server) { s.modelsURL = url }
}

// WithModel sets the model requested on credential issuance.
func WithModel(model string) Option {
	return func(s *Server) { s.model = model }
}

// WithVoice sets the voice requested on credential issuance.
func WithVoice(voice string) Option {
	return func(s *Server) { s.voice = voice }
}

// WithHTTPClient sets a custom HTTP client for upstream calls.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Server) { s.httpClient = client }
}

// WithContextFetcher sets the retrieval backend for /api/voice-query.
func WithContextFetcher(fetcher ContextFetcher) Option {
	return func(s *Server) { s.fetcher = fetcher }
}

// NewServer creates a gateway server. apiKey is the server-held secret;
// an empty value is allowed at construction and reported per request.
func NewServer(apiKey string, opts ...Option) *Server {
	s := &Server{
		apiKey:      apiKey,
		realtimeURL: realtime.DefaultHTTPURL,
		modelsURL:   "https://api.openai.com/v1/models",
		model:       realtime.ModelGPT4oRealtimePreview20241217,
		voice:       realtime.VoiceVerse,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", s.handleToken)
	mux.HandleFunc("/api/voice-query", s.handleVoiceQuery)
	return mux
}

// errorEnvelope is the JSON error shape of the token endpoint.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeErrorEnvelope(w http.ResponseWriter, status int, message, errType string) {
	var env errorEnvelope
	env.Error.Message = message
	env.Error.Type = errType
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// handleToken issues a short-lived realtime credential using the
// server-held secret. The upstream response passes through untouched,
// success or failure.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The secret is checked before any upstream call is attempted.
	if s.apiKey == "" {
		writeErrorEnvelope(w, http.StatusInternalServerError,
			"API key not configured", "configuration_error")
		return
	}

	reqBody, err := json.Marshal(map[string]string{
		"model": s.model,
		"voice": s.voice,
	})
	if err != nil {
		writeErrorEnvelope(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost,
		s.realtimeURL+"/sessions", bytes.NewReader(reqBody))
	if err != nil {
		writeErrorEnvelope(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("token issuance failed", "error", err)
		writeErrorEnvelope(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to reach realtime service: %v", err), "upstream_error")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeErrorEnvelope(w, http.StatusInternalServerError, err.Error(), "upstream_error")
		return
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("upstream rejected token request", "status", resp.StatusCode)
		writeErrorEnvelope(w, http.StatusInternalServerError,
			fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, string(body)), "upstream_error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// voiceQueryRequest is the /api/voice-query request body.
type voiceQueryRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	UserID       string `json:"userId"`
	Persona      string `json:"persona"`
	SystemPrompt string `json:"systemPrompt"`
	APIKey       string `json:"apiKey"`
}

// handleVoiceQuery resolves retrieval context for the most recent user
// message in the request.
func (s *Server) handleVoiceQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req voiceQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeQueryError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Unknown personas downgrade rather than fail.
	persona := req.Persona
	if persona != PersonaGeneral && persona != PersonaRoleplay {
		slog.Warn("unknown persona, using default", "persona", persona)
		persona = PersonaGeneral
	}

	text := lastUserMessage(req)
	if text == "" {
		writeQueryError(w, http.StatusBadRequest, "no user message in request")
		return
	}

	if s.fetcher == nil {
		writeQueryError(w, http.StatusInternalServerError, "retrieval not configured")
		return
	}

	context, err := s.fetcher.Fetch(r.Context(), text)
	if err != nil {
		slog.Error("context retrieval failed", "error", err)
		writeQueryError(w, http.StatusInternalServerError, "failed to retrieve context")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"context": context})
}

func writeQueryError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// lastUserMessage returns the most recent user-authored message.
// Deliberately stricter than taking the final list entry regardless of
// role: retrieval context is only meaningful for a user utterance, so a
// trailing assistant message never becomes the query text.
func lastUserMessage(req voiceQueryRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return strings.TrimSpace(req.Messages[i].Content)
		}
	}
	return ""
}

// ValidateAPIKey checks a user-supplied key against the model-listing
// endpoint. A false result means the key was rejected, not that the
// endpoint was unreachable; transport failures return an error.
func (s *Server) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.modelsURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}
