package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	// DefaultHTTPURL is the default HTTP endpoint (credential issuance
	// and SDP negotiation).
	DefaultHTTPURL = "https://api.openai.com/v1/realtime"

	// DefaultWebSocketURL is the default WebSocket endpoint.
	DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"
)

// Client talks to the realtime service. Each Client is scoped to one
// credential; construct a new Client per key rather than sharing a
// mutable one.
type Client struct {
	config *clientConfig
}

// clientConfig holds the client configuration.
type clientConfig struct {
	apiKey     string
	httpURL    string
	wsURL      string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*clientConfig)

// NewClient creates a realtime client for the given credential.
func NewClient(apiKey string, opts ...Option) *Client {
	cfg := &clientConfig{
		apiKey:     apiKey,
		httpURL:    DefaultHTTPURL,
		wsURL:      DefaultWebSocketURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{config: cfg}
}

// WithHTTPURL sets the HTTP URL for credential issuance and negotiation.
func WithHTTPURL(url string) Option {
	return func(c *clientConfig) { c.httpURL = url }
}

// WithWebSocketURL sets the WebSocket URL.
func WithWebSocketURL(url string) Option {
	return func(c *clientConfig) { c.wsURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// ConnectWebRTC establishes a WebRTC session: credential fetch, SDP
// offer/answer, data channel. The returned session provides access to
// the audio tracks in addition to the event API.
func (c *Client) ConnectWebRTC(ctx context.Context, config *ConnectConfig) (*WebRTCSession, error) {
	return c.connectWebRTC(ctx, config)
}

// ConnectWebSocket establishes a WebSocket session carrying the same
// event protocol without media transport.
func (c *Client) ConnectWebSocket(ctx context.Context, config *ConnectConfig) (*WebSocketSession, error) {
	return c.connectWebSocket(ctx, config)
}

// credentialResponse is the session-issuance endpoint's response.
type credentialResponse struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	Model        string `json:"model"`
	ExpiresAt    int64  `json:"expires_at"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// fetchCredential obtains a short-lived credential for direct
// negotiation with the realtime service.
func (c *Client) fetchCredential(ctx context.Context, model, voice string) (string, error) {
	reqBody, err := json.Marshal(map[string]string{
		"model": model,
		"voice": voice,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.httpURL+"/sessions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &Error{
			Code:       "credential_issuance_failed",
			Message:    fmt.Sprintf("failed to create session: %s", string(body)),
			HTTPStatus: resp.StatusCode,
		}
	}

	var cred credentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return "", err
	}
	return cred.ClientSecret.Value, nil
}

// sendOffer posts the SDP offer to the negotiation endpoint and returns
// the answer SDP.
func (c *Client) sendOffer(ctx context.Context, credential, model, sdp string) (string, error) {
	url := fmt.Sprintf("%s?model=%s", c.config.httpURL, model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(sdp)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &Error{
			Code:       "sdp_exchange_failed",
			Message:    fmt.Sprintf("failed to exchange SDP: %s", string(body)),
			HTTPStatus: resp.StatusCode,
		}
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(answer), nil
}
