package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Transport is the raw JSON-envelope HTTP client shared by the KR and US
// venue clients. Each venue package wraps a Transport with its own
// higher-level Client methods and response shapes.
type Transport struct {
	BaseURL   string
	HTTP      *http.Client
	Log       zerolog.Logger
	APIKey    string
	APISecret string
}

// NewTransport builds a Transport bound to baseURL with a 30s timeout.
func NewTransport(baseURL string, log zerolog.Logger) *Transport {
	return &Transport{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Log:     log,
	}
}

// SetCredentials sets the mode-scoped API credentials used for every call.
func (t *Transport) SetCredentials(apiKey, apiSecret string) {
	t.APIKey = apiKey
	t.APISecret = apiSecret
}

func (t *Transport) authorize(req *http.Request) {
	if t.APIKey != "" {
		req.Header.Set("X-Broker-API-Key", t.APIKey)
	}
	if t.APISecret != "" {
		req.Header.Set("X-Broker-API-Secret", t.APISecret)
	}
}

// Post makes a POST request and returns the parsed envelope.
func (t *Transport) Post(ctx context.Context, endpoint string, request interface{}) (*Envelope, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return t.parseResponse(resp)
}

// Get makes a GET request and returns the parsed envelope.
func (t *Transport) Get(ctx context.Context, endpoint string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	t.authorize(req)

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return t.parseResponse(resp)
}

func (t *Transport) parseResponse(resp *http.Response) (*Envelope, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !env.Success {
		msg := "unknown error"
		if env.Error != nil {
			msg = *env.Error
		}
		return &env, fmt.Errorf("broker error: %s", msg)
	}

	return &env, nil
}
