package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// maxSTTResponse caps how much of a transcription response is read.
const maxSTTResponse = 16 << 20

// ErrSTTDisabled is returned when no speech-to-text endpoint is configured.
var ErrSTTDisabled = errors.New("speech-to-text disabled")

// STTConfig configures the speech-to-text client.
type STTConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Retry   engine.RetryConfig
}

// STTClient submits audio locators to an HTTP transcription service.
type STTClient struct {
	cfg  STTConfig
	http *http.Client
}

type sttRequest struct {
	URL            string `json:"url"`
	Language       string `json:"language,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type sttResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// NewSTTClient creates a client for cfg.URL. The client's own timeout is
// cfg.Timeout; a zero Retry uses engine.STTRetryConfig.
func NewSTTClient(cfg STTConfig) *STTClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Retry == (engine.RetryConfig{}) {
		cfg.Retry = engine.STTRetryConfig
	}
	return &STTClient{cfg: cfg, http: engine.NewHTTPClient(cfg.Timeout)}
}

// Enabled reports whether an endpoint is configured.
func (c *STTClient) Enabled() bool {
	return c != nil && c.cfg.URL != ""
}

// Transcribe returns subtitle text for the audio at audioURL. lang is a
// hint; "" asks the service to detect the language.
func (c *STTClient) Transcribe(ctx context.Context, audioURL, lang string) (string, error) {
	if !c.Enabled() {
		return "", ErrSTTDisabled
	}
	body, err := json.Marshal(sttRequest{URL: audioURL, Language: lang, ResponseFormat: "srt"})
	if err != nil {
		return "", err
	}

	engine.IncrSTTCalls()
	resp, err := engine.RetryHTTP(ctx, c.cfg.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", engine.UserAgent)
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		return c.http.Do(req)
	})
	if err != nil {
		engine.IncrSTTErrors()
		return "", fmt.Errorf("stt: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSTTResponse))
	if err != nil {
		engine.IncrSTTErrors()
		return "", fmt.Errorf("stt: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		engine.IncrSTTErrors()
		return "", fmt.Errorf("stt: status %d: %s", resp.StatusCode, engine.TruncateRunes(strings.TrimSpace(string(data)), 200, "..."))
	}
	return parseSTTBody(resp.Header.Get("Content-Type"), data), nil
}

// parseSTTBody accepts either a JSON {"text": ...} envelope or a raw subtitle body.
func parseSTTBody(contentType string, data []byte) string {
	if strings.Contains(contentType, "json") || bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var r sttResponse
		if err := json.Unmarshal(data, &r); err == nil {
			return strings.TrimSpace(r.Text)
		}
	}
	return strings.TrimSpace(string(data))
}
