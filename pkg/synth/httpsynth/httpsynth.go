// Package httpsynth provides an HTTP-backed synth.Provider that targets a
// batch text-to-speech server: one POST per utterance, raw PCM16 in the
// response body.
//
// Typical usage:
//
//	p := httpsynth.New("http://localhost:5002",
//	    httpsynth.WithVoice("lessac"),
//	    httpsynth.WithTimeout(15*time.Second),
//	)
//	audio, err := p.Synthesize(ctx, "hello there", 16000)
package httpsynth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/convogrid/voicewire/pkg/synth"
)

// Compile-time assertion that Provider implements synth.Provider.
var _ synth.Provider = (*Provider)(nil)

const (
	defaultTimeout = 30 * time.Second
	synthEndpoint  = "/synthesize"

	// maxResponseBytes caps the accepted clip size. A minute of PCM16 at
	// 48 kHz is under 6 MiB; anything larger is a misbehaving server.
	maxResponseBytes = 16 << 20
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithVoice sets the voice name sent with each request. The server's default
// voice is used when unset.
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithHTTPClient replaces the underlying HTTP client. Mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// Provider implements synth.Provider against a batch TTS server.
type Provider struct {
	baseURL    string
	voice      string
	httpClient *http.Client
}

// New creates a Provider targeting the server at baseURL.
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// synthRequest is the JSON body of one synthesis request.
type synthRequest struct {
	Text       string `json:"text"`
	SampleRate int    `json:"sample_rate"`
	Voice      string `json:"voice,omitempty"`
}

// Synthesize renders text via one POST to the server.
func (p *Provider) Synthesize(ctx context.Context, text string, sampleRate int) ([]byte, error) {
	if text == "" {
		return nil, errors.New("httpsynth: empty text")
	}

	body, err := json.Marshal(synthRequest{Text: text, SampleRate: sampleRate, Voice: p.voice})
	if err != nil {
		return nil, fmt.Errorf("httpsynth: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+synthEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpsynth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpsynth: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("httpsynth: server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("httpsynth: read response: %w", err)
	}
	if len(audio) == 0 || len(audio)%2 != 0 {
		return nil, fmt.Errorf("httpsynth: response of %d bytes is not PCM16", len(audio))
	}
	return audio, nil
}
