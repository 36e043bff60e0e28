// Package config provides the configuration schema, loader, synth backend
// registry, and file watcher for the Voicewire engine.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default session tuning values applied by [Validate] when the corresponding
// field is zero.
const (
	DefaultSampleRate             = 16000
	DefaultChunkIntervalMs        = 100
	DefaultSilenceTimeoutMs       = 2000
	DefaultMaxUtteranceMs         = 10000
	DefaultMinUtteranceMs         = 300
	DefaultAcquireTimeoutMs       = 10000
	DefaultSendQueueFrames        = 64
	DefaultDecodeFailureThreshold = 20
	DefaultSynthTimeoutMs         = 30000
)

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Transport TransportConfig `yaml:"transport"`
	Capture   CaptureConfig   `yaml:"capture"`
	Synth     []SynthEntry    `yaml:"synth"`
}

// ServerConfig holds logging and operational endpoint settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the metrics and health endpoints listen
	// on (e.g., ":9090"). Empty disables the operational server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// SessionConfig holds the audio cadence and turn-taking thresholds.
type SessionConfig struct {
	// SampleRate is the PCM sample rate in Hz for capture and playback.
	SampleRate int `yaml:"sample_rate"`

	// ChunkIntervalMs is the capture chunk cadence in milliseconds.
	ChunkIntervalMs int `yaml:"chunk_interval_ms"`

	// SilenceTimeoutMs is how long without active speech before the
	// utterance is handed to the agent.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// MaxUtteranceMs caps a single utterance; exceeding it forces handoff.
	MaxUtteranceMs int `yaml:"max_utterance_ms"`

	// MinUtteranceMs is the least buffered speech that counts as an
	// utterance. Shorter bursts are discarded at the silence boundary.
	MinUtteranceMs int `yaml:"min_utterance_ms"`

	// AcquireTimeoutMs bounds session startup: credential acquisition,
	// connect, and device arming together.
	AcquireTimeoutMs int `yaml:"acquire_timeout_ms"`

	// MinAmplitude is the peak-amplitude threshold above which a chunk
	// counts as active speech. Zero uses the built-in default.
	MinAmplitude int `yaml:"min_amplitude"`
}

// ChunkInterval returns the capture cadence as a duration.
func (s SessionConfig) ChunkInterval() time.Duration {
	return time.Duration(s.ChunkIntervalMs) * time.Millisecond
}

// SilenceTimeout returns the silence window as a duration.
func (s SessionConfig) SilenceTimeout() time.Duration {
	return time.Duration(s.SilenceTimeoutMs) * time.Millisecond
}

// MaxUtterance returns the utterance cap as a duration.
func (s SessionConfig) MaxUtterance() time.Duration {
	return time.Duration(s.MaxUtteranceMs) * time.Millisecond
}

// MinUtterance returns the utterance floor as a duration.
func (s SessionConfig) MinUtterance() time.Duration {
	return time.Duration(s.MinUtteranceMs) * time.Millisecond
}

// AcquireTimeout returns the startup bound as a duration.
func (s SessionConfig) AcquireTimeout() time.Duration {
	return time.Duration(s.AcquireTimeoutMs) * time.Millisecond
}

// TransportConfig holds agent connection settings.
type TransportConfig struct {
	// Endpoint is the agent WebSocket URL (e.g., "wss://agent.example.com/v1").
	Endpoint string `yaml:"endpoint"`

	// AuthToken is presented as a bearer credential on connect. Prefer the
	// VOICEWIRE_AUTH_TOKEN environment variable in production.
	AuthToken string `yaml:"auth_token"`

	// SendQueueFrames is the outbound queue high-water mark in frames.
	SendQueueFrames int `yaml:"send_queue_frames"`

	// DecodeFailureThreshold is the number of consecutive undecodable
	// inbound frames that ends the session.
	DecodeFailureThreshold int `yaml:"decode_failure_threshold"`

	// Base64Audio sends captured audio inside JSON envelopes instead of
	// binary frames, for agents that only accept text.
	Base64Audio bool `yaml:"base64_audio"`
}

// CaptureConfig holds input device settings.
type CaptureConfig struct {
	// Device names the input device to open. Empty uses the system default.
	Device string `yaml:"device"`
}

// SynthEntry describes one local synthesis backend. Entries are tried in
// order when the agent answers in text without audio.
type SynthEntry struct {
	// Name is a unique label for this backend, used in logs and breaker
	// state.
	Name string `yaml:"name"`

	// Backend selects the registered implementation (e.g., "http").
	// Defaults to "http".
	Backend string `yaml:"backend"`

	// BaseURL is the backend server address.
	BaseURL string `yaml:"base_url"`

	// Voice is the backend-specific voice identifier. Empty uses the
	// backend default.
	Voice string `yaml:"voice"`

	// TimeoutMs is the per-request timeout in milliseconds.
	TimeoutMs int `yaml:"timeout_ms"`
}

// Timeout returns the per-request timeout as a duration.
func (e SynthEntry) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}
