package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued tuning fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	s := &cfg.Session
	if s.SampleRate == 0 {
		s.SampleRate = DefaultSampleRate
	}
	if s.ChunkIntervalMs == 0 {
		s.ChunkIntervalMs = DefaultChunkIntervalMs
	}
	if s.SilenceTimeoutMs == 0 {
		s.SilenceTimeoutMs = DefaultSilenceTimeoutMs
	}
	if s.MaxUtteranceMs == 0 {
		s.MaxUtteranceMs = DefaultMaxUtteranceMs
	}
	if s.MinUtteranceMs == 0 {
		s.MinUtteranceMs = DefaultMinUtteranceMs
	}
	if s.AcquireTimeoutMs == 0 {
		s.AcquireTimeoutMs = DefaultAcquireTimeoutMs
	}
	t := &cfg.Transport
	if t.SendQueueFrames == 0 {
		t.SendQueueFrames = DefaultSendQueueFrames
	}
	if t.DecodeFailureThreshold == 0 {
		t.DecodeFailureThreshold = DefaultDecodeFailureThreshold
	}
	if t.AuthToken == "" {
		t.AuthToken = os.Getenv("VOICEWIRE_AUTH_TOKEN")
	}
	for i := range cfg.Synth {
		if cfg.Synth[i].TimeoutMs == 0 {
			cfg.Synth[i].TimeoutMs = DefaultSynthTimeoutMs
		}
		if cfg.Synth[i].Backend == "" {
			cfg.Synth[i].Backend = "http"
		}
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	s := cfg.Session
	if s.SampleRate < 8000 || s.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("session.sample_rate %d is out of range [8000, 48000]", s.SampleRate))
	}
	if s.ChunkIntervalMs < 10 || s.ChunkIntervalMs > 1000 {
		errs = append(errs, fmt.Errorf("session.chunk_interval_ms %d is out of range [10, 1000]", s.ChunkIntervalMs))
	}
	if s.SilenceTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("session.silence_timeout_ms must be positive, got %d", s.SilenceTimeoutMs))
	}
	if s.MaxUtteranceMs <= s.SilenceTimeoutMs {
		errs = append(errs, fmt.Errorf("session.max_utterance_ms %d must exceed silence_timeout_ms %d", s.MaxUtteranceMs, s.SilenceTimeoutMs))
	}
	if s.MinUtteranceMs < 0 {
		errs = append(errs, fmt.Errorf("session.min_utterance_ms must not be negative, got %d", s.MinUtteranceMs))
	}
	if s.MinAmplitude < 0 || s.MinAmplitude > 32767 {
		errs = append(errs, fmt.Errorf("session.min_amplitude %d is out of range [0, 32767]", s.MinAmplitude))
	}

	t := cfg.Transport
	if t.Endpoint == "" {
		errs = append(errs, errors.New("transport.endpoint is required"))
	} else if u, err := url.Parse(t.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("transport.endpoint %q is not a valid URL: %v", t.Endpoint, err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("transport.endpoint scheme %q is invalid; valid values: ws, wss", u.Scheme))
	}
	if t.SendQueueFrames < 1 {
		errs = append(errs, fmt.Errorf("transport.send_queue_frames must be positive, got %d", t.SendQueueFrames))
	}
	if t.DecodeFailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("transport.decode_failure_threshold must be positive, got %d", t.DecodeFailureThreshold))
	}

	seen := make(map[string]int, len(cfg.Synth))
	for i, entry := range cfg.Synth {
		prefix := fmt.Sprintf("synth[%d]", i)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[entry.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of synth[%d]", prefix, entry.Name, prev))
			}
			seen[entry.Name] = i
		}
		if entry.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required", prefix))
		}
	}

	return errors.Join(errs...)
}
