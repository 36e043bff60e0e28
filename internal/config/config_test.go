package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/convogrid/voicewire/internal/config"
)

const validYAML = `
server:
  log_level: info
  metrics_addr: ":9090"
session:
  sample_rate: 16000
  chunk_interval_ms: 100
  silence_timeout_ms: 2000
  max_utterance_ms: 10000
  min_utterance_ms: 300
transport:
  endpoint: "wss://agent.example.com/v1"
  auth_token: "secret"
synth:
  - name: local
    base_url: "http://localhost:5002"
    voice: lessac
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, validYAML)

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Transport.Endpoint != "wss://agent.example.com/v1" {
		t.Errorf("endpoint = %q", cfg.Transport.Endpoint)
	}
	if len(cfg.Synth) != 1 || cfg.Synth[0].Name != "local" {
		t.Errorf("synth = %+v", cfg.Synth)
	}
	if cfg.Synth[0].Backend != "http" {
		t.Errorf("synth backend default = %q, want http", cfg.Synth[0].Backend)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, `
transport:
  endpoint: "wss://agent.example.com/v1"
`)

	if cfg.Session.SampleRate != config.DefaultSampleRate {
		t.Errorf("sample_rate = %d, want %d", cfg.Session.SampleRate, config.DefaultSampleRate)
	}
	if got := cfg.Session.SilenceTimeout(); got != 2*time.Second {
		t.Errorf("SilenceTimeout() = %v, want 2s", got)
	}
	if got := cfg.Session.AcquireTimeout(); got != 10*time.Second {
		t.Errorf("AcquireTimeout() = %v, want 10s", got)
	}
	if cfg.Transport.SendQueueFrames != config.DefaultSendQueueFrames {
		t.Errorf("send_queue_frames = %d", cfg.Transport.SendQueueFrames)
	}
	if cfg.Transport.DecodeFailureThreshold != config.DefaultDecodeFailureThreshold {
		t.Errorf("decode_failure_threshold = %d", cfg.Transport.DecodeFailureThreshold)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level default = %q, want info", cfg.Server.LogLevel)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
transport:
  endpoint: "wss://agent.example.com/v1"
  retries: 3
`))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: `
server:
  log_level: loud
transport:
  endpoint: "wss://a.example.com"
`,
			want: "server.log_level",
		},
		{
			name: "missing endpoint",
			yaml: `
session:
  sample_rate: 16000
`,
			want: "transport.endpoint is required",
		},
		{
			name: "bad endpoint scheme",
			yaml: `
transport:
  endpoint: "https://a.example.com"
`,
			want: "transport.endpoint scheme",
		},
		{
			name: "sample rate out of range",
			yaml: `
session:
  sample_rate: 4000
transport:
  endpoint: "wss://a.example.com"
`,
			want: "session.sample_rate",
		},
		{
			name: "max utterance below silence timeout",
			yaml: `
session:
  silence_timeout_ms: 5000
  max_utterance_ms: 4000
transport:
  endpoint: "wss://a.example.com"
`,
			want: "session.max_utterance_ms",
		},
		{
			name: "synth missing base_url",
			yaml: `
transport:
  endpoint: "wss://a.example.com"
synth:
  - name: local
`,
			want: "synth[0].base_url",
		},
		{
			name: "duplicate synth name",
			yaml: `
transport:
  endpoint: "wss://a.example.com"
synth:
  - name: local
    base_url: "http://a"
  - name: local
    base_url: "http://b"
`,
			want: "duplicate",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
session:
  sample_rate: 4000
`))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"server.log_level", "session.sample_rate", "transport.endpoint"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}
