// Package portaudio implements playback.Sink on top of the PortAudio
// bindings. The output stream is opened lazily at the first chunk's sample
// rate and reused for every subsequent chunk; chunks at other rates are
// resampled on the way in.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/convogrid/voicewire/pkg/audio"
	"github.com/convogrid/voicewire/pkg/playback"
)

// Compile-time assertion that Sink implements playback.Sink.
var _ playback.Sink = (*Sink)(nil)

// framesPerBuffer is the PortAudio output buffer size in frames. 20 ms at
// 16 kHz; small enough that a cancelled Play stops quickly.
const framesPerBuffer = 320

// Sink renders PCM16 chunks through the default PortAudio output device.
type Sink struct {
	mu          sync.Mutex
	stream      *portaudio.Stream
	out         []float32
	sampleRate  int
	initialized bool
	closed      bool
}

// New creates a Sink. The output device is acquired on first Play.
func New() *Sink {
	return &Sink{}
}

// Play writes the chunk to the output device in buffer-sized pieces,
// blocking until the final piece has been handed to the device or ctx is
// cancelled.
func (s *Sink) Play(ctx context.Context, chunk audio.Chunk) error {
	if len(chunk.Data)%2 != 0 {
		return fmt.Errorf("playback: odd chunk length %d", len(chunk.Data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return playback.ErrQueueClosed
	}
	if err := s.ensureStream(chunk.SampleRate); err != nil {
		return err
	}

	// A chunk at a different rate than the open stream is converted rather
	// than paying a device reopen mid-utterance.
	data := chunk.Data
	if chunk.SampleRate != s.sampleRate {
		data = audio.ResampleMono16(data, chunk.SampleRate, s.sampleRate)
	}

	samples, err := audio.DecodePCM16(data)
	if err != nil {
		return fmt.Errorf("playback: %w", err)
	}

	for off := 0; off < len(samples); off += framesPerBuffer {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + framesPerBuffer
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(s.out, samples[off:end])
		for i := n; i < len(s.out); i++ {
			s.out[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("playback: write stream: %w", err)
		}
	}
	return nil
}

// ensureStream opens the output stream on first use at the given sample
// rate. The stream is kept at that rate for its lifetime; later chunks at
// other rates are resampled in Play. Must be called with s.mu held.
func (s *Sink) ensureStream(sampleRate int) error {
	if s.stream != nil {
		return nil
	}
	if !s.initialized {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("playback: initialize: %w", err)
		}
		s.initialized = true
	}

	s.out = make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, s.out)
	if err != nil {
		return fmt.Errorf("playback: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("playback: start output stream: %w", err)
	}
	s.stream = stream
	s.sampleRate = sampleRate
	slog.Debug("playback output opened", "sample_rate", sampleRate)
	return nil
}

// Close releases the output device. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.stream != nil {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		s.stream = nil
	}
	if s.initialized {
		_ = portaudio.Terminate()
		s.initialized = false
	}
	return nil
}
