// Package portaudio implements capture.Source on top of the PortAudio
// bindings. It reads float32 frames from the default (or a named) input
// device in a blocking loop and emits little-endian PCM16 chunks at the
// configured cadence.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/convogrid/voicewire/pkg/audio"
	"github.com/convogrid/voicewire/pkg/capture"
)

// Compile-time assertion that Source implements capture.Source.
var _ capture.Source = (*Source)(nil)

// chunkChanBuf is the buffer depth of the emitted chunk channel. At the
// default 100 ms cadence this absorbs several seconds of consumer stall
// before capture frames are dropped.
const chunkChanBuf = 32

// Source is a PortAudio-backed capture.Source.
type Source struct {
	cfg capture.Config

	mu     sync.Mutex
	stream *portaudio.Stream
	in     []float32
	armed  bool
	errVal error

	muted  atomic.Bool
	seq    atomic.Uint64
	chunks chan audio.Chunk
	done   chan struct{}

	chunksOnce sync.Once
	disarmOnce sync.Once
	wg         sync.WaitGroup
}

// New creates an unarmed Source with the given configuration.
func New(cfg capture.Config) *Source {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = capture.DefaultChunkInterval
	}
	return &Source{
		cfg:    cfg,
		chunks: make(chan audio.Chunk, chunkChanBuf),
		done:   make(chan struct{}),
	}
}

// Arm initialises PortAudio, opens the input stream, and starts the capture
// loop. The ctx bounds acquisition only.
func (s *Source) Arm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("capture: arm cancelled: %w", err)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize: %v", capture.ErrDeviceUnavailable, err)
	}

	frames := s.cfg.SampleRate * int(s.cfg.ChunkInterval.Milliseconds()) / 1000
	if frames <= 0 {
		frames = s.cfg.SampleRate / 10
	}
	s.in = make([]float32, frames)

	stream, err := s.openStream()
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %v", capture.ErrDeviceUnavailable, err)
	}

	s.stream = stream
	s.armed = true

	s.wg.Add(1)
	go s.loop()

	slog.Debug("capture armed",
		"sample_rate", s.cfg.SampleRate,
		"chunk_interval", s.cfg.ChunkInterval,
		"device", s.cfg.Device,
	)
	return nil
}

// openStream opens either the default input device or the device named in the
// config. Must be called with s.mu held and PortAudio initialised.
func (s *Source) openStream() (*portaudio.Stream, error) {
	if s.cfg.Device == "" {
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.cfg.SampleRate), len(s.in), s.in)
		if err != nil {
			return nil, fmt.Errorf("%w: open default stream: %v", capture.ErrDeviceUnavailable, err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %v", capture.ErrDeviceUnavailable, err)
	}
	for _, dev := range devices {
		if dev.Name != s.cfg.Device || dev.MaxInputChannels < 1 {
			continue
		}
		params := portaudio.LowLatencyParameters(dev, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(s.cfg.SampleRate)
		params.FramesPerBuffer = len(s.in)
		stream, err := portaudio.OpenStream(params, s.in)
		if err != nil {
			return nil, fmt.Errorf("%w: open stream %q: %v", capture.ErrDeviceUnavailable, s.cfg.Device, err)
		}
		return stream, nil
	}
	return nil, fmt.Errorf("%w: no input device named %q", capture.ErrDeviceUnavailable, s.cfg.Device)
}

// loop reads device buffers until Disarm or a read error. It owns the chunk
// channel and closes it on exit.
func (s *Source) loop() {
	defer s.wg.Done()
	defer s.closeChunks()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			select {
			case <-s.done:
				// Disarm raced the read; not a device failure.
				return
			default:
			}
			s.mu.Lock()
			s.errVal = &capture.DeviceError{Cause: err}
			s.mu.Unlock()
			slog.Warn("capture device read failed", "err", err)
			return
		}

		if s.muted.Load() {
			// Suppressed, not silence-filled: no chunk is produced at all.
			continue
		}

		data, err := audio.EncodePCM16(s.in)
		if err != nil {
			// Device handed us garbage samples; skip the buffer.
			slog.Debug("capture buffer rejected", "err", err)
			continue
		}
		chunk := audio.Chunk{
			Data:       data,
			Seq:        s.seq.Add(1),
			SampleRate: s.cfg.SampleRate,
			Source:     audio.SourceLocal,
		}

		select {
		case s.chunks <- chunk:
		case <-s.done:
			return
		default:
			// Consumer stalled past the buffer; dropping beats blocking the
			// device read cadence.
			slog.Debug("capture chunk dropped, consumer stalled", "seq", chunk.Seq)
		}
	}
}

// Chunks returns the captured chunk stream.
func (s *Source) Chunks() <-chan audio.Chunk { return s.chunks }

// Err returns the terminal device error, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Mute suppresses chunk emission without stopping the device.
func (s *Source) Mute() { s.muted.Store(true) }

// Unmute resumes chunk emission.
func (s *Source) Unmute() { s.muted.Store(false) }

// Disarm stops the capture loop, releases the device, and closes the chunk
// stream. Idempotent.
func (s *Source) Disarm() error {
	s.disarmOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		stream := s.stream
		armed := s.armed
		s.stream = nil
		s.armed = false
		s.mu.Unlock()

		if stream != nil {
			_ = stream.Stop()
			_ = stream.Close()
		}
		s.wg.Wait()
		if armed {
			_ = portaudio.Terminate()
		}
		s.closeChunks()
		slog.Debug("capture disarmed")
	})
	return nil
}

// closeChunks closes the chunk channel exactly once.
func (s *Source) closeChunks() {
	s.chunksOnce.Do(func() { close(s.chunks) })
}
