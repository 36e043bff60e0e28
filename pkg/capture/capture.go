// Package capture defines the Source interface for bridging a physical
// microphone to a lazy, restartable stream of audio chunks.
//
// A Source owns the device handle. Muting suppresses chunk emission without
// tearing the device down, so resuming the user's turn never pays device
// re-acquisition latency. Device loss mid-session is terminal for the source:
// the chunk stream closes and [Source.Err] reports the cause.
//
// Implementations are provided by device-specific adapter packages (see
// capture/portaudio); capture/mock provides a test double. This package lives
// under pkg/ because external device adapters are expected to implement
// [Source].
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/convogrid/voicewire/pkg/audio"
)

// ErrPermissionDenied is returned by [Source.Arm] when the platform refuses
// microphone access. Not retryable without out-of-band user action.
var ErrPermissionDenied = errors.New("capture: permission denied")

// ErrDeviceUnavailable is returned by [Source.Arm] when no usable input device
// exists or the named device cannot be opened.
var ErrDeviceUnavailable = errors.New("capture: device unavailable")

// DeviceError reports a terminal mid-session device failure (e.g. an unplugged
// microphone). The session treats it as fatal rather than retrying silently,
// since mid-speech state would be ambiguous after a gap.
type DeviceError struct {
	Cause error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Cause == nil {
		return "capture: device error"
	}
	return "capture: device error: " + e.Cause.Error()
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error { return e.Cause }

// DefaultChunkInterval is the capture cadence used when [Config.ChunkInterval]
// is zero.
const DefaultChunkInterval = 100 * time.Millisecond

// Config holds the capture parameters negotiated at session start.
type Config struct {
	// SampleRate is the PCM16 sample rate of emitted chunks in Hz.
	SampleRate int

	// ChunkInterval is the emission cadence. Zero selects
	// [DefaultChunkInterval].
	ChunkInterval time.Duration

	// Device names a specific input device. Empty selects the platform
	// default.
	Device string
}

// Source bridges a microphone to a stream of [audio.Chunk] values.
//
// Lifecycle: Arm → (Mute/Unmute)* → Disarm. The chunk stream is infinite while
// armed and is terminated by Disarm or device loss, never by exhaustion.
// Implementations must be safe for concurrent use.
type Source interface {
	// Arm requests device access and starts capturing. The supplied ctx bounds
	// the acquisition only; once armed the source runs until Disarm. Returns
	// [ErrPermissionDenied] or [ErrDeviceUnavailable] on failure.
	Arm(ctx context.Context) error

	// Chunks returns the stream of captured chunks, emitted at the configured
	// cadence with strictly increasing sequence numbers. The channel is closed
	// by Disarm or by device loss; after it closes, call [Source.Err] to
	// distinguish the two.
	Chunks() <-chan audio.Chunk

	// Err returns the terminal [DeviceError] that closed the chunk stream, or
	// nil if the stream ended via Disarm.
	Err() error

	// Mute suppresses chunk emission. The device keeps running; suppressed
	// chunks are not produced at all (not silence-filled).
	Mute()

	// Unmute resumes chunk emission.
	Unmute()

	// Disarm releases the device and closes the chunk stream. Idempotent.
	Disarm() error
}
