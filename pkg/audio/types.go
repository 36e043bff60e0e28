// Package audio defines the chunk type exchanged between the capture, transport,
// and playback layers, and the pure PCM16 codec used at the wire boundary.
//
// All audio inside voicewire is little-endian PCM16 mono. Sample-rate conversion
// happens at the device adapters (see pkg/capture/portaudio and
// pkg/playback/portaudio); the core pipeline never resamples.
//
// This package lives under pkg/ because device adapters and protocol codecs
// maintained outside this repository are expected to produce and consume
// [Chunk] values.
package audio

import "time"

// Source tags where a [Chunk] originated.
type Source int

const (
	// SourceLocal marks audio captured from the local microphone.
	SourceLocal Source = iota

	// SourceRemote marks audio decoded from the remote agent.
	SourceRemote
)

// String returns the human-readable name of the source tag.
func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Chunk is a bounded buffer of PCM16 samples plus bookkeeping. Chunks are
// produced by a capture source or a protocol codec, consumed exactly once,
// and never mutated after creation.
type Chunk struct {
	// Data is little-endian PCM16 mono sample data.
	Data []byte

	// Seq increases strictly monotonically per session and source. It is used
	// only for local bookkeeping (playback ordering, logging); the wire
	// protocol is fire-and-forget for audio and never sees it.
	Seq uint64

	// SampleRate is the sample rate of Data in Hz.
	SampleRate int

	// Source tags whether the chunk came from the local microphone or the
	// remote agent.
	Source Source
}

// Duration returns the play time of the chunk. Returns zero when the sample
// rate is unset.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	samples := len(c.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}
