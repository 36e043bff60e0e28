// Package synth defines the local speech synthesis interface used when the
// remote agent answers in text only. Implementations live in subpackages
// (see synth/httpsynth); synth/mock provides a test double.
package synth

import "context"

// Provider converts text to speech.
type Provider interface {
	// Synthesize renders text as PCM16 little-endian mono audio at the
	// requested sample rate. Blocks until the full clip is ready or ctx is
	// cancelled.
	Synthesize(ctx context.Context, text string, sampleRate int) ([]byte, error)
}
