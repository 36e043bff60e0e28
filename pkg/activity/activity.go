// Package activity defines the speech-activity Detector port used by the
// session to decide when the user is talking.
//
// The built-in [Threshold] implementation is a plain peak-amplitude gate, not a
// voice-activity-detection model: it answers "is there any signal here" and
// nothing more. Callers that need real VAD can supply their own Detector.
package activity

import (
	"encoding/binary"

	"github.com/convogrid/voicewire/pkg/audio"
)

// Detector reports whether an audio chunk contains speech-like activity.
// Implementations must be safe for use from the session event loop; they are
// never called concurrently for the same session.
type Detector interface {
	// Active reports whether chunk carries signal that should count towards
	// the user's utterance and reset the silence timer.
	Active(chunk audio.Chunk) bool
}

// DefaultMinAmplitude is the peak-amplitude floor used by [NewThreshold] when
// no explicit value is given. It sits comfortably above line noise on typical
// consumer microphones while triggering on quiet speech.
const DefaultMinAmplitude = 500

// Threshold is a peak-amplitude gate over PCM16 samples.
type Threshold struct {
	min int16
}

// Compile-time assertion that Threshold satisfies the Detector interface.
var _ Detector = (*Threshold)(nil)

// NewThreshold creates a Threshold detector. A non-positive min selects
// [DefaultMinAmplitude].
func NewThreshold(min int16) *Threshold {
	if min <= 0 {
		min = DefaultMinAmplitude
	}
	return &Threshold{min: min}
}

// Active reports whether any sample in chunk reaches the amplitude floor.
func (t *Threshold) Active(chunk audio.Chunk) bool {
	data := chunk.Data
	for i := 0; i+1 < len(data); i += 2 {
		v := int16(binary.LittleEndian.Uint16(data[i:]))
		if v < 0 {
			// -32768 has no positive counterpart; clamp instead of negating.
			if v == -32768 {
				return true
			}
			v = -v
		}
		if v >= t.min {
			return true
		}
	}
	return false
}
