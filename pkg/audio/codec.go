package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CodecError reports malformed input to [EncodePCM16] or [DecodePCM16].
// It is always recovered locally by callers (the frame is dropped and
// counted); it never terminates a session on its own.
type CodecError struct {
	Reason string
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	return "audio: " + e.Reason
}

// pcm16Scale maps the float range [-1, 1] onto the signed 16-bit range.
// Decoding divides by the same constant so that a round trip stays within
// one least-significant bit of the original sample.
const pcm16Scale = 32767

// EncodePCM16 converts float32 samples to little-endian PCM16 bytes. Each
// sample is clamped to [-1, 1] before scaling, and scaled values are rounded
// half away from zero. Returns a [CodecError] if samples is empty or contains
// a NaN or infinite value.
func EncodePCM16(samples []float32) ([]byte, error) {
	if len(samples) == 0 {
		return nil, &CodecError{Reason: "encode: empty input"}
	}

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &CodecError{Reason: fmt.Sprintf("encode: non-finite sample at index %d", i)}
		}
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		// math.Round rounds half away from zero.
		v := int16(math.Round(f * pcm16Scale))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out, nil
}

// DecodePCM16 converts little-endian PCM16 bytes to float32 samples in
// [-1, 1]. Returns a [CodecError] if data is empty or has an odd byte count.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, &CodecError{Reason: "decode: empty input"}
	}
	if len(data)%2 != 0 {
		return nil, &CodecError{Reason: fmt.Sprintf("decode: odd byte count %d", len(data))}
	}

	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / pcm16Scale
	}
	return out, nil
}
