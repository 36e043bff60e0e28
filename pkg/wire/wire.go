// Package wire defines the application protocol spoken over the transport:
// the typed events the remote agent emits and the codec that maps them to and
// from transport frames.
//
// Text frames carry JSON envelopes discriminated by a "type" field; binary
// frames carry raw PCM16 agent audio. Unknown envelope types decode to a nil
// event so newer agents remain compatible with older clients.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/convogrid/voicewire/pkg/transport"
)

// Wire message type discriminators.
const (
	typeSessionInit    = "session_init"
	typeUserAudioChunk = "user_audio_chunk"
	typeUserTranscript = "user_transcript"
	typeAgentResponse  = "agent_response"
	typeAgentAudio     = "agent_audio_chunk"
	typeError          = "error"
)

// CodecError reports a frame that could not be decoded into an event.
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("wire: decode: %s", e.Reason)
}

// Event is a message received from the remote agent. The concrete types are
// [UserTranscript], [AgentResponse], [AgentAudio], and [ServerError].
type Event interface {
	isEvent()
}

// UserTranscript is the agent's transcription of the user's speech.
type UserTranscript struct {
	Text    string
	IsFinal bool
}

// AgentResponse is the agent's textual reply.
type AgentResponse struct {
	Text string
}

// AgentAudio is one chunk of synthesized agent speech, PCM16 little-endian.
type AgentAudio struct {
	Audio []byte
}

// ServerError is a fault reported by the remote agent.
type ServerError struct {
	Message string
}

func (UserTranscript) isEvent() {}
func (AgentResponse) isEvent()  {}
func (AgentAudio) isEvent()     {}
func (ServerError) isEvent()    {}

// Codec translates between transport frames and protocol events.
type Codec interface {
	// Decode parses an inbound frame. A nil event with a nil error means the
	// frame was valid but carries nothing the session acts on.
	Decode(frame transport.Frame) (Event, error)

	// EncodeSessionInit builds the handshake frame sent once after connect.
	EncodeSessionInit(metadata map[string]any) (transport.Frame, error)

	// EncodeAudio builds an outbound frame for one captured PCM16 chunk.
	EncodeAudio(pcm []byte) transport.Frame
}

// envelope is the JSON structure shared by all text frames.
type envelope struct {
	Type        string         `json:"type"`
	Text        string         `json:"text,omitempty"`
	IsFinal     bool           `json:"is_final,omitempty"`
	AudioBase64 string         `json:"audio_base64,omitempty"`
	Message     string         `json:"message,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// JSONCodec is the default Codec: JSON envelopes on text frames, raw PCM16 on
// binary frames.
type JSONCodec struct {
	// Base64Audio, when set, sends captured audio inside JSON envelopes
	// instead of binary frames, for agents that only accept text.
	Base64Audio bool
}

// Compile-time assertion that JSONCodec implements Codec.
var _ Codec = (*JSONCodec)(nil)

// Decode parses an inbound frame into an event.
func (c *JSONCodec) Decode(frame transport.Frame) (Event, error) {
	if frame.Kind == transport.FrameBinary {
		if len(frame.Data) == 0 || len(frame.Data)%2 != 0 {
			return nil, &CodecError{Reason: fmt.Sprintf("binary frame of %d bytes is not PCM16", len(frame.Data))}
		}
		return AgentAudio{Audio: frame.Data}, nil
	}

	var env envelope
	if err := json.Unmarshal(frame.Data, &env); err != nil {
		return nil, &CodecError{Reason: fmt.Sprintf("invalid JSON envelope: %v", err)}
	}

	switch env.Type {
	case typeUserTranscript:
		return UserTranscript{Text: env.Text, IsFinal: env.IsFinal}, nil
	case typeAgentResponse:
		return AgentResponse{Text: env.Text}, nil
	case typeAgentAudio:
		audio, err := base64.StdEncoding.DecodeString(env.AudioBase64)
		if err != nil {
			return nil, &CodecError{Reason: fmt.Sprintf("invalid audio_base64: %v", err)}
		}
		if len(audio) == 0 || len(audio)%2 != 0 {
			return nil, &CodecError{Reason: fmt.Sprintf("decoded audio of %d bytes is not PCM16", len(audio))}
		}
		return AgentAudio{Audio: audio}, nil
	case typeError:
		return ServerError{Message: env.Message}, nil
	case "":
		return nil, &CodecError{Reason: "envelope missing type"}
	default:
		// Forward-compatible: unrecognized types are dropped, not fatal.
		return nil, nil
	}
}

// EncodeSessionInit builds the handshake frame.
func (c *JSONCodec) EncodeSessionInit(metadata map[string]any) (transport.Frame, error) {
	data, err := json.Marshal(envelope{Type: typeSessionInit, Metadata: metadata})
	if err != nil {
		return transport.Frame{}, fmt.Errorf("wire: encode session init: %w", err)
	}
	return transport.Frame{Kind: transport.FrameText, Data: data}, nil
}

// EncodeAudio builds an outbound frame for one captured PCM16 chunk.
func (c *JSONCodec) EncodeAudio(pcm []byte) transport.Frame {
	if !c.Base64Audio {
		return transport.Frame{Kind: transport.FrameBinary, Data: pcm}
	}
	data, _ := json.Marshal(envelope{
		Type:        typeUserAudioChunk,
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
	})
	return transport.Frame{Kind: transport.FrameText, Data: data}
}
