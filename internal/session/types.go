// Package session orchestrates one live conversation: it arms capture,
// connects the transport, drives the turn state machine from a single event
// loop, and reports progress to the caller through callbacks.
package session

import (
	"context"
	"fmt"

	"github.com/convogrid/voicewire/internal/observe"
	"github.com/convogrid/voicewire/internal/turn"
	"github.com/convogrid/voicewire/pkg/activity"
	"github.com/convogrid/voicewire/pkg/capture"
	"github.com/convogrid/voicewire/pkg/playback"
	"github.com/convogrid/voicewire/pkg/synth"
	"github.com/convogrid/voicewire/pkg/transport"
	"github.com/convogrid/voicewire/pkg/wire"
)

// Speaker identifies who a transcript line belongs to.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Transcript is one line of conversation text delivered to the caller.
type Transcript struct {
	Speaker Speaker
	Text    string

	// IsFinal is false for interim user transcripts that may still be
	// revised by the agent.
	IsFinal bool
}

// EndReason explains why a session ended. Exactly one OnEnded callback fires
// per session, carrying one of these.
type EndReason string

const (
	// EndStopped means the caller requested shutdown.
	EndStopped EndReason = "stopped"
	// EndDeviceLost means the capture device failed mid-session.
	EndDeviceLost EndReason = "device_lost"
	// EndPermissionDenied means microphone access was refused.
	EndPermissionDenied EndReason = "permission_denied"
	// EndConnectFailed means the agent connection could not be established.
	EndConnectFailed EndReason = "connect_failed"
	// EndTransportFailed means the agent connection ended, cleanly or not,
	// without the caller asking for it.
	EndTransportFailed EndReason = "transport_failed"
	// EndProtocolError means the agent kept sending frames the codec could
	// not decode.
	EndProtocolError EndReason = "protocol_error"
)

// SessionError wraps a session failure with its end reason.
type SessionError struct {
	Reason EndReason
	Cause  error
}

func (e *SessionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("session: %s", e.Reason)
	}
	return fmt.Sprintf("session: %s: %v", e.Reason, e.Cause)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// Credentials identify the remote agent endpoint for one session.
type Credentials struct {
	Endpoint  string
	AuthToken string
}

// CredentialsFunc supplies connection credentials at session start. The ctx
// carries the acquisition deadline.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// StaticCredentials returns a CredentialsFunc that always yields creds.
func StaticCredentials(creds Credentials) CredentialsFunc {
	return func(context.Context) (Credentials, error) {
		return creds, nil
	}
}

// Callbacks receive session progress events. All callbacks are invoked from
// the session's event loop goroutine, never concurrently; a slow callback
// stalls the session. Nil callbacks are ignored.
type Callbacks struct {
	// OnTranscript fires for every transcript line, user and agent.
	OnTranscript func(t Transcript)

	// OnTurnChanged fires when the turn state moves.
	OnTurnChanged func(state turn.State)

	// OnEnded fires exactly once, when the session is over.
	OnEnded func(reason EndReason)
}

// Deps are the collaborators a session runs on. Transport, Capture, Sink,
// Codec, and Credentials are required; Detector defaults to the amplitude
// threshold gate, Metrics to the process-wide instance, and a nil Synth
// disables local synthesis of text-only agent replies.
type Deps struct {
	Credentials CredentialsFunc
	Transport   transport.Channel
	Capture     capture.Source
	Sink        playback.Sink
	Codec       wire.Codec
	Detector    activity.Detector
	Synth       synth.Provider
	Metrics     *observe.Metrics
}
