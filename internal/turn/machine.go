// Package turn implements the conversation turn state machine.
//
// The machine is pure: Apply maps the current state and an input event to a
// new state plus a list of side-effect commands for the caller to execute. It
// performs no I/O and holds no timers, which keeps every turn-taking rule
// testable without a live session.
package turn

import (
	"fmt"
	"time"
)

// State is a phase of the conversation turn cycle.
type State int

const (
	// StateIdle is the initial state, before capture is armed, and also the
	// terminal state after a stop or fatal event.
	StateIdle State = iota
	// StateListening means the microphone is open and user speech is being
	// streamed to the agent.
	StateListening
	// StateProcessing means the user's utterance has been handed off and the
	// agent has not yet begun answering.
	StateProcessing
	// StateSpeaking means agent audio is playing; the microphone is muted so
	// the agent does not hear itself.
	StateSpeaking
	// StateSuspended means the caller paused the conversation.
	StateSuspended
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind identifies a turn-taking input.
type EventKind int

const (
	// EventArmed fires once capture is live and the session may listen.
	EventArmed EventKind = iota
	// EventSilenceTimeout fires when no active speech arrived for the
	// configured silence window.
	EventSilenceTimeout
	// EventMaxUtterance fires when a single utterance exceeds its cap.
	EventMaxUtterance
	// EventAgentAudio fires when the first playable agent chunk arrives.
	EventAgentAudio
	// EventPlaybackDrained fires when the playback queue empties.
	EventPlaybackDrained
	// EventSuspend and EventResume are caller-initiated pauses.
	EventSuspend
	EventResume
	// EventFatal fires on an unrecoverable session error.
	EventFatal
	// EventStop fires on a caller-requested shutdown.
	EventStop
)

// String returns the lowercase name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventArmed:
		return "armed"
	case EventSilenceTimeout:
		return "silence_timeout"
	case EventMaxUtterance:
		return "max_utterance"
	case EventAgentAudio:
		return "agent_audio"
	case EventPlaybackDrained:
		return "playback_drained"
	case EventSuspend:
		return "suspend"
	case EventResume:
		return "resume"
	case EventFatal:
		return "fatal"
	case EventStop:
		return "stop"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one turn-taking input.
type Event struct {
	Kind EventKind

	// BufferedSpeech is the total duration of active speech captured in the
	// current utterance. Only meaningful on EventSilenceTimeout.
	BufferedSpeech time.Duration
}

// Command is a side effect the caller must execute after a transition.
type Command int

const (
	// CmdMute and CmdUnmute gate the capture source.
	CmdMute Command = iota
	CmdUnmute
	// CmdFlush marks the utterance boundary: reset the speech buffer and
	// cancel utterance timers.
	CmdFlush
	// CmdDisarm releases the capture device.
	CmdDisarm
	// CmdCloseTransport shuts the agent connection down.
	CmdCloseTransport
)

// String returns the lowercase name of the command.
func (c Command) String() string {
	switch c {
	case CmdMute:
		return "mute"
	case CmdUnmute:
		return "unmute"
	case CmdFlush:
		return "flush"
	case CmdDisarm:
		return "disarm"
	case CmdCloseTransport:
		return "close_transport"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Transition is the result of applying one event.
type Transition struct {
	From     State
	To       State
	Commands []Command

	// Changed reports whether the state actually moved. Commands may be
	// issued even when it did not.
	Changed bool
}

// Config holds the turn-taking thresholds.
type Config struct {
	// MinUtterance is the least buffered speech that counts as an utterance
	// worth handing to the agent. Shorter bursts are discarded at the
	// silence boundary.
	MinUtterance time.Duration
}

// Machine is the turn state machine. Not safe for concurrent use; the session
// drives it from a single goroutine.
type Machine struct {
	cfg      Config
	state    State
	terminal bool
}

// NewMachine creates a Machine in StateIdle.
func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Terminal reports whether the machine has reached its final state. A
// terminal machine absorbs all further events.
func (m *Machine) Terminal() bool { return m.terminal }

// Apply processes one event and returns the resulting transition.
func (m *Machine) Apply(ev Event) Transition {
	from := m.state
	if m.terminal {
		return Transition{From: from, To: from}
	}

	switch ev.Kind {
	case EventStop, EventFatal:
		m.state = StateIdle
		m.terminal = true
		return m.moved(from, CmdDisarm, CmdCloseTransport)

	case EventSuspend:
		if from == StateIdle || from == StateSuspended {
			return m.stay(from)
		}
		m.state = StateSuspended
		return m.moved(from, CmdMute)

	case EventResume:
		if from != StateSuspended {
			return m.stay(from)
		}
		m.state = StateListening
		return m.moved(from, CmdUnmute, CmdFlush)

	case EventArmed:
		if from != StateIdle {
			return m.stay(from)
		}
		m.state = StateListening
		return m.moved(from, CmdUnmute)

	case EventSilenceTimeout:
		if from != StateListening {
			return m.stay(from)
		}
		if ev.BufferedSpeech < m.cfg.MinUtterance {
			// Too short to be an utterance; discard and keep listening.
			return m.stay(from, CmdFlush)
		}
		m.state = StateProcessing
		return m.moved(from, CmdMute, CmdFlush)

	case EventMaxUtterance:
		if from != StateListening {
			return m.stay(from)
		}
		m.state = StateProcessing
		return m.moved(from, CmdMute, CmdFlush)

	case EventAgentAudio:
		if from != StateListening && from != StateProcessing {
			return m.stay(from)
		}
		m.state = StateSpeaking
		return m.moved(from, CmdMute, CmdFlush)

	case EventPlaybackDrained:
		if from != StateSpeaking {
			return m.stay(from)
		}
		m.state = StateListening
		return m.moved(from, CmdUnmute)

	default:
		return m.stay(from)
	}
}

func (m *Machine) stay(from State, cmds ...Command) Transition {
	return Transition{From: from, To: from, Commands: cmds}
}

func (m *Machine) moved(from State, cmds ...Command) Transition {
	return Transition{From: from, To: m.state, Commands: cmds, Changed: from != m.state}
}
