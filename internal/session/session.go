package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convogrid/voicewire/internal/config"
	"github.com/convogrid/voicewire/internal/turn"
	"github.com/convogrid/voicewire/pkg/audio"
	"github.com/convogrid/voicewire/pkg/capture"
	"github.com/convogrid/voicewire/pkg/playback"
	"github.com/convogrid/voicewire/pkg/transport"
	"github.com/convogrid/voicewire/pkg/wire"
)

// historyCap bounds the in-memory transcript history per session.
const historyCap = 200

// synthResult carries the outcome of an async local synthesis back into the
// event loop.
type synthResult struct {
	audio []byte
	err   error
}

// Session is one live conversation. All state mutation happens on the event
// loop goroutine; public methods only signal it.
type Session struct {
	id      string
	cfg     config.SessionConfig
	decodeT int
	deps    Deps
	cbs     Callbacks

	machine *turn.Machine
	queue   *playback.Queue

	playbackDrained chan uint64
	synthCh         chan synthResult
	control         chan turn.EventKind
	stopCh          chan struct{}
	stopOnce        sync.Once
	ended           chan struct{}
	endedOnce       sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	reason    EndReason
	history   []Transcript
	startedAt time.Time

	// Event-loop-local state.
	playSeq     uint64
	buffered    time.Duration
	decodeFails int
	droppedSeen uint64
	synthBusy   bool
	turnStart   time.Time
}

// droppedCounter is implemented by transports that shed outbound frames under
// backpressure and count what they shed.
type droppedCounter interface {
	Dropped() uint64
}

func newSession(cfg *config.Config, deps Deps, cbs Callbacks) *Session {
	if cbs.OnTranscript == nil {
		cbs.OnTranscript = func(Transcript) {}
	}
	if cbs.OnTurnChanged == nil {
		cbs.OnTurnChanged = func(turn.State) {}
	}
	if cbs.OnEnded == nil {
		cbs.OnEnded = func(EndReason) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:              uuid.NewString(),
		cfg:             cfg.Session,
		decodeT:         cfg.Transport.DecodeFailureThreshold,
		deps:            deps,
		cbs:             cbs,
		machine:         turn.NewMachine(turn.Config{MinUtterance: cfg.Session.MinUtterance()}),
		playbackDrained: make(chan uint64, 4),
		synthCh:         make(chan synthResult, 1),
		control:         make(chan turn.EventKind, 4),
		stopCh:          make(chan struct{}),
		ended:           make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
		startedAt:       time.Now(),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Done returns a channel closed when the session has fully ended.
func (s *Session) Done() <-chan struct{} { return s.ended }

// Reason returns the end reason. Valid once Done is closed.
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// State returns the current turn state. Snapshot only; it may be stale by the
// time the caller acts on it.
func (s *Session) State() turn.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// History returns a copy of the transcript lines delivered so far.
func (s *Session) History() []Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transcript, len(s.history))
	copy(out, s.history)
	return out
}

// Stop requests shutdown and blocks until the session has ended. Safe to
// call multiple times and from any goroutine.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.ended
}

// Suspend pauses the conversation: capture is muted and turn timers stop.
func (s *Session) Suspend() {
	select {
	case s.control <- turn.EventSuspend:
	case <-s.ended:
	}
}

// Resume continues a suspended conversation.
func (s *Session) Resume() {
	select {
	case s.control <- turn.EventResume:
	case <-s.ended:
	}
}

// start brings the session up: credentials, transport, handshake, capture.
// On failure it tears everything down, fires OnEnded with the appropriate
// reason, and returns the error.
func (s *Session) start(ctx context.Context) error {
	s.deps.Metrics.ActiveSessions.Add(s.ctx, 1)

	acquireCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout())
	defer cancel()

	creds, err := s.deps.Credentials(acquireCtx)
	if err != nil {
		return s.failStart(EndConnectFailed, fmt.Errorf("acquire credentials: %w", err))
	}

	ep := transport.Endpoint{URL: creds.Endpoint, AuthToken: creds.AuthToken}
	if err := s.deps.Transport.Open(acquireCtx, ep); err != nil {
		return s.failStart(EndConnectFailed, err)
	}

	init, err := s.deps.Codec.EncodeSessionInit(map[string]any{
		"session_id":        s.id,
		"sample_rate":       s.cfg.SampleRate,
		"chunk_interval_ms": s.cfg.ChunkIntervalMs,
	})
	if err != nil {
		return s.failStart(EndProtocolError, err)
	}
	if err := s.deps.Transport.Send(init); err != nil {
		return s.failStart(EndTransportFailed, err)
	}

	if err := s.deps.Capture.Arm(acquireCtx); err != nil {
		reason := EndDeviceLost
		if errors.Is(err, capture.ErrPermissionDenied) {
			reason = EndPermissionDenied
		}
		return s.failStart(reason, err)
	}

	s.queue = playback.New(s.deps.Sink, playback.Callbacks{
		OnDrained: func(lastPlayed uint64) {
			select {
			case s.playbackDrained <- lastPlayed:
			case <-s.ended:
			}
		},
	})

	s.apply(turn.Event{Kind: turn.EventArmed})

	slog.Info("session started", "session_id", s.id, "endpoint", creds.Endpoint)
	go s.run()
	return nil
}

// failStart tears down a partially started session and returns the terminal
// error. Must only be called from start, before the run loop exists.
func (s *Session) failStart(reason EndReason, cause error) error {
	err := &SessionError{Reason: reason, Cause: cause}
	slog.Error("session start failed", "session_id", s.id, "reason", reason, "err", cause)
	s.finish(reason, false)
	return err
}

// run is the session event loop. Every piece of turn-taking state is owned
// by this goroutine.
func (s *Session) run() {
	silence := newStoppedTimer()
	maxUtt := newStoppedTimer()
	defer silence.Stop()
	defer maxUtt.Stop()
	maxRunning := false

	chunks := s.deps.Capture.Chunks()
	frames := s.deps.Transport.Frames()

	for {
		select {
		case <-s.stopCh:
			s.endWith(turn.EventStop, EndStopped)
			return

		case kind := <-s.control:
			s.apply(turn.Event{Kind: kind})
			if kind == turn.EventSuspend || kind == turn.EventResume {
				// Either way the utterance in progress is abandoned.
				stopTimer(silence)
				stopTimer(maxUtt)
				maxRunning = false
			}

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				if err := s.deps.Capture.Err(); err != nil {
					slog.Warn("capture lost", "session_id", s.id, "err", err)
					s.endWith(turn.EventFatal, EndDeviceLost)
					return
				}
				continue
			}
			s.onChunk(chunk, silence, maxUtt, &maxRunning)

		case frame, ok := <-frames:
			if !ok {
				if err := s.deps.Transport.Err(); err != nil {
					slog.Warn("transport lost", "session_id", s.id, "err", err)
				} else {
					slog.Info("transport closed by remote", "session_id", s.id)
				}
				s.endWith(turn.EventFatal, EndTransportFailed)
				return
			}
			if ended := s.onFrame(frame); ended {
				return
			}

		case seq := <-s.playbackDrained:
			s.onDrained(seq)

		case res := <-s.synthCh:
			s.synthBusy = false
			if res.err != nil {
				s.deps.Metrics.RecordSynthRequest(s.ctx, "error")
				slog.Warn("local synthesis failed", "session_id", s.id, "err", res.err)
				continue
			}
			s.deps.Metrics.RecordSynthRequest(s.ctx, "ok")
			s.enqueueAgentAudio(res.audio)

		case <-silence.C:
			tr := s.apply(turn.Event{Kind: turn.EventSilenceTimeout, BufferedSpeech: s.buffered})
			stopTimer(maxUtt)
			maxRunning = false
			s.buffered = 0
			if tr.Changed {
				s.turnStart = time.Now()
			}

		case <-maxUtt.C:
			maxRunning = false
			tr := s.apply(turn.Event{Kind: turn.EventMaxUtterance})
			stopTimer(silence)
			s.buffered = 0
			if tr.Changed {
				s.turnStart = time.Now()
			}
		}
	}
}

// endWith applies the terminal machine event and finishes the session.
func (s *Session) endWith(kind turn.EventKind, reason EndReason) {
	s.apply(turn.Event{Kind: kind})
	s.finish(reason, true)
}

// onDrained handles a drained notification from the playback queue. A
// notification for anything but the newest enqueued sequence is stale: more
// agent audio was queued after it fired, so the speaking turn is not over.
func (s *Session) onDrained(seq uint64) {
	if seq != s.playSeq {
		slog.Debug("stale drained notification ignored", "session_id", s.id, "seq", seq, "newest", s.playSeq)
		return
	}
	s.apply(turn.Event{Kind: turn.EventPlaybackDrained})
}

// onChunk streams one captured chunk to the agent and advances the
// utterance accounting.
func (s *Session) onChunk(chunk audio.Chunk, silence, maxUtt *time.Timer, maxRunning *bool) {
	frame := s.deps.Codec.EncodeAudio(chunk.Data)
	if err := s.deps.Transport.Send(frame); err != nil {
		// The frames channel will close shortly; let that path decide.
		slog.Debug("send failed", "session_id", s.id, "err", err)
		return
	}
	s.deps.Metrics.ChunksCaptured.Add(s.ctx, 1)
	s.deps.Metrics.FramesSent.Add(s.ctx, 1)
	if dc, ok := s.deps.Transport.(droppedCounter); ok {
		if n := dc.Dropped(); n > s.droppedSeen {
			s.deps.Metrics.FramesDropped.Add(s.ctx, int64(n-s.droppedSeen))
			s.droppedSeen = n
		}
	}

	if s.machine.State() != turn.StateListening {
		return
	}
	if !s.deps.Detector.Active(chunk) {
		return
	}
	s.buffered += chunk.Duration()
	resetTimer(silence, s.cfg.SilenceTimeout())
	if !*maxRunning {
		resetTimer(maxUtt, s.cfg.MaxUtterance())
		*maxRunning = true
	}
}

// onFrame decodes and dispatches one inbound frame. Reports whether the
// session ended as a result.
func (s *Session) onFrame(frame transport.Frame) bool {
	ev, err := s.deps.Codec.Decode(frame)
	if err != nil {
		s.decodeFails++
		s.deps.Metrics.DecodeFailures.Add(s.ctx, 1)
		slog.Warn("frame decode failed", "session_id", s.id, "err", err, "consecutive", s.decodeFails)
		if s.decodeFails >= s.decodeT {
			s.endWith(turn.EventFatal, EndProtocolError)
			return true
		}
		return false
	}
	s.decodeFails = 0
	if ev == nil {
		return false
	}

	switch e := ev.(type) {
	case wire.UserTranscript:
		s.deliverTranscript(Transcript{Speaker: SpeakerUser, Text: e.Text, IsFinal: e.IsFinal})

	case wire.AgentResponse:
		s.deliverTranscript(Transcript{Speaker: SpeakerAgent, Text: e.Text, IsFinal: true})
		s.maybeSynthesize(e.Text)

	case wire.AgentAudio:
		s.enqueueAgentAudio(e.Audio)

	case wire.ServerError:
		slog.Warn("agent reported error", "session_id", s.id, "message", e.Message)
	}
	return false
}

// deliverTranscript records the line and invokes the caller's callback.
func (s *Session) deliverTranscript(t Transcript) {
	s.mu.Lock()
	if len(s.history) >= historyCap {
		s.history = s.history[1:]
	}
	s.history = append(s.history, t)
	s.mu.Unlock()

	s.deps.Metrics.RecordTranscript(s.ctx, string(t.Speaker))
	s.cbs.OnTranscript(t)
}

// maybeSynthesize kicks off local synthesis for a text-only agent reply.
// Only one synthesis runs at a time, and only while an answer is awaited.
func (s *Session) maybeSynthesize(text string) {
	if s.deps.Synth == nil || s.synthBusy || text == "" {
		return
	}
	if s.machine.State() != turn.StateProcessing {
		return
	}
	s.synthBusy = true
	go func() {
		audio, err := s.deps.Synth.Synthesize(s.ctx, text, s.cfg.SampleRate)
		select {
		case s.synthCh <- synthResult{audio: audio, err: err}:
		case <-s.ended:
		}
	}()
}

// enqueueAgentAudio queues one agent chunk for playback and lets the machine
// take the speaking turn.
func (s *Session) enqueueAgentAudio(pcm []byte) {
	s.playSeq++
	item := playback.Item{
		Seq: s.playSeq,
		Chunk: audio.Chunk{
			Data:       pcm,
			Seq:        s.playSeq,
			SampleRate: s.cfg.SampleRate,
			Source:     audio.SourceRemote,
		},
	}
	if err := s.queue.Enqueue(item); err != nil {
		if errors.Is(err, playback.ErrStaleItem) {
			slog.Debug("stale agent audio dropped", "session_id", s.id, "seq", item.Seq)
			return
		}
		slog.Debug("enqueue failed", "session_id", s.id, "err", err)
		return
	}

	tr := s.apply(turn.Event{Kind: turn.EventAgentAudio})
	if tr.Changed && tr.From == turn.StateProcessing && !s.turnStart.IsZero() {
		s.deps.Metrics.TurnDuration.Record(s.ctx, time.Since(s.turnStart).Seconds())
		s.turnStart = time.Time{}
	}
}

// apply runs one event through the machine and executes the resulting
// commands.
func (s *Session) apply(ev turn.Event) turn.Transition {
	s.mu.Lock()
	tr := s.machine.Apply(ev)
	s.mu.Unlock()

	for _, cmd := range tr.Commands {
		switch cmd {
		case turn.CmdMute:
			s.deps.Capture.Mute()
		case turn.CmdUnmute:
			s.deps.Capture.Unmute()
		case turn.CmdFlush:
			// Timer and buffer resets live with the loop that owns them.
		case turn.CmdDisarm:
			_ = s.deps.Capture.Disarm()
		case turn.CmdCloseTransport:
			_ = s.deps.Transport.Close()
		}
	}

	if tr.Changed {
		slog.Debug("turn state changed",
			"session_id", s.id,
			"from", tr.From,
			"to", tr.To,
		)
		s.deps.Metrics.RecordTurnTransition(s.ctx, tr.From.String(), tr.To.String())
		s.cbs.OnTurnChanged(tr.To)
	}
	return tr
}

// finish completes the session exactly once: it unblocks playback
// callbacks, shuts the queue and sink down, and fires OnEnded.
func (s *Session) finish(reason EndReason, terminalApplied bool) {
	s.endedOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()

		// Closed first so queue callbacks stuck forwarding into the event
		// loop fall through instead of deadlocking against queue.Close.
		close(s.ended)
		s.cancel()

		if !terminalApplied {
			s.apply(turn.Event{Kind: turn.EventFatal})
		}
		if s.queue != nil {
			s.queue.Close()
		}
		_ = s.deps.Sink.Close()

		s.deps.Metrics.ActiveSessions.Add(context.Background(), -1)
		s.deps.Metrics.SessionDuration.Record(context.Background(), time.Since(s.startedAt).Seconds())

		slog.Info("session ended", "session_id", s.id, "reason", reason)
		s.cbs.OnEnded(reason)
	})
}

// ── timer helpers ────────────────────────────────────────────────────────────

// newStoppedTimer returns a timer that will not fire until reset.
func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
