package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/convogrid/voicewire/internal/config"
	"github.com/convogrid/voicewire/internal/observe"
	"github.com/convogrid/voicewire/pkg/activity"
)

// ErrSessionActive is returned by Start while another session is live.
var ErrSessionActive = errors.New("session: another session is active")

// Manager enforces the one-live-session rule. Exactly one session exists at
// a time; a new one can only start after the previous one ended.
type Manager struct {
	cfg *config.Config

	mu     sync.Mutex
	active *Session
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg}
}

// Start validates deps, brings a new session up, and registers it as the
// active one. It fails with ErrSessionActive if a previous session has not
// ended yet.
func (m *Manager) Start(ctx context.Context, deps Deps, cbs Callbacks) (*Session, error) {
	if err := validateDeps(&deps); err != nil {
		return nil, err
	}
	if deps.Detector == nil {
		deps.Detector = activity.NewThreshold(int16(m.cfg.Session.MinAmplitude))
	}

	m.mu.Lock()
	if m.active != nil {
		select {
		case <-m.active.Done():
			m.active = nil
		default:
			m.mu.Unlock()
			return nil, ErrSessionActive
		}
	}
	s := newSession(m.cfg, deps, cbs)
	m.active = s
	m.mu.Unlock()

	if err := s.start(ctx); err != nil {
		m.mu.Lock()
		if m.active == s {
			m.active = nil
		}
		m.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// Active returns the live session, or nil when none is running.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	select {
	case <-m.active.Done():
		m.active = nil
		return nil
	default:
		return m.active
	}
}

// Stop ends the active session, if any, and blocks until it is gone.
func (m *Manager) Stop() {
	if s := m.Active(); s != nil {
		s.Stop()
	}
}

func validateDeps(deps *Deps) error {
	var errs []error
	if deps.Credentials == nil {
		errs = append(errs, errors.New("credentials func is required"))
	}
	if deps.Transport == nil {
		errs = append(errs, errors.New("transport channel is required"))
	}
	if deps.Capture == nil {
		errs = append(errs, errors.New("capture source is required"))
	}
	if deps.Sink == nil {
		errs = append(errs, errors.New("playback sink is required"))
	}
	if deps.Codec == nil {
		errs = append(errs, errors.New("wire codec is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("session: invalid deps: %w", errors.Join(errs...))
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return nil
}
