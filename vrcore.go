// Package vrcore drives the VR mode (stereo split-screen + gyroscope look
// direction) of a panorama viewer host. The host owns rendering and UI; it
// injects capabilities (viewer, plugin handles, container, environment
// probes, flag storage) and the Manager sequences the fragile activation
// path — permission prompt, plugin activation, fullscreen — across wildly
// inconsistent platforms, guaranteeing the state machine always lands in a
// well-defined state.
//
// Every failure is classified into the faults package's taxonomy and routed
// through its recovery engine; the structured log store and the diagnostics
// snapshot exist to make partial failures debuggable from the field.
package vrcore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/panovr/vrcore/compat"
	"github.com/panovr/vrcore/fallback"
	"github.com/panovr/vrcore/faults"
	"github.com/panovr/vrcore/logging"
)

// Sentinel errors, matched with errors.Is through the classified error's
// Unwrap chain.
var (
	// ErrDestroyed is returned by every public method after Close.
	ErrDestroyed = errors.New("vrcore: manager destroyed")

	// ErrPermissionDenied underlies the activation failure when the user
	// declines the device orientation prompt.
	ErrPermissionDenied = errors.New("vrcore: device orientation permission denied")
)

// Manager is the VR activation state machine. It owns the single source of
// truth for VR status and permission status. A Manager and its logger,
// classifier and recovery engine are created together and destroyed
// together by Close. It is safe for concurrent use.
type Manager struct {
	cfg       Config
	sessionID string

	log        *logging.Logger
	classifier *faults.Classifier
	recovery   *faults.Engine
	oracle     *compat.Oracle
	fallbacks  *fallback.Registry

	mu           sync.Mutex
	state        State
	listeners    map[int]Listener
	nextListener int
	destroyed    bool

	// lifetime governs every in-flight wait; cancelled by Close so
	// suspended activations reject instead of hanging.
	lifetime  context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a Manager from the given configuration.
func New(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	sessionID := uuid.New().String()
	log := logging.New(logging.Config{
		MinLevel:   cfg.LogLevel,
		MaxEntries: cfg.MaxLogEntries,
		Sink:       cfg.LogSink,
	})
	log.SetContext(map[string]string{"session_id": sessionID})

	lifetime, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:        cfg,
		sessionID:  sessionID,
		log:        log,
		classifier: faults.NewClassifier(cfg.MaxErrorHistory),
		recovery: faults.NewEngine(faults.EngineConfig{
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Policy:     cfg.FallbackPolicy,
			Store:      cfg.Store,
			Logger:     log,
			Reload:     cfg.Reload,
		}),
		oracle:    compat.NewOracle(cfg.Environment),
		fallbacks: fallback.NewRegistry(cfg.FallbackHost, log),
		state: State{
			Status:           StatusIdle,
			PermissionStatus: PermissionUnknown,
		},
		listeners: make(map[int]Listener),
		lifetime:  lifetime,
		cancel:    cancel,
	}
	if cfg.OnStateChange != nil {
		m.listeners[m.nextListener] = cfg.OnStateChange
		m.nextListener++
	}

	m.log.Info("manager", "VR manager created", map[string]any{
		"browser":  m.oracle.Report().Browser.Name,
		"platform": string(m.oracle.Report().Browser.Platform),
		"tier":     string(m.oracle.Report().Tier),
	})
	return m, nil
}

// SessionID returns the identifier tagged onto this manager's logs and
// diagnostics.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// State returns a copy of the current VR state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PermissionStatus returns the cached permission outcome.
func (m *Manager) PermissionStatus() PermissionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.PermissionStatus
}

// ResetPermissionStatus clears the permission cache so the next activation
// re-runs the platform prompt.
func (m *Manager) ResetPermissionStatus() error {
	if err := m.alive(); err != nil {
		return err
	}
	m.setState(func(s *State) {
		s.PermissionStatus = PermissionUnknown
	})
	m.log.Info("permission", "permission status reset", nil)
	return nil
}

// Logger exposes the manager's log store for diagnostics surfaces.
func (m *Manager) Logger() *logging.Logger {
	return m.log
}

// Classifier exposes the manager's error classifier.
func (m *Manager) Classifier() *faults.Classifier {
	return m.classifier
}

// Recovery exposes the manager's recovery engine.
func (m *Manager) Recovery() *faults.Engine {
	return m.recovery
}

// Fallbacks exposes the degraded-mode strategy registry.
func (m *Manager) Fallbacks() *fallback.Registry {
	return m.fallbacks
}

// Compat exposes the compatibility oracle.
func (m *Manager) Compat() *compat.Oracle {
	return m.oracle
}

// ErrorStats returns the classifier's aggregate counters.
func (m *Manager) ErrorStats() faults.ErrorStats {
	return m.classifier.Stats()
}

// IsIOSDevice reports whether the environment is an iOS device.
func (m *Manager) IsIOSDevice() bool {
	return compat.IsIOSDevice(m.cfg.Environment)
}

// PermissionsRequired reports whether activation will need an explicit
// permission prompt (iOS 13+ with the permission request function present).
func (m *Manager) PermissionsRequired() bool {
	env := m.cfg.Environment
	return compat.IsIOSDevice(env) && env.HasDeviceOrientation() && env.HasOrientationPermissionAPI()
}

// Close destroys the manager: it cancels all in-flight waits, clears error
// and recovery history, resets the state to its initial shape, and makes
// every further public call fail with ErrDestroyed. Close is idempotent and
// safe to call while an activation is in flight.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.destroyed = true
		m.state = State{Status: StatusIdle, PermissionStatus: PermissionUnknown}
		m.listeners = make(map[int]Listener)
		m.mu.Unlock()

		m.cancel()
		m.fallbacks.DeactivateAll()
		m.classifier.Reset()
		m.recovery.Reset()
		m.log.Info("manager", "VR manager destroyed", nil)
	})
	return nil
}

// alive returns ErrDestroyed once Close has run.
func (m *Manager) alive() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return ErrDestroyed
	}
	return nil
}

// transition runs mutate under the state lock; if mutate reports a change,
// listeners are notified with the new snapshot. Returns mutate's report.
func (m *Manager) transition(mutate func(*State) bool) bool {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return false
	}
	if !mutate(&m.state) {
		m.mu.Unlock()
		return false
	}
	snapshot := m.state
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		m.notify(fn, snapshot)
	}
	return true
}
