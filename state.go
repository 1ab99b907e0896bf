package vrcore

// Status is the VR activation state.
type Status string

// Activation states. idle is initial; requesting guards the activation
// sequence against re-entry; error is recoverable via toggle.
const (
	StatusIdle       Status = "idle"
	StatusRequesting Status = "requesting"
	StatusActive     Status = "active"
	StatusError      Status = "error"
)

// PermissionStatus is the cached outcome of the platform permission prompt.
type PermissionStatus string

// Permission statuses. The status is monotonic within a session except for
// an explicit reset.
const (
	PermissionUnknown PermissionStatus = "unknown"
	PermissionGranted PermissionStatus = "granted"
	PermissionDenied  PermissionStatus = "denied"
)

// State is the externally visible VR state. Error carries the user-facing
// message of the last fatal failure, empty otherwise.
type State struct {
	Status           Status           `json:"status"`
	PermissionStatus PermissionStatus `json:"permission_status"`
	Error            string           `json:"error,omitempty"`
}

// Listener observes state changes. Listeners are invoked synchronously
// after every state mutation; panics raised by a listener are caught and
// logged, never propagated.
type Listener func(State)

// Subscribe registers a listener and returns its unsubscribe function.
// The unsubscribe function is idempotent.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// setState mutates the state through the single update path and notifies
// listeners. All state changes go through here or through transition.
func (m *Manager) setState(mutate func(*State)) {
	m.transition(func(s *State) bool {
		mutate(s)
		return true
	})
}

// notify invokes one listener, absorbing panics. Listener failures must
// never break the state machine.
func (m *Manager) notify(fn Listener, s State) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("state", "state listener panicked", map[string]any{
				"panic": r,
			})
		}
	}()
	fn(s)
}
