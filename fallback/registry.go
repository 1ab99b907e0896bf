// Package fallback enumerates the degraded-mode behaviors used when a VR
// capability is missing: pointer-driven look-around instead of a gyroscope,
// CSS pseudo-fullscreen instead of the fullscreen API, simulated orientation
// instead of real sensors. Strategies are keyed by the missing capability
// and activate/deactivate idempotently, independently of the VR manager.
//
// The actual DOM/host side effects live behind the Host interface; the
// registry owns which strategies exist, when they apply, and which are
// currently active.
package fallback

import (
	"fmt"
	"sync"

	"github.com/panovr/vrcore/compat"
	"github.com/panovr/vrcore/logging"
)

// Capability names a platform capability a strategy substitutes for.
type Capability string

// Capabilities with registered fallbacks.
const (
	CapabilityDeviceOrientation Capability = "deviceOrientation"
	CapabilityFullscreen        Capability = "fullscreen"
	CapabilityGyroscope         Capability = "gyroscope"
	CapabilityPermissions       Capability = "permissions"
	CapabilitySecureContext     Capability = "secureContext"
)

// Host performs the platform side effects of fallback strategies. Hosts
// attach/detach listeners, toggle CSS classes and mutate the viewport meta
// tag; tests supply recorders. All methods must be idempotent-tolerant: the
// registry guarantees it will not call an activate hook twice without a
// deactivate in between, but hooks should still not corrupt state if it
// happens.
type Host interface {
	// EnablePointerLook attaches mouse/touch listeners that steer the view
	// in place of device orientation.
	EnablePointerLook() error
	// DisablePointerLook detaches the pointer listeners.
	DisablePointerLook() error
	// EnterPseudoFullscreen applies the full-viewport presentation (CSS
	// class + viewport meta tag).
	EnterPseudoFullscreen() error
	// ExitPseudoFullscreen restores the normal presentation.
	ExitPseudoFullscreen() error
	// StartSimulatedOrientation begins synthesizing orientation from
	// pointer movement.
	StartSimulatedOrientation() error
	// StopSimulatedOrientation stops synthesizing orientation.
	StopSimulatedOrientation() error
}

// NopHost is a Host whose hooks do nothing. Useful for headless hosts and
// tests that only care about registry bookkeeping.
type NopHost struct{}

// EnablePointerLook implements Host.
func (NopHost) EnablePointerLook() error { return nil }

// DisablePointerLook implements Host.
func (NopHost) DisablePointerLook() error { return nil }

// EnterPseudoFullscreen implements Host.
func (NopHost) EnterPseudoFullscreen() error { return nil }

// ExitPseudoFullscreen implements Host.
func (NopHost) ExitPseudoFullscreen() error { return nil }

// StartSimulatedOrientation implements Host.
func (NopHost) StartSimulatedOrientation() error { return nil }

// StopSimulatedOrientation implements Host.
func (NopHost) StopSimulatedOrientation() error { return nil }

// strategy couples a trigger condition with activate/deactivate hooks.
type strategy struct {
	name       string
	trigger    func(compat.Report) bool
	activate   func(Host) error
	deactivate func(Host) error
}

// strategies is the fixed capability-to-strategy table.
var strategies = map[Capability]strategy{
	CapabilityDeviceOrientation: {
		name:       "pointer-look",
		trigger:    func(r compat.Report) bool { return !r.Features.DeviceOrientation },
		activate:   Host.EnablePointerLook,
		deactivate: Host.DisablePointerLook,
	},
	CapabilityFullscreen: {
		name:       "pseudo-fullscreen",
		trigger:    func(r compat.Report) bool { return !r.Features.Fullscreen },
		activate:   Host.EnterPseudoFullscreen,
		deactivate: Host.ExitPseudoFullscreen,
	},
	CapabilityGyroscope: {
		name:       "simulated-orientation",
		trigger:    func(r compat.Report) bool { return !r.Features.Gyroscope },
		activate:   Host.StartSimulatedOrientation,
		deactivate: Host.StopSimulatedOrientation,
	},
	CapabilityPermissions: {
		name: "pointer-look",
		trigger: func(r compat.Report) bool {
			return r.Browser.Platform == compat.PlatformIOS && !r.Features.OrientationPermission
		},
		activate:   Host.EnablePointerLook,
		deactivate: Host.DisablePointerLook,
	},
	CapabilitySecureContext: {
		name:       "pointer-look",
		trigger:    func(r compat.Report) bool { return !r.Features.SecureContext },
		activate:   Host.EnablePointerLook,
		deactivate: Host.DisablePointerLook,
	},
}

// Registry tracks which fallback strategies are active. It is safe for
// concurrent use.
type Registry struct {
	host Host
	log  *logging.Logger

	mu     sync.Mutex
	active map[Capability]bool
}

// NewRegistry creates a Registry over the given host. A nil host gets
// NopHost; a nil logger gets a discard logger.
func NewRegistry(host Host, log *logging.Logger) *Registry {
	if host == nil {
		host = NopHost{}
	}
	if log == nil {
		log = logging.New(logging.Config{})
	}
	return &Registry{
		host:   host,
		log:    log,
		active: make(map[Capability]bool),
	}
}

// Activate enables the fallback for the given capability. Activating an
// already-active fallback is a no-op.
func (r *Registry) Activate(capability Capability) error {
	s, ok := strategies[capability]
	if !ok {
		return fmt.Errorf("no fallback registered for capability %q", capability)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[capability] {
		return nil
	}
	if err := s.activate(r.host); err != nil {
		return fmt.Errorf("activate %s fallback: %w", s.name, err)
	}
	r.active[capability] = true
	r.log.Info("fallback", "fallback activated", map[string]any{
		"capability": string(capability),
		"strategy":   s.name,
	})
	return nil
}

// Deactivate disables the fallback for the given capability. Deactivating
// an inactive fallback is a no-op.
func (r *Registry) Deactivate(capability Capability) error {
	s, ok := strategies[capability]
	if !ok {
		return fmt.Errorf("no fallback registered for capability %q", capability)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active[capability] {
		return nil
	}
	if err := s.deactivate(r.host); err != nil {
		return fmt.Errorf("deactivate %s fallback: %w", s.name, err)
	}
	delete(r.active, capability)
	r.log.Info("fallback", "fallback deactivated", map[string]any{
		"capability": string(capability),
		"strategy":   s.name,
	})
	return nil
}

// ActivateRecommended activates every fallback whose trigger condition
// holds for the given report. Individual activation failures are logged and
// do not abort the batch. It returns the capabilities now active because of
// this call.
func (r *Registry) ActivateRecommended(report compat.Report) []Capability {
	var activated []Capability
	for capability, s := range strategies {
		if !s.trigger(report) {
			continue
		}
		if err := r.Activate(capability); err != nil {
			r.log.Warn("fallback", "fallback activation failed", map[string]any{
				"capability": string(capability),
				"error":      err.Error(),
			})
			continue
		}
		activated = append(activated, capability)
	}
	return activated
}

// DeactivateAll deactivates every active fallback, tolerating individual
// failures.
func (r *Registry) DeactivateAll() {
	for _, capability := range r.Active() {
		if err := r.Deactivate(capability); err != nil {
			r.log.Warn("fallback", "fallback deactivation failed", map[string]any{
				"capability": string(capability),
				"error":      err.Error(),
			})
		}
	}
}

// Active returns the currently active capabilities in unspecified order.
func (r *Registry) Active() []Capability {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Capability, 0, len(r.active))
	for capability := range r.active {
		out = append(out, capability)
	}
	return out
}

// IsActive reports whether the fallback for the capability is active.
func (r *Registry) IsActive(capability Capability) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[capability]
}
