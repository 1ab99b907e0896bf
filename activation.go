package vrcore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/panovr/vrcore/compat"
	"github.com/panovr/vrcore/faults"
	"github.com/panovr/vrcore/storage"
)

// ActivateVR runs the full activation sequence: compatibility check,
// permission request, stereo plugin activation, gyroscope start, fullscreen
// request. On success the status becomes active. Any fatal failure is
// classified, recorded in the state, routed through the recovery engine and
// returned to the caller.
//
// Calling ActivateVR while an activation is already requesting, or while VR
// is already active, is a no-op: the requesting status is the mutual
// exclusion that guarantees the underlying plugin toggle runs exactly once.
func (m *Manager) ActivateVR(ctx context.Context) error {
	if err := m.alive(); err != nil {
		return err
	}

	entered := m.transition(func(s *State) bool {
		if s.Status == StatusRequesting || s.Status == StatusActive {
			return false
		}
		s.Status = StatusRequesting
		s.Error = ""
		return true
	})
	if !entered {
		m.log.Debug("manager", "activation already in progress, ignoring duplicate call", nil)
		return nil
	}

	// Tie the sequence to the manager lifetime so Close rejects in-flight
	// waits (there is no way to cancel a platform permission prompt, but
	// the wait on it must end).
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.lifetime, cancel)
	defer stop()

	vrErr := m.runActivation(ctx)
	if err := m.alive(); err != nil {
		// Destroyed mid-flight: reject without touching state; Close
		// already reset it.
		return err
	}
	if vrErr != nil {
		m.handleFatal(vrErr, "activate")
		return vrErr
	}

	m.setState(func(s *State) {
		s.Status = StatusActive
		s.Error = ""
	})
	m.log.Info("manager", "VR mode active", nil)
	return nil
}

// DeactivateVR is the best-effort mirror of activation: stereo is toggled
// or exited, the gyroscope stopped, fullscreen exited. Every step swallows
// its own failure — deactivation must never leave the UI stuck — and the
// status is unconditionally idle afterwards.
func (m *Manager) DeactivateVR(ctx context.Context) error {
	if err := m.alive(); err != nil {
		return err
	}

	if handle := m.cfg.Viewer.Plugin(PluginStereo); handle != nil {
		switch p := handle.(type) {
		case StereoToggler:
			m.absorb("stereo toggle during deactivation", func() error { return p.Toggle() })
		case StereoExiter:
			m.absorb("stereo exit during deactivation", func() error { return p.Exit() })
		default:
			m.log.Debug("plugin", "stereo plugin has no toggle or exit capability", nil)
		}
	}

	if handle := m.cfg.Viewer.Plugin(PluginGyroscope); handle != nil {
		running := true
		if status, ok := handle.(GyroscopeStatus); ok {
			running = status.Enabled()
		}
		if stopper, ok := handle.(GyroscopeStopper); ok && running {
			m.absorb("gyroscope stop", func() error { return stopper.Stop() })
		}
	}

	if exiter, ok := m.cfg.Container.(FullscreenExiter); ok {
		m.absorb("fullscreen exit", func() error { return exiter.ExitFullscreen() })
	}

	m.absorb("plugin state flag clear", func() error {
		return m.cfg.Store.Delete(storage.KeyPluginState)
	})

	m.setState(func(s *State) {
		s.Status = StatusIdle
		s.Error = ""
	})
	m.log.Info("manager", "VR mode deactivated", nil)
	return nil
}

// ToggleVR dispatches on the current status: idle activates, active
// deactivates, requesting is a no-op, error resets to idle and retries
// activation.
func (m *Manager) ToggleVR(ctx context.Context) error {
	if err := m.alive(); err != nil {
		return err
	}

	switch m.State().Status {
	case StatusIdle:
		return m.ActivateVR(ctx)
	case StatusActive:
		return m.DeactivateVR(ctx)
	case StatusRequesting:
		m.log.Debug("manager", "toggle ignored while activation in progress", nil)
		return nil
	default: // StatusError
		m.setState(func(s *State) {
			s.Status = StatusIdle
			s.Error = ""
		})
		return m.ActivateVR(ctx)
	}
}

// runActivation executes the ordered activation steps and returns the fatal
// classified error, if any. Non-essential steps (gyroscope, fullscreen)
// absorb their own failures.
func (m *Manager) runActivation(ctx context.Context) *faults.VRError {
	// Honor the disabled marker left by an exhausted retry budget.
	if v, ok, _ := m.cfg.Store.Get(storage.KeyDisabled); ok && v == "true" {
		return m.classifier.New(faults.CategoryCompatibility,
			"VR is disabled for this session after repeated failures", nil, nil)
	}

	report := m.oracle.Report()
	if report.Tier == compat.TierNone {
		return m.classifier.New(faults.CategoryCompatibility,
			"VR is unsupported in this environment", nil,
			map[string]any{"tier": string(report.Tier), "warnings": report.Warnings})
	}
	if m.IsIOSDevice() && !report.Features.DeviceOrientation {
		return m.classifier.New(faults.CategoryCompatibility,
			"device orientation is unsupported on this iOS device", nil, nil)
	}

	granted, vrErr := m.requestPermissions(ctx)
	if vrErr != nil {
		return vrErr
	}
	if !granted {
		return m.classifier.New(faults.CategoryPermission,
			"device orientation permission denied", ErrPermissionDenied, nil)
	}

	handle := m.cfg.Viewer.Plugin(PluginStereo)
	if handle == nil {
		return m.classifier.New(faults.CategoryPlugin,
			"stereo plugin is not available on the viewer", nil, nil)
	}

	// A stereo failure is logged as non-fatal so isolated plugin issues do
	// not block the remaining steps, but the activation as a whole still
	// surfaces it: stereo is the primary VR feature.
	stereoErr := m.toggleStereo(ctx, handle)
	if stereoErr != nil {
		m.log.Warn("plugin", "stereo toggle failed, continuing with other VR features", map[string]any{
			"error": stereoErr.Message,
		})
	} else {
		m.absorb("plugin state flag write", func() error {
			return m.cfg.Store.Set(storage.KeyPluginState, "stereo-active")
		})
	}

	m.activateGyroscope()
	m.requestFullscreen()

	return stereoErr
}

// toggleStereo performs the guarded stereo plugin call: prefer Toggle,
// fall back to Enter, bounded by the configured timeout. A handle with
// neither capability yields a plugin error enumerating what it does expose.
func (m *Manager) toggleStereo(ctx context.Context, handle any) *faults.VRError {
	var call func() error
	var method string
	switch p := handle.(type) {
	case StereoToggler:
		call, method = p.Toggle, "toggle"
	case StereoEnterer:
		call, method = p.Enter, "enter"
	default:
		return m.classifier.New(faults.CategoryPlugin,
			fmt.Sprintf("stereo plugin exposes neither toggle nor enter (available: %s)",
				strings.Join(stereoCapabilities(handle), ", ")),
			nil, nil)
	}

	done := make(chan error, 1)
	go func() {
		done <- guarded(call)
	}()

	timer := time.NewTimer(m.cfg.StereoTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return m.classifier.New(faults.CategoryPlugin,
				fmt.Sprintf("stereo %s failed: %v", method, err), err,
				map[string]any{"method": method})
		}
		m.log.Debug("plugin", "stereo mode toggled", map[string]any{"method": method})
		return nil
	case <-timer.C:
		return m.classifier.New(faults.CategoryTimeout,
			fmt.Sprintf("stereo %s timed out after %s", method, m.cfg.StereoTimeout), nil,
			map[string]any{"method": method})
	case <-ctx.Done():
		return m.classifier.New(faults.CategoryTimeout,
			fmt.Sprintf("stereo %s interrupted: %v", method, ctx.Err()), ctx.Err(), nil)
	case <-m.lifetime.Done():
		return m.classifier.New(faults.CategoryTimeout,
			"stereo activation abandoned: manager destroyed", ErrDestroyed, nil)
	}
}

// activateGyroscope starts the gyroscope plugin if present and not already
// running. Gyroscope failures are always non-fatal: it is an enhancement,
// not a requirement.
func (m *Manager) activateGyroscope() {
	handle := m.cfg.Viewer.Plugin(PluginGyroscope)
	if handle == nil {
		m.log.Debug("plugin", "gyroscope plugin not available", nil)
		return
	}
	if status, ok := handle.(GyroscopeStatus); ok && status.Enabled() {
		m.log.Debug("plugin", "gyroscope already enabled", nil)
		return
	}
	starter, ok := handle.(GyroscopeStarter)
	if !ok {
		m.log.Debug("plugin", "gyroscope plugin has no start capability", nil)
		return
	}
	m.absorb("gyroscope start", func() error { return starter.Start() })
}

// requestFullscreen asks the container for fullscreen presentation.
// Absence or failure is non-fatal.
func (m *Manager) requestFullscreen() {
	requester, ok := m.cfg.Container.(FullscreenRequester)
	if !ok {
		m.log.Debug("manager", "container has no fullscreen capability", nil)
		return
	}
	m.absorb("fullscreen request", func() error { return requester.RequestFullscreen() })
}

// handleFatal is the unified error path: log with full context, flip the
// state to error with the user-facing message, and run the recovery engine.
// Recovery runs off the calling goroutine — the caller's error return must
// not wait on retry delays — and on success resets the state to idle so the
// next toggle retries cleanly; on failure the error state remains.
func (m *Manager) handleFatal(vrErr *faults.VRError, operation string) {
	m.log.Error(string(vrErr.Category), vrErr.Message, map[string]any{
		"error_id":  vrErr.ID,
		"severity":  string(vrErr.Severity),
		"strategy":  string(vrErr.Strategy),
		"operation": operation,
	})

	m.setState(func(s *State) {
		s.Status = StatusError
		s.Error = vrErr.UserMessage
	})

	go func() {
		result := m.recovery.Attempt(m.lifetime, vrErr)
		m.log.Info("recovery", "recovery result", map[string]any{
			"success":  result.Success,
			"action":   string(result.Action),
			"terminal": result.Terminal,
		})

		if m.alive() != nil {
			return
		}
		if result.Action == faults.ActionFallback {
			m.fallbacks.ActivateRecommended(m.oracle.Report())
		}
		if result.Success {
			m.transition(func(s *State) bool {
				if s.Status != StatusError {
					return false
				}
				s.Status = StatusIdle
				s.Error = ""
				return true
			})
		}
	}()
}

// absorb runs a non-essential step, logging and swallowing its failure.
func (m *Manager) absorb(step string, fn func() error) {
	if err := guarded(fn); err != nil {
		m.log.Warn("manager", step+" failed", map[string]any{"error": err.Error()})
	}
}

// guarded invokes fn, converting a panic into an error. Plugin handles are
// host-supplied; a panicking handle must not take the state machine down.
func guarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
