package vrcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/panovr/vrcore/faults"
	"github.com/panovr/vrcore/storage"
)

// RequestPermissions runs the device-orientation permission protocol and
// reports whether permission is granted. The outcome is cached: once
// granted or denied, subsequent calls return immediately without
// re-prompting — the platform dialog is a one-shot user gesture, and on iOS
// cannot be re-shown without a fresh one. ResetPermissionStatus clears the
// cache.
//
// A denied prompt is not an error; the boolean carries the outcome. Errors
// are reserved for protocol failures (missing capability, prompt that never
// settles).
func (m *Manager) RequestPermissions(ctx context.Context) (bool, error) {
	if err := m.alive(); err != nil {
		return false, err
	}
	granted, vrErr := m.requestPermissions(ctx)
	if vrErr != nil {
		return false, vrErr
	}
	return granted, nil
}

// requestPermissions implements the protocol, returning a classified error
// on failure paths that are not a plain denial.
func (m *Manager) requestPermissions(ctx context.Context) (bool, *faults.VRError) {
	switch m.PermissionStatus() {
	case PermissionGranted:
		return true, nil
	case PermissionDenied:
		return false, nil
	}

	// Non-iOS platforms never gate orientation behind a prompt: permission
	// is synthesized as granted, and sensor absence only limits features.
	if !m.IsIOSDevice() {
		m.setPermission(PermissionGranted)
		return true, nil
	}

	env := m.cfg.Environment
	if !env.HasDeviceOrientation() {
		return false, m.classifier.New(faults.CategoryCompatibility,
			"device orientation events are unsupported on this iOS device", nil, nil)
	}

	// iOS before 13 has orientation events but no permission function;
	// access is implicitly granted.
	if !env.HasOrientationPermissionAPI() {
		m.log.Info("permission", "no permission prompt on this iOS version, assuming granted", nil)
		m.setPermission(PermissionGranted)
		return true, nil
	}

	if m.cfg.Permissions == nil {
		return false, m.classifier.New(faults.CategoryPermission,
			"permission prompt required but no permission requester configured", nil, nil)
	}

	m.log.Info("permission", "requesting device orientation permission", nil)
	response, err := m.cfg.Permissions.RequestOrientationPermission(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, m.classifier.New(faults.CategoryTimeout,
				"permission request did not settle", err, nil)
		}
		return false, m.classifier.New(faults.CategoryPermission,
			fmt.Sprintf("permission request failed: %v", err), err, nil)
	}

	// Anything other than an explicit grant is a denial.
	if response == permissionResponseGranted {
		m.setPermission(PermissionGranted)
		return true, nil
	}
	if response != permissionResponseDenied {
		m.log.Warn("permission", "unexpected permission response, treating as denied", map[string]any{
			"response": response,
		})
	}
	m.setPermission(PermissionDenied)
	return false, nil
}

// setPermission caches the outcome in the state and mirrors it to the flag
// store for the recovery engine's reset strategy. Storage failures are
// absorbed.
func (m *Manager) setPermission(status PermissionStatus) {
	m.setState(func(s *State) {
		s.PermissionStatus = status
	})
	m.absorb("permission flag write", func() error {
		return m.cfg.Store.Set(storage.KeyGyroscopePermission, string(status))
	})
}
