package fallback

import (
	"errors"
	"sort"
	"testing"

	"github.com/panovr/vrcore/compat"
)

// recorderHost counts hook invocations and can fail selected hooks.
type recorderHost struct {
	pointerOn, pointerOff int
	pseudoOn, pseudoOff   int
	simOn, simOff         int

	pointerErr error
}

func (h *recorderHost) EnablePointerLook() error {
	h.pointerOn++
	return h.pointerErr
}
func (h *recorderHost) DisablePointerLook() error        { h.pointerOff++; return nil }
func (h *recorderHost) EnterPseudoFullscreen() error     { h.pseudoOn++; return nil }
func (h *recorderHost) ExitPseudoFullscreen() error      { h.pseudoOff++; return nil }
func (h *recorderHost) StartSimulatedOrientation() error { h.simOn++; return nil }
func (h *recorderHost) StopSimulatedOrientation() error  { h.simOff++; return nil }

func TestActivateDeactivateIdempotent(t *testing.T) {
	host := &recorderHost{}
	r := NewRegistry(host, nil)

	if err := r.Activate(CapabilityFullscreen); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := r.Activate(CapabilityFullscreen); err != nil {
		t.Fatalf("second Activate: %v", err)
	}
	if host.pseudoOn != 1 {
		t.Errorf("EnterPseudoFullscreen called %d times, want 1", host.pseudoOn)
	}
	if !r.IsActive(CapabilityFullscreen) {
		t.Error("fallback not reported active")
	}

	if err := r.Deactivate(CapabilityFullscreen); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := r.Deactivate(CapabilityFullscreen); err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}
	if host.pseudoOff != 1 {
		t.Errorf("ExitPseudoFullscreen called %d times, want 1", host.pseudoOff)
	}
	if r.IsActive(CapabilityFullscreen) {
		t.Error("fallback still reported active")
	}
}

func TestUnknownCapability(t *testing.T) {
	r := NewRegistry(nil, nil)
	if err := r.Activate(Capability("bogus")); err == nil {
		t.Error("Activate(bogus) = nil, want error")
	}
	if err := r.Deactivate(Capability("bogus")); err == nil {
		t.Error("Deactivate(bogus) = nil, want error")
	}
}

func TestActivateHookFailure(t *testing.T) {
	host := &recorderHost{pointerErr: errors.New("no DOM")}
	r := NewRegistry(host, nil)

	if err := r.Activate(CapabilityDeviceOrientation); err == nil {
		t.Fatal("Activate = nil, want hook error")
	}
	if r.IsActive(CapabilityDeviceOrientation) {
		t.Error("failed activation must not mark the fallback active")
	}
}

func TestActivateRecommended(t *testing.T) {
	host := &recorderHost{}
	r := NewRegistry(host, nil)

	// Desktop without orientation or a gyroscope, but with fullscreen and a
	// secure context.
	report := compat.Report{
		Features: compat.Features{Fullscreen: true, SecureContext: true},
	}

	activated := r.ActivateRecommended(report)
	sort.Slice(activated, func(i, j int) bool { return activated[i] < activated[j] })
	want := []Capability{CapabilityDeviceOrientation, CapabilityGyroscope}
	if len(activated) != len(want) || activated[0] != want[0] || activated[1] != want[1] {
		t.Fatalf("ActivateRecommended = %v, want %v", activated, want)
	}
	if host.pointerOn != 1 || host.simOn != 1 {
		t.Errorf("hooks: pointerOn=%d simOn=%d, want 1/1", host.pointerOn, host.simOn)
	}
	if host.pseudoOn != 0 {
		t.Error("fullscreen fallback activated despite fullscreen support")
	}
}

func TestActivateRecommendedToleratesFailures(t *testing.T) {
	host := &recorderHost{pointerErr: errors.New("no DOM")}
	r := NewRegistry(host, nil)

	report := compat.Report{} // everything missing
	activated := r.ActivateRecommended(report)

	for _, capability := range activated {
		if capability == CapabilityDeviceOrientation || capability == CapabilitySecureContext {
			t.Errorf("failed capability %s reported as activated", capability)
		}
	}
	if !r.IsActive(CapabilityFullscreen) || !r.IsActive(CapabilityGyroscope) {
		t.Error("working fallbacks must still activate when others fail")
	}
}

func TestIOSPermissionTrigger(t *testing.T) {
	r := NewRegistry(&recorderHost{}, nil)
	report := compat.Report{
		Browser: compat.Browser{Platform: compat.PlatformIOS},
		Features: compat.Features{
			DeviceOrientation: true, Fullscreen: true, SecureContext: true, Gyroscope: true,
		},
	}

	activated := r.ActivateRecommended(report)
	if len(activated) != 1 || activated[0] != CapabilityPermissions {
		t.Fatalf("ActivateRecommended = %v, want [permissions]", activated)
	}
}

func TestDeactivateAll(t *testing.T) {
	host := &recorderHost{}
	r := NewRegistry(host, nil)
	r.Activate(CapabilityFullscreen)
	r.Activate(CapabilityGyroscope)

	r.DeactivateAll()
	if got := r.Active(); len(got) != 0 {
		t.Errorf("Active after DeactivateAll = %v, want empty", got)
	}
	if host.pseudoOff != 1 || host.simOff != 1 {
		t.Errorf("hooks: pseudoOff=%d simOff=%d, want 1/1", host.pseudoOff, host.simOff)
	}
}
