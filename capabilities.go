package vrcore

import "context"

// Plugin identifiers resolved through the viewer.
const (
	PluginStereo    = "stereo"
	PluginGyroscope = "gyroscope"
)

// Viewer is the externally owned panorama viewer. The core never renders;
// it only resolves plugin handles by identifier. Plugin returns nil when no
// plugin is registered under the identifier.
type Viewer interface {
	Plugin(identifier string) any
}

// Plugin handles expose optional capabilities. A handle is any value; the
// manager discovers what it can do by asserting these single-method
// interfaces and branching exhaustively over the presence combination.

// StereoToggler switches the stereo split-screen view on or off.
type StereoToggler interface {
	Toggle() error
}

// StereoEnterer enters the stereo view.
type StereoEnterer interface {
	Enter() error
}

// StereoExiter leaves the stereo view.
type StereoExiter interface {
	Exit() error
}

// GyroscopeStarter begins mapping device orientation to the view direction.
type GyroscopeStarter interface {
	Start() error
}

// GyroscopeStopper stops the orientation mapping.
type GyroscopeStopper interface {
	Stop() error
}

// GyroscopeStatus reports whether the orientation mapping is running.
type GyroscopeStatus interface {
	Enabled() bool
}

// FullscreenRequester is the optional container capability for entering
// fullscreen presentation (whichever vendor-prefixed method the host has).
type FullscreenRequester interface {
	RequestFullscreen() error
}

// FullscreenExiter leaves fullscreen presentation.
type FullscreenExiter interface {
	ExitFullscreen() error
}

// PermissionRequester triggers the platform's device-orientation permission
// prompt. The prompt requires a user gesture and may suspend indefinitely;
// the context bounds how long the core waits. The returned value is the
// platform's raw response ("granted", "denied", or anything else, which is
// treated as denied).
type PermissionRequester interface {
	RequestOrientationPermission(ctx context.Context) (string, error)
}

// Raw permission responses understood by the manager.
const (
	permissionResponseGranted = "granted"
	permissionResponseDenied  = "denied"
)

// stereoCapabilities lists which optional stereo methods a handle
// satisfies, for diagnostics when none of them are usable.
func stereoCapabilities(handle any) []string {
	var caps []string
	if _, ok := handle.(StereoToggler); ok {
		caps = append(caps, "toggle")
	}
	if _, ok := handle.(StereoEnterer); ok {
		caps = append(caps, "enter")
	}
	if _, ok := handle.(StereoExiter); ok {
		caps = append(caps, "exit")
	}
	if len(caps) == 0 {
		caps = append(caps, "none")
	}
	return caps
}
