// Package compat detects the hosting environment's identity and VR
// readiness: browser name/version/platform/engine from the user-agent
// string, feature probes supplied by the host, and a derived support tier
// with human-readable warnings and recommendations. The computed report is
// memoized for the life of the process unless explicitly invalidated.
package compat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Platform is the coarse device platform.
type Platform string

// Platforms.
const (
	PlatformIOS     Platform = "iOS"
	PlatformAndroid Platform = "Android"
	PlatformDesktop Platform = "Desktop"
	PlatformUnknown Platform = "Unknown"
)

// Engine is the rendering engine family.
type Engine string

// Engines.
const (
	EngineWebKit  Engine = "WebKit"
	EngineBlink   Engine = "Blink"
	EngineGecko   Engine = "Gecko"
	EngineUnknown Engine = "Unknown"
)

// Browser describes the detected browser identity.
type Browser struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Platform Platform `json:"platform"`
	Engine   Engine   `json:"engine"`
	Mobile   bool     `json:"mobile"`
}

// Environment supplies the raw capability probes the core cannot perform
// itself. Hosts bridge these to the real platform (navigator, window,
// document); tests supply fixtures.
type Environment interface {
	// UserAgent returns the platform user-agent string.
	UserAgent() string
	// HasDeviceOrientation reports whether device-orientation events exist.
	HasDeviceOrientation() bool
	// HasDeviceMotion reports whether device-motion events exist.
	HasDeviceMotion() bool
	// HasOrientationPermissionAPI reports whether the explicit
	// device-orientation permission request function exists (iOS 13+).
	HasOrientationPermissionAPI() bool
	// HasFullscreen reports whether any vendor-prefixed fullscreen request
	// method exists.
	HasFullscreen() bool
	// HasWebXR reports whether a WebXR session-support probe exists.
	HasWebXR() bool
	// IsSecureContext reports whether the page runs in a secure context.
	IsSecureContext() bool
	// HasPermissionsAPI reports whether the generic permissions API exists.
	HasPermissionsAPI() bool
	// IsStandalone reports whether the page runs as an installed web app
	// (the iOS 13+ detection edge case).
	IsStandalone() bool
}

// StaticEnvironment is an Environment built from a one-time capability
// snapshot. Bridged hosts probe the platform once and hand the core the
// result; tests and tooling describe environments directly.
type StaticEnvironment struct {
	UA                       string `koanf:"user_agent"`
	DeviceOrientation        bool   `koanf:"device_orientation"`
	DeviceMotion             bool   `koanf:"device_motion"`
	OrientationPermissionAPI bool   `koanf:"orientation_permission_api"`
	Fullscreen               bool   `koanf:"fullscreen"`
	WebXR                    bool   `koanf:"webxr"`
	SecureContext            bool   `koanf:"secure_context"`
	PermissionsAPI           bool   `koanf:"permissions_api"`
	Standalone               bool   `koanf:"standalone"`
}

// UserAgent implements Environment.
func (e StaticEnvironment) UserAgent() string { return e.UA }

// HasDeviceOrientation implements Environment.
func (e StaticEnvironment) HasDeviceOrientation() bool { return e.DeviceOrientation }

// HasDeviceMotion implements Environment.
func (e StaticEnvironment) HasDeviceMotion() bool { return e.DeviceMotion }

// HasOrientationPermissionAPI implements Environment.
func (e StaticEnvironment) HasOrientationPermissionAPI() bool { return e.OrientationPermissionAPI }

// HasFullscreen implements Environment.
func (e StaticEnvironment) HasFullscreen() bool { return e.Fullscreen }

// HasWebXR implements Environment.
func (e StaticEnvironment) HasWebXR() bool { return e.WebXR }

// IsSecureContext implements Environment.
func (e StaticEnvironment) IsSecureContext() bool { return e.SecureContext }

// HasPermissionsAPI implements Environment.
func (e StaticEnvironment) HasPermissionsAPI() bool { return e.PermissionsAPI }

// IsStandalone implements Environment.
func (e StaticEnvironment) IsStandalone() bool { return e.Standalone }

// Features holds the probed and derived capability flags.
type Features struct {
	DeviceOrientation     bool `json:"device_orientation"`
	DeviceMotion          bool `json:"device_motion"`
	Fullscreen            bool `json:"fullscreen"`
	WebXR                 bool `json:"webxr"`
	Gyroscope             bool `json:"gyroscope"`
	Accelerometer         bool `json:"accelerometer"`
	SecureContext         bool `json:"secure_context"`
	PermissionsAPI        bool `json:"permissions_api"`
	OrientationPermission bool `json:"orientation_permission"`
}

// Tier is the coarse VR readiness classification.
type Tier string

// Support tiers.
const (
	TierFull    Tier = "full"
	TierPartial Tier = "partial"
	TierLimited Tier = "limited"
	TierNone    Tier = "none"
)

// Report is the full compatibility assessment.
type Report struct {
	Browser         Browser  `json:"browser"`
	Features        Features `json:"features"`
	Tier            Tier     `json:"vr_support"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// versionRe captures the numeric version following a browser token.
var versionRe = regexp.MustCompile(`([0-9]+(?:[._][0-9]+)*)`)

// DetectBrowser derives the browser identity purely from the user-agent
// string using ordered substring checks. Chrome is checked before Safari
// because Chrome's UA also contains "Safari"; Edge is checked first via its
// own token. Unknown input degrades to Unknown fields rather than failing.
func DetectBrowser(ua string) Browser {
	b := Browser{Name: "Unknown", Version: "Unknown", Platform: PlatformUnknown, Engine: EngineUnknown}
	if ua == "" {
		return b
	}

	switch {
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iPod"):
		b.Platform = PlatformIOS
		b.Mobile = true
	case strings.Contains(ua, "Android"):
		b.Platform = PlatformAndroid
		b.Mobile = strings.Contains(ua, "Mobile")
	case strings.Contains(ua, "Windows"), strings.Contains(ua, "Macintosh"), strings.Contains(ua, "Linux"), strings.Contains(ua, "X11"):
		b.Platform = PlatformDesktop
	}

	switch {
	case strings.Contains(ua, "Edg/") || strings.Contains(ua, "EdgiOS/") || strings.Contains(ua, "EdgA/"):
		b.Name = "Edge"
		b.Version = versionAfter(ua, "Edg/", "EdgiOS/", "EdgA/")
		b.Engine = EngineBlink
	case strings.Contains(ua, "Firefox/") || strings.Contains(ua, "FxiOS/"):
		b.Name = "Firefox"
		b.Version = versionAfter(ua, "Firefox/", "FxiOS/")
		b.Engine = EngineGecko
	case strings.Contains(ua, "Chrome/") || strings.Contains(ua, "CriOS/"):
		b.Name = "Chrome"
		b.Version = versionAfter(ua, "Chrome/", "CriOS/")
		b.Engine = EngineBlink
	case strings.Contains(ua, "Safari/"):
		b.Name = "Safari"
		b.Version = versionAfter(ua, "Version/")
		b.Engine = EngineWebKit
	}

	// Anything on iOS renders through WebKit regardless of branding.
	if b.Platform == PlatformIOS {
		b.Engine = EngineWebKit
	}
	return b
}

// versionAfter returns the numeric version following the first token found
// in ua, or "Unknown".
func versionAfter(ua string, tokens ...string) string {
	for _, tok := range tokens {
		idx := strings.Index(ua, tok)
		if idx < 0 {
			continue
		}
		rest := ua[idx+len(tok):]
		if m := versionRe.FindString(rest); m != "" {
			return strings.ReplaceAll(m, "_", ".")
		}
	}
	return "Unknown"
}

// IsIOSDevice reports whether the environment is an iOS device. The
// user-agent platform is the primary signal; standalone (installed web app)
// mode combined with a mobile Safari UA covers the iOS 13+ devices whose
// user agents hide the platform.
func IsIOSDevice(env Environment) bool {
	ua := env.UserAgent()
	if DetectBrowser(ua).Platform == PlatformIOS {
		return true
	}
	return env.IsStandalone() && strings.Contains(ua, "Safari") && strings.Contains(ua, "Mobile")
}

// CompareVersions compares dot-separated numeric versions left to right,
// treating missing trailing components as zero. It returns -1, 0 or 1.
// Non-numeric components compare as zero.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// Oracle computes and caches the compatibility report. It is explicitly
// constructed and injectable; hosts compose one instance per session. It is
// safe for concurrent use.
type Oracle struct {
	env Environment

	mu     sync.Mutex
	report *Report
}

// NewOracle creates an Oracle over the given environment.
func NewOracle(env Environment) *Oracle {
	return &Oracle{env: env}
}

// Report returns the compatibility report, computing it on first use and
// caching it until Invalidate is called.
func (o *Oracle) Report() Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.report == nil {
		r := o.compute()
		o.report = &r
	}
	return *o.report
}

// Invalidate clears the cached report so the next Report call re-probes the
// environment. Used by tests and after environment changes.
func (o *Oracle) Invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report = nil
}

// IsBrowserSupported checks the detected browser against minimum versions
// keyed by browser name. Browsers absent from the map are considered
// supported; an unknown detected version is not.
func (o *Oracle) IsBrowserSupported(minVersions map[string]string) bool {
	r := o.Report()
	min, ok := minVersions[r.Browser.Name]
	if !ok {
		return true
	}
	if r.Browser.Version == "Unknown" {
		return false
	}
	return CompareVersions(r.Browser.Version, min) >= 0
}

// compute probes the environment and assembles the report.
func (o *Oracle) compute() Report {
	browser := DetectBrowser(o.env.UserAgent())

	f := Features{
		DeviceOrientation:     o.env.HasDeviceOrientation(),
		DeviceMotion:          o.env.HasDeviceMotion(),
		Fullscreen:            o.env.HasFullscreen(),
		WebXR:                 o.env.HasWebXR(),
		SecureContext:         o.env.IsSecureContext(),
		PermissionsAPI:        o.env.HasPermissionsAPI(),
		OrientationPermission: o.env.HasOrientationPermissionAPI(),
	}
	// Derived heuristics: a gyroscope is assumed when orientation events
	// exist and the device is mobile or gated by a permission API; an
	// accelerometer when motion events exist on a mobile device.
	f.Gyroscope = f.DeviceOrientation && (browser.Mobile || f.PermissionsAPI)
	f.Accelerometer = f.DeviceMotion && browser.Mobile

	r := Report{
		Browser:  browser,
		Features: f,
		Tier:     assessTier(browser, f),
	}
	r.Warnings, r.Recommendations = advise(browser, f)
	return r
}

// assessTier maps the feature combination onto a support tier.
func assessTier(b Browser, f Features) Tier {
	full := f.DeviceOrientation && f.Fullscreen && f.SecureContext
	if full && b.Platform == PlatformIOS {
		full = f.OrientationPermission
	}
	switch {
	case full:
		return TierFull
	case f.DeviceOrientation || f.Fullscreen:
		return TierPartial
	case f.SecureContext:
		return TierLimited
	default:
		return TierNone
	}
}

// advise generates warnings and recommendations from fixed per-condition
// templates.
func advise(b Browser, f Features) (warnings, recommendations []string) {
	if !f.SecureContext {
		warnings = append(warnings, "page is not running in a secure context; motion sensors are unavailable over plain HTTP")
		recommendations = append(recommendations, "serve the viewer over HTTPS")
	}
	if !f.DeviceOrientation {
		warnings = append(warnings, "device orientation events are not available; gyroscope look-around will not work")
		recommendations = append(recommendations, "use drag navigation, or open the viewer on a mobile device")
	}
	if !f.Fullscreen {
		warnings = append(warnings, "no fullscreen API is available; VR mode will run inside the page")
	}
	if b.Platform == PlatformIOS && !f.OrientationPermission {
		warnings = append(warnings, fmt.Sprintf("iOS %s lacks the motion permission prompt; sensor access may be blocked in Settings", b.Version))
		recommendations = append(recommendations, "enable Motion & Orientation Access in Safari settings")
	}
	if b.Name == "Firefox" && b.Platform == PlatformDesktop {
		warnings = append(warnings, "desktop Firefox has limited device orientation support")
	}
	if b.Platform == PlatformUnknown {
		warnings = append(warnings, "unrecognized platform; VR behavior is untested here")
		recommendations = append(recommendations, "use a recent mobile Chrome or Safari for the best experience")
	}
	return warnings, recommendations
}
