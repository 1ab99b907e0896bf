// Command vrprobe assesses a browsing environment's VR readiness from the
// command line: it feeds a user-agent string and capability flags through
// the compatibility oracle and prints the resulting report. Useful for
// triaging field reports ("VR button does nothing on device X") without a
// device at hand.
//
// Environment variables (VRPROBE_*) provide defaults; flags override them.
//
//	vrprobe -ua "Mozilla/5.0 (iPhone; ...)" -orientation -fullscreen -secure
//	vrprobe -config kiosk.yaml -json
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/panovr/vrcore"
	"github.com/panovr/vrcore/compat"
)

// probeOptions are the env-configurable defaults.
type probeOptions struct {
	ConfigPath string `env:"VRPROBE_CONFIG"`
	UserAgent  string `env:"VRPROBE_UA"`
	JSON       bool   `env:"VRPROBE_JSON"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vrprobe: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts probeOptions
	if err := env.Parse(&opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	var e compat.StaticEnvironment
	flag.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "core settings file (YAML), checked for validity")
	flag.StringVar(&e.UA, "ua", opts.UserAgent, "user-agent string to assess")
	flag.BoolVar(&e.DeviceOrientation, "orientation", false, "device orientation events available")
	flag.BoolVar(&e.DeviceMotion, "motion", false, "device motion events available")
	flag.BoolVar(&e.OrientationPermissionAPI, "permission-api", false, "orientation permission prompt available")
	flag.BoolVar(&e.Fullscreen, "fullscreen", false, "fullscreen API available")
	flag.BoolVar(&e.WebXR, "webxr", false, "WebXR probe available")
	flag.BoolVar(&e.SecureContext, "secure", false, "secure context")
	flag.BoolVar(&e.PermissionsAPI, "permissions", false, "generic permissions API available")
	flag.BoolVar(&e.Standalone, "standalone", false, "installed web app mode")
	jsonOut := flag.Bool("json", opts.JSON, "print the report as JSON")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if opts.ConfigPath != "" {
		settings, err := vrcore.LoadSettings(opts.ConfigPath)
		if err != nil {
			return err
		}
		log.Info().
			Str("log_level", settings.LogLevel).
			Int("max_retries", settings.MaxRetries).
			Str("fallback_policy", settings.FallbackPolicy).
			Msg("settings loaded")
	}

	report := compat.NewOracle(e).Report()

	if *jsonOut {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	log.Info().
		Str("browser", report.Browser.Name).
		Str("version", report.Browser.Version).
		Str("platform", string(report.Browser.Platform)).
		Str("engine", string(report.Browser.Engine)).
		Bool("mobile", report.Browser.Mobile).
		Msg("browser detected")
	log.Info().
		Str("tier", string(report.Tier)).
		Bool("gyroscope", report.Features.Gyroscope).
		Bool("fullscreen", report.Features.Fullscreen).
		Bool("secure_context", report.Features.SecureContext).
		Msg("VR support assessed")
	for _, w := range report.Warnings {
		log.Warn().Msg(w)
	}
	for _, r := range report.Recommendations {
		log.Info().Str("kind", "recommendation").Msg(r)
	}
	return nil
}
