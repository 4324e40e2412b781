// Package chromium launches and supervises a headless Chromium process and
// discovers its DevTools WebSocket endpoint.
package chromium

import (
	"errors"
	"fmt"
	"time"

	"github.com/mstoykov/envconfig"
	"gopkg.in/guregu/null.v3"
)

const (
	// DefaultLaunchTimeout bounds process startup including the readiness
	// poll of the HTTP discovery endpoint.
	DefaultLaunchTimeout = 30 * time.Second

	// readinessPollInterval is how often the discovery endpoint is probed
	// during startup.
	readinessPollInterval = 100 * time.Millisecond
)

// Viewport is the emulated viewport size.
type Viewport struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// LaunchOptions control how the browser process is started.
type LaunchOptions struct {
	ExecutablePath string
	Headless       null.Bool
	Viewport       *Viewport
	Timeout        time.Duration
	Env            []string
}

// envOverrides are the supported environment overrides, decoded with the
// TUGBOAT_ prefix (TUGBOAT_BROWSER_PATH, TUGBOAT_HEADLESS).
type envOverrides struct {
	BrowserPath string    `envconfig:"BROWSER_PATH"`
	Headless    null.Bool `envconfig:"HEADLESS"`
}

// NewLaunchOptions returns options with defaults applied: headless true and
// the default launch timeout.
func NewLaunchOptions() LaunchOptions {
	return LaunchOptions{
		Headless: null.NewBool(true, false),
		Timeout:  DefaultLaunchTimeout,
	}
}

// ApplyEnv overlays environment overrides onto the options.
func (o *LaunchOptions) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process("tugboat", &env); err != nil {
		return fmt.Errorf("reading environment overrides: %w", err)
	}
	if env.BrowserPath != "" {
		o.ExecutablePath = env.BrowserPath
	}
	if env.Headless.Valid {
		o.Headless = env.Headless
	}
	return nil
}

// Validate checks the options before launch.
func (o *LaunchOptions) Validate() error {
	if o.ExecutablePath == "" {
		return errors.New("browser executable path is required")
	}
	if o.Viewport != nil && (o.Viewport.Width <= 0 || o.Viewport.Height <= 0) {
		return fmt.Errorf("viewport dimensions must be positive, got %dx%d",
			o.Viewport.Width, o.Viewport.Height)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultLaunchTimeout
	}
	return nil
}
