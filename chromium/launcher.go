package chromium

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tugboatci/tugboat/log"
)

// Launcher starts Chromium processes configured for deterministic headless
// test execution.
type Launcher struct {
	logger *log.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(logger *log.Logger) *Launcher {
	return &Launcher{logger: logger}
}

// Launch validates opts, starts the browser on an unused local port, polls
// the HTTP discovery endpoint until it answers or the launch timeout
// elapses, and resolves the DevTools WebSocket URL.
func (l *Launcher) Launch(ctx context.Context, opts LaunchOptions) (_ *BrowserProcess, rerr error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("finding unused port: %w", err)
	}

	userDataDir, err := os.MkdirTemp("", "tugboat-chromium-*")
	if err != nil {
		return nil, fmt.Errorf("creating user data dir: %w", err)
	}

	args := buildArgs(opts, port, userDataDir)
	l.logger.Debugf("chromium", "launching %s with %d flags on port %d", opts.ExecutablePath, len(args), port)

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, opts.ExecutablePath, args...) //nolint:gosec
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	defer func() {
		if rerr != nil {
			cancel()
			_ = os.RemoveAll(userDataDir)
		}
	}()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting browser executable: %w", err)
	}

	proc := newBrowserProcess(cmd, cancel, port, userDataDir, l.logger)

	wsURL, err := l.waitForDevTools(ctx, port, opts.Timeout)
	if err != nil {
		proc.Kill()
		return nil, err
	}
	proc.wsURL = wsURL

	l.logger.Infof("chromium", "browser pid %d ready, devtools at %s", proc.Pid(), wsURL)
	return proc, nil
}

// waitForDevTools polls GET /json/version at fixed short intervals until the
// endpoint answers, then returns its webSocketDebuggerUrl.
func (l *Launcher) waitForDevTools(ctx context.Context, port int, timeout time.Duration) (string, error) {
	versionURL := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	client := &http.Client{Timeout: readinessPollInterval * 5}
	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return "", &LaunchTimeoutError{Timeout: timeout}
		}
		wsURL, err := fetchDebuggerURL(ctx, client, versionURL)
		if err == nil {
			return wsURL, nil
		}
		l.logger.Tracef("chromium", "devtools not ready: %s", err)

		select {
		case <-time.After(readinessPollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func fetchDebuggerURL(ctx context.Context, client *http.Client, versionURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	wsURL := gjson.GetBytes(body, "webSocketDebuggerUrl").String()
	if wsURL == "" {
		return "", fmt.Errorf("discovery response missing webSocketDebuggerUrl")
	}
	return wsURL, nil
}

// buildArgs builds the deterministic (sorted) argument list. Background
// throttling is disabled so timers fire predictably under headless
// execution.
func buildArgs(opts LaunchOptions, port int, userDataDir string) []string {
	flags := map[string]any{
		"remote-debugging-port":                  port,
		"user-data-dir":                          userDataDir,
		"disable-background-timer-throttling":    true,
		"disable-backgrounding-occluded-windows": true,
		"disable-renderer-backgrounding":         true,
		"disable-background-networking":          true,
		"no-first-run":                           true,
		"no-default-browser-check":               true,
		"mute-audio":                             true,
	}
	if opts.Headless.ValueOrZero() {
		flags["headless"] = true
		flags["hide-scrollbars"] = true
	}
	if opts.Viewport != nil {
		flags["window-size"] = fmt.Sprintf("%d,%d", opts.Viewport.Width, opts.Viewport.Height)
	}
	if os.Getuid() == 0 {
		// Chromium refuses to sandbox as root, e.g. in a Linux container.
		flags["no-sandbox"] = true
	}

	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]string, 0, len(names)+1)
	for _, name := range names {
		switch value := flags[name].(type) {
		case bool:
			if value {
				args = append(args, fmt.Sprintf("--%s", name))
			}
		default:
			args = append(args, fmt.Sprintf("--%s=%v", name, value))
		}
	}
	return append(args, "about:blank")
}

// freePort obtains an unused local TCP port from the kernel.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close() //nolint:errcheck
	return l.Addr().(*net.TCPAddr).Port, nil
}
