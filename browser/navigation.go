package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tugboatci/tugboat/cdp"
	"github.com/tugboatci/tugboat/event"
)

// LoadState is the readiness condition a navigation waits for.
type LoadState string

const (
	LoadStateLoad             LoadState = "load"
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

const (
	// DefaultNavigationTimeout bounds one navigation end to end.
	DefaultNavigationTimeout = 30 * time.Second

	// NetworkIdleQuiet is the quiet period with zero in-flight requests that
	// must follow the load event before the network is declared idle. It is
	// restarted by every new in-flight request.
	NetworkIdleQuiet = 500 * time.Millisecond
)

// NavigationOptions configure one Navigate call.
type NavigationOptions struct {
	LoadState LoadState     // defaults to LoadStateLoad
	Timeout   time.Duration // defaults to DefaultNavigationTimeout
}

// TimingBuckets are named durations derived from the page's performance
// timing, each bucket being end minus start of the protocol-reported
// timestamps.
type TimingBuckets struct {
	DNS              time.Duration `json:"dns"`
	Connect          time.Duration `json:"connect"`
	Request          time.Duration `json:"request"`
	Response         time.Duration `json:"response"`
	DOMContentLoaded time.Duration `json:"domContentLoaded"`
	Load             time.Duration `json:"load"`
}

// NavigationMetrics is the outcome of one successful navigation.
type NavigationMetrics struct {
	URL       string         `json:"url"`
	LoadState LoadState      `json:"loadState"`
	Total     time.Duration  `json:"total"`
	Timing    *TimingBuckets `json:"timing,omitempty"` // nil when sampling was unavailable
}

// NavigationPayload travels on navigation lifecycle events.
type NavigationPayload struct {
	URL       string
	LoadState LoadState
	Elapsed   time.Duration
	Err       error
}

// Navigate drives one navigation to completion: it issues the navigate
// command with a listener armed over the event feed, and resolves once the
// requested load state is reached. The command resolving only confirms the
// navigation was accepted; no state transition happens on it alone.
// A second call before the first resolves fails with
// ErrNavigationInProgress.
func (p *Page) Navigate(ctx context.Context, url string, opts NavigationOptions) (*NavigationMetrics, error) {
	if opts.LoadState == "" {
		opts.LoadState = LoadStateLoad
	}
	switch opts.LoadState {
	case LoadStateLoad, LoadStateDOMContentLoaded, LoadStateNetworkIdle:
	default:
		return nil, fmt.Errorf("unknown load state %q", opts.LoadState)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultNavigationTimeout
	}

	p.mu.Lock()
	if p.navigating {
		p.mu.Unlock()
		return nil, ErrNavigationInProgress
	}
	p.navigating = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.navigating = false
		p.mu.Unlock()
	}()

	start := time.Now()
	fail := func(reason string) (*NavigationMetrics, error) {
		err := &NavigationError{URL: url, Reason: reason, Elapsed: time.Since(start), Timeout: opts.Timeout}
		p.bus.Emit(&event.Event{Type: event.NavigationFailed, Data: NavigationPayload{
			URL: url, LoadState: opts.LoadState, Elapsed: err.Elapsed, Err: err,
		}})
		return nil, err
	}

	if err := p.enableDomains(ctx, opts.LoadState == LoadStateNetworkIdle); err != nil {
		return fail(fmt.Sprintf("enabling protocol domains: %s", err))
	}

	p.logger.Debugf("browser:nav", "navigating to %q until %s", url, opts.LoadState)
	p.bus.Emit(&event.Event{Type: event.NavigationStarted, Data: NavigationPayload{
		URL: url, LoadState: opts.LoadState,
	}})

	// Arm the listener before issuing the command: the DOM-ready event can
	// fire before the navigate command's own completion signal arrives.
	events, cancel := p.conn.Subscribe()
	defer cancel()

	sessionID, err := p.sessions.Attach(ctx)
	if err != nil {
		return fail(err.Error())
	}
	res, err := p.conn.ExecuteWithSession(ctx, sessionID, "Page.navigate", map[string]any{"url": url})
	if err != nil {
		return fail(err.Error())
	}
	if errText := gjson.GetBytes(res, "errorText").String(); errText != "" {
		return fail(errText)
	}

	if err := p.awaitLoadState(ctx, events, url, opts, start); err != nil {
		if navErr, ok := err.(*NavigationError); ok {
			p.bus.Emit(&event.Event{Type: event.NavigationFailed, Data: NavigationPayload{
				URL: url, LoadState: opts.LoadState, Elapsed: navErr.Elapsed, Err: navErr,
			}})
			return nil, navErr
		}
		return fail(err.Error())
	}

	metrics := &NavigationMetrics{
		URL:       url,
		LoadState: opts.LoadState,
		Total:     time.Since(start),
		Timing:    p.sampleTiming(ctx, sessionID),
	}

	p.mu.Lock()
	p.currentURL = url
	p.lastMetrics = metrics
	p.mu.Unlock()

	p.logger.Debugf("browser:nav", "reached %s for %q in %s", opts.LoadState, url, metrics.Total)
	p.bus.Emit(&event.Event{Type: event.NavigationCompleted, Data: NavigationPayload{
		URL: url, LoadState: opts.LoadState, Elapsed: metrics.Total,
	}})
	return metrics, nil
}

// awaitLoadState consumes the armed event feed until the requested load
// state is reached, the deadline passes, or ctx is canceled.
func (p *Page) awaitLoadState(
	ctx context.Context, events <-chan cdp.Event, url string, opts NavigationOptions, start time.Time,
) error {
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	var (
		loadFired bool
		inflight  int
		quiet     *time.Timer
		quietCh   <-chan time.Time
	)
	armQuiet := func() {
		if quiet != nil {
			quiet.Stop()
		}
		quiet = time.NewTimer(NetworkIdleQuiet)
		quietCh = quiet.C
	}
	disarmQuiet := func() {
		if quiet != nil {
			quiet.Stop()
			quiet = nil
			quietCh = nil
		}
	}
	defer disarmQuiet()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return &NavigationError{
					URL: url, Reason: "transport closed during navigation",
					Elapsed: time.Since(start), Timeout: opts.Timeout,
				}
			}
			switch ev.Method {
			case "Page.loadEventFired":
				if opts.LoadState == LoadStateLoad {
					return nil
				}
				loadFired = true
				if opts.LoadState == LoadStateNetworkIdle && inflight <= 0 {
					armQuiet()
				}
			case "Page.domContentEventFired":
				if opts.LoadState == LoadStateDOMContentLoaded {
					return nil
				}
			case "Network.requestWillBeSent":
				inflight++
				// A new in-flight request restarts the idle countdown.
				disarmQuiet()
			case "Network.loadingFinished", "Network.loadingFailed":
				if inflight > 0 {
					inflight--
				}
				if opts.LoadState == LoadStateNetworkIdle && loadFired && inflight <= 0 {
					armQuiet()
				}
			}
		case <-quietCh:
			return nil
		case <-deadline.C:
			return &NavigationError{
				URL:     url,
				Reason:  fmt.Sprintf("timed out waiting for %s", opts.LoadState),
				Elapsed: time.Since(start),
				Timeout: opts.Timeout,
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sampleTiming samples performance timing once, best-effort; absence of
// timing data is not an error.
func (p *Page) sampleTiming(ctx context.Context, sessionID cdp.SessionID) *TimingBuckets {
	res, err := p.conn.ExecuteWithSession(ctx, sessionID, "Runtime.evaluate", map[string]any{
		"expression":    "JSON.stringify(window.performance.timing)",
		"returnByValue": true,
	})
	if err != nil {
		p.logger.Debugf("browser:nav", "sampling performance timing: %s", err)
		return nil
	}
	raw := gjson.GetBytes(res, "result.value").String()
	if raw == "" {
		return nil
	}
	timing := gjson.Parse(raw)
	if !timing.IsObject() {
		return nil
	}

	ms := func(endKey, startKey string) time.Duration {
		end, start := timing.Get(endKey).Int(), timing.Get(startKey).Int()
		if end <= 0 || start <= 0 || end < start {
			return 0
		}
		return time.Duration(end-start) * time.Millisecond
	}
	return &TimingBuckets{
		DNS:              ms("domainLookupEnd", "domainLookupStart"),
		Connect:          ms("connectEnd", "connectStart"),
		Request:          ms("responseStart", "requestStart"),
		Response:         ms("responseEnd", "responseStart"),
		DOMContentLoaded: ms("domContentLoadedEventStart", "navigationStart"),
		Load:             ms("loadEventStart", "navigationStart"),
	}
}
