package browser

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tugboatci/tugboat/event"
)

// timingResponse builds the Runtime.evaluate response carrying a stringified
// performance timing object, the way the browser returns it.
func timingResponse(t *testing.T, timing map[string]int64) string {
	t.Helper()
	raw, err := json.Marshal(timing)
	require.NoError(t, err)
	buf, err := json.Marshal(map[string]any{"result": map[string]any{"value": string(raw)}})
	require.NoError(t, err)
	return string(buf)
}

func TestNavigateLoad(t *testing.T) {
	t.Parallel()

	p, conn, _ := newTestPage(t)
	conn.handle("Page.navigate", func(json.RawMessage) (json.RawMessage, error) {
		conn.emit("Page.loadEventFired", `{"timestamp":1}`)
		return json.RawMessage(`{"frameId":"F1"}`), nil
	})
	conn.respond("Runtime.evaluate", timingResponse(t, map[string]int64{
		"navigationStart":            1000,
		"domainLookupStart":          1010,
		"domainLookupEnd":            1020,
		"connectStart":               1020,
		"connectEnd":                 1050,
		"requestStart":               1050,
		"responseStart":              1100,
		"responseEnd":                1150,
		"domContentLoadedEventStart": 1200,
		"loadEventStart":             1300,
	}))

	metrics, err := p.Navigate(context.Background(), "https://example.com", NavigationOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", metrics.URL)
	assert.Equal(t, LoadStateLoad, metrics.LoadState)
	assert.Greater(t, metrics.Total, time.Duration(0))

	require.NotNil(t, metrics.Timing)
	assert.Equal(t, 10*time.Millisecond, metrics.Timing.DNS)
	assert.Equal(t, 30*time.Millisecond, metrics.Timing.Connect)
	assert.Equal(t, 50*time.Millisecond, metrics.Timing.Request)
	assert.Equal(t, 50*time.Millisecond, metrics.Timing.Response)
	assert.Equal(t, 200*time.Millisecond, metrics.Timing.DOMContentLoaded)
	assert.Equal(t, 300*time.Millisecond, metrics.Timing.Load)

	assert.Equal(t, "https://example.com", p.URL())
	assert.Equal(t, metrics, p.LastNavigationMetrics())

	// Only the Page domain is needed for the load state.
	assert.Len(t, conn.callsTo("Page.enable"), 1)
	assert.Empty(t, conn.callsTo("Network.enable"))
}

func TestNavigateDomainsEnabledOnce(t *testing.T) {
	t.Parallel()

	p, conn, _ := newTestPage(t)
	conn.handle("Page.navigate", func(json.RawMessage) (json.RawMessage, error) {
		conn.emit("Page.loadEventFired", `{}`)
		return json.RawMessage(`{}`), nil
	})

	for i := 0; i < 3; i++ {
		_, err := p.Navigate(context.Background(), "https://example.com", NavigationOptions{})
		require.NoError(t, err)
	}
	assert.Len(t, conn.callsTo("Page.enable"), 1)
}

func TestNavigateDOMContentLoaded(t *testing.T) {
	t.Parallel()

	p, conn, _ := newTestPage(t)
	conn.handle("Page.navigate", func(json.RawMessage) (json.RawMessage, error) {
		// DOM readiness arrives without a load event ever firing.
		conn.emit("Page.domContentEventFired", `{}`)
		return json.RawMessage(`{}`), nil
	})

	metrics, err := p.Navigate(context.Background(), "https://example.com",
		NavigationOptions{LoadState: LoadStateDOMContentLoaded, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, LoadStateDOMContentLoaded, metrics.LoadState)
}

func TestNavigateNetworkIdle(t *testing.T) {
	t.Parallel()

	p, conn, _ := newTestPage(t)

	var lastActivity time.Time
	conn.handle("Page.navigate", func(json.RawMessage) (json.RawMessage, error) {
		go func() {
			conn.emit("Network.requestWillBeSent", `{"requestId":"R1"}`)
			conn.emit("Page.loadEventFired", `{}`)
			time.Sleep(50 * time.Millisecond)
			conn.emit("Network.loadingFinished", `{"requestId":"R1"}`)

			// A request landing inside the quiet window restarts the
			// countdown.
			time.Sleep(200 * time.Millisecond)
			conn.emit("Network.requestWillBeSent", `{"requestId":"R2"}`)
			time.Sleep(50 * time.Millisecond)
			lastActivity = time.Now()
			conn.emit("Network.loadingFinished", `{"requestId":"R2"}`)
		}()
		return json.RawMessage(`{}`), nil
	})

	metrics, err := p.Navigate(context.Background(), "https://example.com",
		NavigationOptions{LoadState: LoadStateNetworkIdle, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, LoadStateNetworkIdle, metrics.LoadState)
	assert.GreaterOrEqual(t, time.Since(lastActivity), NetworkIdleQuiet,
		"idle must only be declared a full quiet period after the last request settled")

	assert.Len(t, conn.callsTo("Network.enable"), 1)
}

func TestNavigateTimeout(t *testing.T) {
	t.Parallel()

	p, conn, bus := newTestPage(t)
	conn.respond("Page.navigate", `{}`) // accepted, but no lifecycle events follow

	subID, failed := bus.Subscribe(event.NavigationFailed)
	t.Cleanup(func() { bus.Unsubscribe(subID) })

	start := time.Now()
	_, err := p.Navigate(context.Background(), "https://example.com",
		NavigationOptions{Timeout: 100 * time.Millisecond})

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Contains(t, navErr.Reason, "timed out")
	assert.Equal(t, 100*time.Millisecond, navErr.Timeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	select {
	case ev := <-failed:
		payload, ok := ev.Data.(NavigationPayload)
		require.True(t, ok)
		assert.Equal(t, "https://example.com", payload.URL)
		assert.Error(t, payload.Err)
	default:
		t.Fatal("no navigationFailed event emitted")
	}
}

func TestNavigateErrorText(t *testing.T) {
	t.Parallel()

	p, conn, _ := newTestPage(t)
	conn.respond("Page.navigate", `{"errorText":"net::ERR_NAME_NOT_RESOLVED"}`)

	_, err := p.Navigate(context.Background(), "https://nope.invalid", NavigationOptions{})
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Contains(t, navErr.Reason, "net::ERR_NAME_NOT_RESOLVED")
	assert.Empty(t, p.URL(), "a failed navigation must not update the page URL")
}

func TestNavigateWhileNavigating(t *testing.T) {
	t.Parallel()

	p, conn, _ := newTestPage(t)
	conn.respond("Page.navigate", `{}`)

	done := make(chan error, 1)
	go func() {
		_, err := p.Navigate(context.Background(), "https://example.com",
			NavigationOptions{Timeout: 5 * time.Second})
		done <- err
	}()
	require.Eventually(t, func() bool {
		return len(conn.callsTo("Page.navigate")) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := p.Navigate(context.Background(), "https://example.com/second", NavigationOptions{})
	assert.ErrorIs(t, err, ErrNavigationInProgress)

	conn.emit("Page.loadEventFired", `{}`)
	require.NoError(t, <-done)

	// With the first navigation resolved, navigating again works.
	conn.handle("Page.navigate", func(json.RawMessage) (json.RawMessage, error) {
		conn.emit("Page.loadEventFired", `{}`)
		return json.RawMessage(`{}`), nil
	})
	_, err = p.Navigate(context.Background(), "https://example.com/second", NavigationOptions{})
	assert.NoError(t, err)
}

func TestNavigateUnknownLoadState(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPage(t)
	_, err := p.Navigate(context.Background(), "https://example.com",
		NavigationOptions{LoadState: "interactive"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown load state")
}

func TestNavigateLifecycleEvents(t *testing.T) {
	t.Parallel()

	p, conn, bus := newTestPage(t)
	conn.handle("Page.navigate", func(json.RawMessage) (json.RawMessage, error) {
		conn.emit("Page.loadEventFired", `{}`)
		return json.RawMessage(`{}`), nil
	})

	subID, ch := bus.Subscribe(event.NavigationStarted, event.NavigationCompleted)
	t.Cleanup(func() { bus.Unsubscribe(subID) })

	_, err := p.Navigate(context.Background(), "https://example.com", NavigationOptions{})
	require.NoError(t, err)

	started := <-ch
	assert.Equal(t, event.NavigationStarted, started.Type)
	completed := <-ch
	assert.Equal(t, event.NavigationCompleted, completed.Type)
	payload, ok := completed.Data.(NavigationPayload)
	require.True(t, ok)
	assert.Equal(t, "https://example.com", payload.URL)
	assert.Greater(t, payload.Elapsed, time.Duration(0))
}

func TestNavigateListenerCleanup(t *testing.T) {
	t.Parallel()

	p, conn, _ := newTestPage(t)
	conn.handle("Page.navigate", func(json.RawMessage) (json.RawMessage, error) {
		conn.emit("Page.loadEventFired", `{}`)
		return json.RawMessage(`{}`), nil
	})

	_, err := p.Navigate(context.Background(), "https://example.com", NavigationOptions{})
	require.NoError(t, err)
	assert.False(t, conn.hasSubscriber(), "navigation must cancel its event listener")
}
