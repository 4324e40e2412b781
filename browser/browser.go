package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tugboatci/tugboat/cdp"
	"github.com/tugboatci/tugboat/chromium"
	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/log"
)

// Browser owns one launched browser process, its transport connection, the
// single active page and the isolated browsing contexts.
type Browser struct {
	logger   *log.Logger
	bus      *event.System
	proc     *chromium.BrowserProcess
	conn     *cdp.Connection
	sessions *cdp.SessionRegistry
	contexts *ContextManager
	page     *Page

	crashSubID uint64
	closeOnce  sync.Once
}

// Launch starts a browser process, connects to its DevTools endpoint and
// wires up the page machinery.
func Launch(ctx context.Context, opts chromium.LaunchOptions, bus *event.System, logger *log.Logger) (*Browser, error) {
	proc, err := chromium.NewLauncher(logger).Launch(ctx, opts)
	if err != nil {
		return nil, err
	}

	conn, err := cdp.NewConnection(ctx, proc.WSURL(), logger, bus, cdp.Options{
		AliveProbe: proc.Alive,
	})
	if err != nil {
		proc.Kill()
		return nil, err
	}

	sessions := cdp.NewSessionRegistry(conn, logger)
	b := &Browser{
		logger:   logger,
		bus:      bus,
		proc:     proc,
		conn:     conn,
		sessions: sessions,
	}
	b.page = NewPage(conn, sessions, bus, logger)
	b.contexts = NewContextManager(conn, sessions, bus, logger)
	b.contexts.bindPage(b.page)

	b.watchCrash()
	b.watchProcessExit()
	return b, nil
}

// watchProcessExit reports an abnormal process exit as a crash. A clean exit
// during shutdown, or an exit following a socket-level crash that was already
// reported, stays silent.
func (b *Browser) watchProcessExit() {
	go func() {
		select {
		case <-b.proc.Done():
		case <-b.conn.Done():
			return
		}
		select {
		case <-b.conn.Done():
			return
		default:
		}
		if b.proc.ExitedAbnormally() {
			b.bus.Emit(&event.Event{
				Type: event.TransportCrashed,
				Data: fmt.Errorf("browser process exited abnormally"),
			})
		}
	}()
}

// watchCrash invalidates the page session when the transport reports a
// browser crash. No automatic restart is attempted.
func (b *Browser) watchCrash() {
	subID, ch := b.bus.Subscribe(event.TransportCrashed)
	b.crashSubID = subID
	go func() {
		for ev := range ch {
			b.logger.Errorf("browser", "browser crashed: %v", ev.Data)
			b.sessions.Invalidate()
			b.page.resetDomains()
			ev.Done()
		}
	}()
}

// Page returns the single active page.
func (b *Browser) Page() *Page { return b.page }

// Contexts returns the isolation manager.
func (b *Browser) Contexts() *ContextManager { return b.contexts }

// Close shuts the browser down: a best-effort shutdown command, a bounded
// wait for the process to exit with a force-kill fallback, then
// unconditional teardown of local state. It is idempotent.
func (b *Browser) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		defer func() {
			b.conn.Close()
			b.proc.WaitGrace(chromium.DefaultCloseGrace)
			b.bus.Unsubscribe(b.crashSubID)
			b.sessions.Invalidate()
		}()

		cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := b.conn.Execute(cmdCtx, "Browser.close", nil); err != nil {
			b.logger.Debugf("browser", "graceful shutdown command failed: %s", err)
		}
	})
	return nil
}
