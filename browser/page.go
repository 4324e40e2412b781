// Package browser builds the page-level machinery on top of the cdp
// transport: the navigation state machine, explicit waits, the element query
// primitive and isolated browsing contexts.
package browser

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tugboatci/tugboat/cdp"
	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/log"
)

// transport is the subset of cdp.Connection the page machinery needs.
type transport interface {
	Execute(ctx context.Context, method string, params any) (json.RawMessage, error)
	ExecuteWithSession(ctx context.Context, sessionID cdp.SessionID, method string, params any) (json.RawMessage, error)
	Subscribe() (<-chan cdp.Event, func())
}

// sessionResolver resolves the active page session.
type sessionResolver interface {
	Attach(ctx context.Context) (cdp.SessionID, error)
}

// Page drives the single active page: navigation, waits, element queries and
// interactions.
type Page struct {
	conn     transport
	sessions sessionResolver
	bus      *event.System
	logger   *log.Logger

	mu             sync.Mutex
	navigating     bool
	networkEnabled bool
	pageEnabled    bool
	currentURL     string
	lastMetrics    *NavigationMetrics

	waits *waitRegistry
}

// NewPage creates a Page bound to the given transport and session resolver.
func NewPage(conn transport, sessions sessionResolver, bus *event.System, logger *log.Logger) *Page {
	return &Page{
		conn:     conn,
		sessions: sessions,
		bus:      bus,
		logger:   logger,
		waits:    newWaitRegistry(),
	}
}

// URL returns the page's last successfully navigated URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentURL
}

// LastNavigationMetrics returns the metrics of the last successful
// navigation, or nil.
func (p *Page) LastNavigationMetrics() *NavigationMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastMetrics
}

// ActiveWaits returns a snapshot of the in-progress explicit waits.
func (p *Page) ActiveWaits() []WaitDescriptor {
	return p.waits.snapshot()
}

// command attaches the page session if needed and sends a session-scoped
// protocol command.
func (p *Page) command(ctx context.Context, method string, params any) (json.RawMessage, error) {
	sessionID, err := p.sessions.Attach(ctx)
	if err != nil {
		return nil, err
	}
	return p.conn.ExecuteWithSession(ctx, sessionID, method, params)
}

// enableDomains turns on the Page domain, and the Network domain when
// network tracking is required for idle detection. Both are one-time.
func (p *Page) enableDomains(ctx context.Context, network bool) error {
	p.mu.Lock()
	needPage, needNetwork := !p.pageEnabled, network && !p.networkEnabled
	p.mu.Unlock()

	if needPage {
		if _, err := p.command(ctx, "Page.enable", nil); err != nil {
			return err
		}
		p.mu.Lock()
		p.pageEnabled = true
		p.mu.Unlock()
	}
	if needNetwork {
		if _, err := p.command(ctx, "Network.enable", nil); err != nil {
			return err
		}
		p.mu.Lock()
		p.networkEnabled = true
		p.mu.Unlock()
	}
	return nil
}

// resetDomains clears the enabled-domain bookkeeping. Called when the
// underlying session is invalidated.
func (p *Page) resetDomains() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageEnabled, p.networkEnabled = false, false
}
