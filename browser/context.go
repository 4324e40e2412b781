package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/tugboatci/tugboat/cdp"
	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/log"
)

// sessionAttacher extends sessionResolver with fresh-target attachment, used
// when switching browsing contexts.
type sessionAttacher interface {
	sessionResolver
	AttachNew(ctx context.Context, browserContextID string) (cdp.SessionID, error)
}

// BrowsingContext is one isolated browsing profile. The exported ID is
// generated locally and never reused; the protocol id stays internal.
type BrowsingContext struct {
	ID         string
	CreatedAt  time.Time
	protocolID string
}

// ContextManager creates and destroys isolated browsing contexts so tests do
// not share storage or state. Creation and destruction are protocol round
// trips and fail when the transport is not connected.
type ContextManager struct {
	conn     transport
	sessions sessionAttacher
	bus      *event.System
	logger   *log.Logger

	mu       sync.Mutex
	contexts map[string]*BrowsingContext
	order    []string
	activeID string
	page     *Page
}

// NewContextManager creates a ContextManager.
func NewContextManager(conn transport, sessions sessionAttacher, bus *event.System, logger *log.Logger) *ContextManager {
	return &ContextManager{
		conn:     conn,
		sessions: sessions,
		bus:      bus,
		logger:   logger,
		contexts: make(map[string]*BrowsingContext),
	}
}

// bindPage ties the manager to the page whose session it replaces on
// context switches.
func (m *ContextManager) bindPage(p *Page) { m.page = p }

// CreateContext creates a new isolated browsing context and returns its id.
func (m *ContextManager) CreateContext(ctx context.Context) (string, error) {
	res, err := m.conn.Execute(ctx, "Target.createBrowserContext", map[string]any{"disposeOnDetach": false})
	if err != nil {
		return "", fmt.Errorf("creating browsing context: %w", err)
	}
	protocolID := gjson.GetBytes(res, "browserContextId").String()

	bc := &BrowsingContext{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now(),
		protocolID: protocolID,
	}
	m.mu.Lock()
	m.contexts[bc.ID] = bc
	m.order = append(m.order, bc.ID)
	m.mu.Unlock()

	m.logger.Debugf("browser:context", "created context %s (protocol %s)", bc.ID, protocolID)
	m.bus.Emit(&event.Event{Type: event.ContextCreated, Data: bc.ID})
	return bc.ID, nil
}

// DestroyContext disposes the context with the given id. An unknown id fails
// with ContextNotFoundError; there is no silent no-op.
func (m *ContextManager) DestroyContext(ctx context.Context, id string) error {
	m.mu.Lock()
	bc, ok := m.contexts[id]
	m.mu.Unlock()
	if !ok {
		return &ContextNotFoundError{ContextID: id}
	}

	_, err := m.conn.Execute(ctx, "Target.disposeBrowserContext", map[string]any{
		"browserContextId": bc.protocolID,
	})
	if err != nil {
		return fmt.Errorf("disposing browsing context %s: %w", id, err)
	}

	m.mu.Lock()
	delete(m.contexts, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.activeID == id {
		m.activeID = ""
	}
	m.mu.Unlock()

	m.logger.Debugf("browser:context", "destroyed context %s", id)
	m.bus.Emit(&event.Event{Type: event.ContextDestroyed, Data: id})
	return nil
}

// SwitchContext makes the context with the given id active by attaching a
// fresh page target created inside it. An unknown id fails without changing
// the active pointer.
func (m *ContextManager) SwitchContext(ctx context.Context, id string) error {
	m.mu.Lock()
	bc, ok := m.contexts[id]
	m.mu.Unlock()
	if !ok {
		return &ContextNotFoundError{ContextID: id}
	}

	if _, err := m.sessions.AttachNew(ctx, bc.protocolID); err != nil {
		return fmt.Errorf("switching to context %s: %w", id, err)
	}
	if m.page != nil {
		// The fresh target has none of the protocol domains enabled yet.
		m.page.resetDomains()
	}

	m.mu.Lock()
	m.activeID = id
	m.mu.Unlock()
	m.logger.Debugf("browser:context", "switched active context to %s", id)
	return nil
}

// ActiveContext returns the id of the active context, or empty.
func (m *ContextManager) ActiveContext() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// ListContexts returns the live context ids in creation order.
func (m *ContextManager) ListContexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
