package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/poll"
)

// DefaultWaitTimeout bounds an explicit wait unless overridden.
const DefaultWaitTimeout = 30 * time.Second

// WaitKind tags what an explicit wait is waiting for.
type WaitKind string

const (
	WaitSelectorExists  WaitKind = "selector-exists"
	WaitSelectorHidden  WaitKind = "selector-hidden"
	WaitTextMatch       WaitKind = "text-match"
	WaitCustomCondition WaitKind = "custom-condition"
)

// WaitDescriptor is the bookkeeping record for one in-progress explicit
// wait. It exists only for the duration of the wait call and is always
// removed, whatever the outcome.
type WaitDescriptor struct {
	ID       string
	Kind     WaitKind
	Selector string
	Deadline time.Time
	Interval time.Duration
}

type waitRegistry struct {
	mu    sync.Mutex
	waits map[string]WaitDescriptor
}

func newWaitRegistry() *waitRegistry {
	return &waitRegistry{waits: make(map[string]WaitDescriptor)}
}

func (r *waitRegistry) add(kind WaitKind, selector string, timeout, interval time.Duration) WaitDescriptor {
	desc := WaitDescriptor{
		ID:       uuid.NewString(),
		Kind:     kind,
		Selector: selector,
		Deadline: time.Now().Add(timeout),
		Interval: interval,
	}
	r.mu.Lock()
	r.waits[desc.ID] = desc
	r.mu.Unlock()
	return desc
}

func (r *waitRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.waits, id)
	r.mu.Unlock()
}

func (r *waitRegistry) snapshot() []WaitDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WaitDescriptor, 0, len(r.waits))
	for _, d := range r.waits {
		out = append(out, d)
	}
	return out
}

// WaitOptions configure one explicit wait.
type WaitOptions struct {
	Timeout time.Duration // defaults to DefaultWaitTimeout

	// Interval overrides the fixed poll interval. Honored only by
	// WaitForCondition; selector, hidden and text waits always poll at
	// poll.DefaultInterval.
	Interval time.Duration
}

func (o *WaitOptions) withDefaults(kind WaitKind) WaitOptions {
	out := *o
	if out.Timeout <= 0 {
		out.Timeout = DefaultWaitTimeout
	}
	if kind != WaitCustomCondition || out.Interval <= 0 {
		out.Interval = poll.DefaultInterval
	}
	return out
}

// runWait registers the descriptor, polls the condition and guarantees the
// descriptor is removed on every exit path.
func (p *Page) runWait(
	ctx context.Context, kind WaitKind, selector string, cond poll.Condition, opts WaitOptions,
) error {
	opts = opts.withDefaults(kind)
	desc := p.waits.add(kind, selector, opts.Timeout, opts.Interval)
	defer p.waits.remove(desc.ID)

	p.bus.Emit(&event.Event{Type: event.WaitStarted, Data: desc})
	err := poll.Poll(ctx, cond, poll.Options{Timeout: opts.Timeout, Interval: opts.Interval})
	if err != nil {
		p.logger.Debugf("browser:wait", "%s wait on %q failed: %s", kind, selector, err)
		p.bus.Emit(&event.Event{Type: event.WaitFailed, Data: desc})
		return err
	}
	p.bus.Emit(&event.Event{Type: event.WaitCompleted, Data: desc})
	return nil
}

// WaitForSelector waits until an element matching selector exists.
func (p *Page) WaitForSelector(ctx context.Context, selector string, opts WaitOptions) error {
	return p.runWait(ctx, WaitSelectorExists, selector, func(ctx context.Context) (bool, error) {
		state, err := p.QueryElement(ctx, selector)
		if err != nil {
			return false, err
		}
		return state.Exists, nil
	}, opts)
}

// WaitForHidden waits until no element matching selector is visible.
// Non-existence counts as hidden, so a selector that never matched succeeds
// immediately.
func (p *Page) WaitForHidden(ctx context.Context, selector string, opts WaitOptions) error {
	return p.runWait(ctx, WaitSelectorHidden, selector, func(ctx context.Context) (bool, error) {
		state, err := p.QueryElement(ctx, selector)
		if err != nil {
			return false, err
		}
		return !state.Exists || !state.Visible, nil
	}, opts)
}

// WaitForText waits until the element's text matches expected: exact
// equality when exact is set, case-sensitive substring containment
// otherwise.
func (p *Page) WaitForText(ctx context.Context, selector, expected string, exact bool, opts WaitOptions) error {
	return p.runWait(ctx, WaitTextMatch, selector, func(ctx context.Context) (bool, error) {
		state, err := p.QueryElement(ctx, selector)
		if err != nil {
			return false, err
		}
		if !state.Exists {
			return false, nil
		}
		if exact {
			return state.Text == expected, nil
		}
		return strings.Contains(state.Text, expected), nil
	}, opts)
}

// WaitForCondition waits until the supplied condition holds. A custom poll
// interval may be supplied through opts.
func (p *Page) WaitForCondition(ctx context.Context, cond poll.Condition, opts WaitOptions) error {
	return p.runWait(ctx, WaitCustomCondition, "", cond, opts)
}
