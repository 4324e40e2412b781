package browser

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tugboatci/tugboat/cdp"
	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/log"
)

type fakeCall struct {
	method string
	params json.RawMessage
}

// fakeTransport implements transport with per-method handlers and a local
// event feed. Methods without a handler succeed with an empty result.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(params json.RawMessage) (json.RawMessage, error)
	calls    []fakeCall
	subs     map[int]chan cdp.Event
	subSeq   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]func(json.RawMessage) (json.RawMessage, error)),
		subs:     make(map[int]chan cdp.Event),
	}
}

func (f *fakeTransport) handle(method string, h func(params json.RawMessage) (json.RawMessage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

// respond registers a fixed raw response for method.
func (f *fakeTransport) respond(method, result string) {
	f.handle(method, func(json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	})
}

// respondSeq registers a queue of responses for method; the last one repeats.
func (f *fakeTransport) respondSeq(method string, results ...string) {
	var mu sync.Mutex
	var i int
	f.handle(method, func(json.RawMessage) (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		res := results[i]
		if i < len(results)-1 {
			i++
		}
		return json.RawMessage(res), nil
	})
}

func (f *fakeTransport) Execute(_ context.Context, method string, params any) (json.RawMessage, error) {
	return f.dispatch(method, params)
}

func (f *fakeTransport) ExecuteWithSession(
	_ context.Context, _ cdp.SessionID, method string, params any,
) (json.RawMessage, error) {
	return f.dispatch(method, params)
}

func (f *fakeTransport) dispatch(method string, params any) (json.RawMessage, error) {
	var buf json.RawMessage
	if params != nil {
		var err error
		if buf, err = json.Marshal(params); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{method: method, params: buf})
	h := f.handlers[method]
	f.mu.Unlock()

	if h == nil {
		return json.RawMessage(`{}`), nil
	}
	return h(buf)
}

func (f *fakeTransport) Subscribe() (<-chan cdp.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subSeq++
	id := f.subSeq
	ch := make(chan cdp.Event, 64)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// emit fans a protocol event out to every subscriber.
func (f *fakeTransport) emit(method, params string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- cdp.Event{Method: method, Params: json.RawMessage(params)}
	}
}

func (f *fakeTransport) callsTo(method string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// hasSubscriber reports whether any event listener is currently armed.
func (f *fakeTransport) hasSubscriber() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs) > 0
}

// fakeSessions resolves every attach to a fixed session id and records the
// browser context ids passed to AttachNew.
type fakeSessions struct {
	mu         sync.Mutex
	attaches   int
	attachNews []string
}

func (s *fakeSessions) Attach(context.Context) (cdp.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attaches++
	return "S-test", nil
}

func (s *fakeSessions) AttachNew(_ context.Context, browserContextID string) (cdp.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachNews = append(s.attachNews, browserContextID)
	return "S-test", nil
}

func nullLogrus() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestPage(t *testing.T) (*Page, *fakeTransport, *event.System) {
	t.Helper()
	conn := newFakeTransport()
	bus := event.NewEventSystem(100, nullLogrus())
	p := NewPage(conn, &fakeSessions{}, bus, log.NewNullLogger())
	return p, conn, bus
}

// elementResponse builds a Runtime.evaluate response whose by-value result is
// the given element observation.
func elementResponse(t *testing.T, state map[string]any) string {
	t.Helper()
	buf, err := json.Marshal(map[string]any{"result": map[string]any{"value": state}})
	if err != nil {
		t.Fatalf("marshaling element response: %s", err)
	}
	return string(buf)
}

func visibleElement(x, y, w, h float64) map[string]any {
	return map[string]any{
		"exists":  true,
		"visible": true,
		"x":       x,
		"y":       y,
		"width":   w,
		"height":  h,
		"text":    "",
		"opacity": 1,
	}
}
