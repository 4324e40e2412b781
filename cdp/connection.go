package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/log"
)

const (
	wsWriteBufferSize = 1 << 20

	// DefaultCommandTimeout bounds every in-flight command.
	DefaultCommandTimeout = 30 * time.Second

	// eventBufferSize is the per-subscriber channel buffer. Subscribers that
	// fall this far behind lose events and a warning is logged.
	eventBufferSize = 256
)

// Options tune a Connection. The zero value selects defaults.
type Options struct {
	// CommandTimeout overrides DefaultCommandTimeout.
	CommandTimeout time.Duration

	// AliveProbe reports whether the browser process is still alive. When
	// the socket drops while the probe reports true, the closure is treated
	// as a browser crash.
	AliveProbe func() bool
}

type commandResult struct {
	msg *Message
	err error
}

// pendingCommand is an in-flight request awaiting its correlated response.
// An entry is removed from the table exactly once: by the matching response,
// by its own timer firing, or by connection teardown. Whichever path removes
// the entry settles the command; the others become no-ops.
type pendingCommand struct {
	id      int64
	method  string
	resCh   chan commandResult
	timer   *time.Timer
	created time.Time
}

// Connection is a WebSocket connection to a browser's DevTools endpoint. It
// multiplexes correlated command/response pairs and broadcasts asynchronous
// protocol events to subscribers.
type Connection struct {
	logger *log.Logger
	bus    *event.System
	wsURL  string
	conn   *websocket.Conn
	opts   Options

	sendCh       chan *Message
	done         chan struct{}
	shutdownOnce sync.Once

	msgID int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCommand

	subsMu sync.RWMutex
	subID  uint64
	subs   map[uint64]chan Event
}

// NewConnection dials the browser's WebSocket endpoint and starts the
// send/receive loops.
func NewConnection(
	ctx context.Context, wsURL string, logger *log.Logger, bus *event.System, opts Options,
) (*Connection, error) {
	wsd := websocket.Dialer{
		HandshakeTimeout: time.Minute,
		Proxy:            http.ProxyFromEnvironment,
		WriteBufferSize:  wsWriteBufferSize,
	}

	conn, _, err := wsd.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}

	c := Connection{
		logger:  logger,
		bus:     bus,
		wsURL:   wsURL,
		conn:    conn,
		opts:    opts,
		sendCh:  make(chan *Message, 32), // Avoid blocking in Execute
		done:    make(chan struct{}),
		pending: make(map[int64]*pendingCommand),
		subs:    make(map[uint64]chan Event),
	}

	go c.recvLoop()
	go c.sendLoop()

	return &c, nil
}

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Execute sends a root-session command and blocks for its correlated
// response, the command timer, or ctx cancellation, whichever happens first.
func (c *Connection) Execute(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.execute(ctx, "", method, params)
}

// ExecuteWithSession sends a command scoped to the given session.
func (c *Connection) ExecuteWithSession(
	ctx context.Context, sessionID SessionID, method string, params any,
) (json.RawMessage, error) {
	return c.execute(ctx, sessionID, method, params)
}

func (c *Connection) execute(
	ctx context.Context, sessionID SessionID, method string, params any,
) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, ErrTransportClosed
	default:
	}

	var buf json.RawMessage
	if params != nil {
		var err error
		buf, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
	}

	id := atomic.AddInt64(&c.msgID, 1)
	pc := &pendingCommand{
		id:      id,
		method:  method,
		resCh:   make(chan commandResult, 1),
		created: time.Now(),
	}
	c.pendingMu.Lock()
	c.pending[id] = pc
	c.pendingMu.Unlock()

	pc.timer = time.AfterFunc(c.opts.CommandTimeout, func() {
		if c.takePending(id) == nil {
			return // already settled by a response or by teardown
		}
		pc.resCh <- commandResult{err: &CommandTimeoutError{Method: method, Timeout: c.opts.CommandTimeout}}
	})

	msg := &Message{ID: id, SessionID: sessionID, Method: method, Params: buf}
	select {
	case c.sendCh <- msg:
	case <-c.done:
		c.removePending(id)
		return nil, ErrTransportClosed
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}

	select {
	case res := <-pc.resCh:
		if res.err != nil {
			return nil, res.err
		}
		if res.msg.Error != nil {
			return nil, &ProtocolError{Method: method, Code: res.msg.Error.Code, Message: res.msg.Error.Message}
		}
		return res.msg.Result, nil
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// takePending removes and returns the table entry for id, or nil if another
// settlement path won.
func (c *Connection) takePending(id int64) *pendingCommand {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	pc := c.pending[id]
	delete(c.pending, id)
	return pc
}

// removePending removes the entry and cancels its timer without settling it.
func (c *Connection) removePending(id int64) {
	if pc := c.takePending(id); pc != nil && pc.timer != nil {
		pc.timer.Stop()
	}
}

func (c *Connection) failAllPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingCommand)
	c.pendingMu.Unlock()

	for _, pc := range pending {
		if pc.timer != nil {
			pc.timer.Stop()
		}
		pc.resCh <- commandResult{err: err}
	}
}

// Subscribe registers a listener for asynchronous protocol events. The
// returned cancel function must be called once the listener is done; it
// closes the event channel.
func (c *Connection) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBufferSize)

	c.subsMu.Lock()
	c.subID++
	id := c.subID
	c.subs[id] = ch
	c.subsMu.Unlock()

	cancel := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Connection) broadcast(ev Event) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warnf("cdp", "subscriber %d too slow, dropping event %q", id, ev.Method)
		}
	}
}

func (c *Connection) recvLoop() {
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			c.handleIOError(err)
			return
		}

		c.logger.Tracef("cdp:recv", "<- %s", buf)

		var msg Message
		if err := json.Unmarshal(buf, &msg); err != nil {
			c.logger.Errorf("cdp", "malformed incoming message: %s", err)
			continue
		}

		// An event and a response are not mutually exclusive: broadcast any
		// method-carrying message and, independently, settle any id match.
		if msg.Method != "" {
			c.broadcast(Event{Method: msg.Method, Params: msg.Params, SessionID: msg.SessionID})
		}
		if msg.ID != 0 {
			if pc := c.takePending(msg.ID); pc != nil {
				if pc.timer != nil {
					pc.timer.Stop()
				}
				pc.resCh <- commandResult{msg: &msg}
			}
		}
		if msg.Method == "" && msg.ID == 0 {
			c.logger.Errorf("cdp", "ignoring incoming message with neither id nor method: %s", buf)
		}
	}
}

func (c *Connection) sendLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			buf, err := json.Marshal(msg)
			if err != nil {
				c.logger.Errorf("cdp", "marshaling outgoing message: %s", err)
				continue
			}
			c.logger.Tracef("cdp:send", "-> %s", buf)
			if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				c.handleIOError(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) handleIOError(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	crashed := websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
		c.opts.AliveProbe != nil && c.opts.AliveProbe()
	if crashed {
		c.logger.Errorf("cdp", "socket closed while browser process alive: %s", err)
		if c.bus != nil {
			c.bus.Emit(&event.Event{Type: event.TransportCrashed, Data: err})
		}
		c.close(websocket.CloseAbnormalClosure, ErrBrowserCrashed)
		return
	}
	c.close(websocket.CloseGoingAway, ErrTransportClosed)
}

// Close cleanly shuts the connection down. It is idempotent.
func (c *Connection) Close() {
	c.close(websocket.CloseGoingAway, ErrTransportClosed)
}

// close tears down the socket, settles every pending command with pendingErr
// and closes all subscriber channels. All state is cleared regardless of
// which step fails.
func (c *Connection) close(code int, pendingErr error) {
	c.shutdownOnce.Do(func() {
		defer func() {
			_ = c.conn.Close()
			close(c.done)
		}()

		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(10*time.Second),
		)

		c.failAllPending(pendingErr)

		c.subsMu.Lock()
		for id, ch := range c.subs {
			delete(c.subs, id)
			close(ch)
		}
		c.subsMu.Unlock()
	})
}
