package cdp

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tugboatci/tugboat/log"
)

// SessionRegistry resolves the single active page into a (target, session)
// pair used to scope page-level protocol commands. The pair is created
// lazily on first use, lives for the lifetime of the connection and is
// invalidated on browser crash.
type SessionRegistry struct {
	conn   *Connection
	logger *log.Logger

	mu        chan struct{} // 1-slot semaphore so attach round-trips don't interleave
	targetID  TargetID
	sessionID SessionID
}

// NewSessionRegistry creates a registry bound to conn.
func NewSessionRegistry(conn *Connection, logger *log.Logger) *SessionRegistry {
	r := &SessionRegistry{
		conn:   conn,
		logger: logger,
		mu:     make(chan struct{}, 1),
	}
	r.mu <- struct{}{}
	return r
}

func (r *SessionRegistry) lock(ctx context.Context) error {
	select {
	case <-r.mu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SessionRegistry) unlock() { r.mu <- struct{}{} }

// Attach returns the active page session, resolving one if absent: it picks
// the first existing page target or creates a blank one, then attaches with
// a flattened session.
func (r *SessionRegistry) Attach(ctx context.Context) (SessionID, error) {
	if err := r.lock(ctx); err != nil {
		return "", err
	}
	defer r.unlock()

	if r.sessionID != "" {
		return r.sessionID, nil
	}

	targetID, err := r.findPageTarget(ctx)
	if err != nil {
		return "", err
	}
	if targetID == "" {
		if targetID, err = r.createPageTarget(ctx, ""); err != nil {
			return "", err
		}
	}
	return r.attach(ctx, targetID)
}

// AttachNew discards the current pair and attaches a fresh page target,
// created inside browserContextID when it is non-empty.
func (r *SessionRegistry) AttachNew(ctx context.Context, browserContextID string) (SessionID, error) {
	if err := r.lock(ctx); err != nil {
		return "", err
	}
	defer r.unlock()

	r.targetID, r.sessionID = "", ""
	targetID, err := r.createPageTarget(ctx, browserContextID)
	if err != nil {
		return "", err
	}
	return r.attach(ctx, targetID)
}

// Current returns the cached pair without resolving one.
func (r *SessionRegistry) Current() (TargetID, SessionID, bool) {
	select {
	case <-r.mu:
	default:
		return "", "", false
	}
	defer r.unlock()
	return r.targetID, r.sessionID, r.sessionID != ""
}

// Invalidate clears the cached pair. Called on browser crash.
func (r *SessionRegistry) Invalidate() {
	<-r.mu
	defer r.unlock()
	r.logger.Debugf("cdp:session", "invalidating session %q for target %q", r.sessionID, r.targetID)
	r.targetID, r.sessionID = "", ""
}

func (r *SessionRegistry) findPageTarget(ctx context.Context) (TargetID, error) {
	res, err := r.conn.Execute(ctx, "Target.getTargets", nil)
	if err != nil {
		return "", fmt.Errorf("listing targets: %w", err)
	}
	var targetID TargetID
	gjson.GetBytes(res, "targetInfos").ForEach(func(_, info gjson.Result) bool {
		if info.Get("type").String() == "page" {
			targetID = TargetID(info.Get("targetId").String())
			return false
		}
		return true
	})
	return targetID, nil
}

func (r *SessionRegistry) createPageTarget(ctx context.Context, browserContextID string) (TargetID, error) {
	params := map[string]any{"url": "about:blank"}
	if browserContextID != "" {
		params["browserContextId"] = browserContextID
	}
	res, err := r.conn.Execute(ctx, "Target.createTarget", params)
	if err != nil {
		return "", fmt.Errorf("creating page target: %w", err)
	}
	return TargetID(gjson.GetBytes(res, "targetId").String()), nil
}

func (r *SessionRegistry) attach(ctx context.Context, targetID TargetID) (SessionID, error) {
	res, err := r.conn.Execute(ctx, "Target.attachToTarget", map[string]any{
		"targetId": targetID,
		"flatten":  true,
	})
	if err != nil {
		return "", fmt.Errorf("attaching to target %q: %w", targetID, err)
	}
	sessionID := SessionID(gjson.GetBytes(res, "sessionId").String())
	r.targetID, r.sessionID = targetID, sessionID
	r.logger.Debugf("cdp:session", "attached session %q to target %q", sessionID, targetID)
	return sessionID, nil
}
