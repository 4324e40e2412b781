package cdp

import (
	"errors"
	"fmt"
	"time"

	"github.com/tugboatci/tugboat/errext"
)

// ErrTransportClosed is returned for commands issued on, or in flight over,
// a connection that has been closed.
var ErrTransportClosed = errors.New("transport closed")

// ErrBrowserCrashed is returned for in-flight commands when the socket drops
// while the browser process is still recorded as alive.
var ErrBrowserCrashed = errors.New("browser crashed")

// ProtocolError is a command-level failure reported by the browser.
type ProtocolError struct {
	Method  string
	Code    int64
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %s: %s", e.Method, e.Message)
}

// ErrorDetail implements errext.Detailer.
func (e *ProtocolError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "ProtocolError",
		Message: e.Message,
		Fields: map[string]any{
			"method": e.Method,
			"code":   e.Code,
		},
	}
}

// CommandTimeoutError is returned when a command's response does not arrive
// before its timer fires.
type CommandTimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %s timed out after %s", e.Method, e.Timeout)
}

// ErrorDetail implements errext.Detailer.
func (e *CommandTimeoutError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "CommandTimeout",
		Message: e.Error(),
		Fields: map[string]any{
			"method":  e.Method,
			"timeout": e.Timeout.String(),
		},
	}
}
