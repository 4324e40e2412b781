package chromium

import (
	"fmt"
	"time"

	"github.com/tugboatci/tugboat/errext"
)

// LaunchTimeoutError is returned when the browser's discovery endpoint does
// not answer within the launch timeout.
type LaunchTimeoutError struct {
	Timeout time.Duration
}

func (e *LaunchTimeoutError) Error() string {
	return fmt.Sprintf("browser did not become ready within %s", e.Timeout)
}

// ErrorDetail implements errext.Detailer.
func (e *LaunchTimeoutError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "LaunchTimeout",
		Message: e.Error(),
		Fields:  map[string]any{"timeout": e.Timeout.String()},
	}
}
