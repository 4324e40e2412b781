package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/tugboatci/tugboat/errext"
)

// ErrNavigationInProgress is returned when Navigate is called while another
// navigation on the same page has not resolved yet. This is a caller error,
// not a race the page resolves implicitly.
var ErrNavigationInProgress = errors.New("a navigation is already in progress")

// NavigationError reports a navigation that failed or exceeded its deadline.
type NavigationError struct {
	URL     string
	Reason  string
	Elapsed time.Duration
	Timeout time.Duration
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %q failed after %s: %s", e.URL, e.Elapsed, e.Reason)
}

// ErrorDetail implements errext.Detailer.
func (e *NavigationError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "NavigationError",
		Message: e.Reason,
		Fields: map[string]any{
			"url":     e.URL,
			"elapsed": e.Elapsed.String(),
			"timeout": e.Timeout.String(),
		},
	}
}

// SelectorError reports a malformed selector, including unsupported piercing
// syntax.
type SelectorError struct {
	Selector string
	Reason   string
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("invalid selector %q: %s", e.Selector, e.Reason)
}

// ErrorDetail implements errext.Detailer.
func (e *SelectorError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "SelectorError",
		Message: e.Reason,
		Fields:  map[string]any{"selector": e.Selector},
	}
}

// ElementNotFoundError reports that no element matched the selector.
type ElementNotFoundError struct {
	Selector string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("no element matches selector %q", e.Selector)
}

// ErrorDetail implements errext.Detailer.
func (e *ElementNotFoundError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "ElementNotFound",
		Message: e.Error(),
		Fields:  map[string]any{"selector": e.Selector},
	}
}

// ElementNotInteractableError reports an element that matched but cannot
// receive interaction (hidden, disabled or fully transparent).
type ElementNotInteractableError struct {
	Selector string
	Reason   string
}

func (e *ElementNotInteractableError) Error() string {
	return fmt.Sprintf("element %q is not interactable: %s", e.Selector, e.Reason)
}

// ErrorDetail implements errext.Detailer.
func (e *ElementNotInteractableError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "ElementNotInteractable",
		Message: e.Reason,
		Fields:  map[string]any{"selector": e.Selector},
	}
}

// ContextNotFoundError reports an operation against an unknown browsing
// context id.
type ContextNotFoundError struct {
	ContextID string
}

func (e *ContextNotFoundError) Error() string {
	return fmt.Sprintf("browsing context %q not found", e.ContextID)
}

// ErrorDetail implements errext.Detailer.
func (e *ContextNotFoundError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "ContextNotFound",
		Message: e.Error(),
		Fields:  map[string]any{"contextId": e.ContextID},
	}
}
