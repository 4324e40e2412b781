package browser

import "context"

// interactable returns the element's state if it can receive interaction,
// or the appropriate domain error otherwise.
func (p *Page) interactable(ctx context.Context, selector string) (*ElementState, error) {
	state, err := p.QueryElement(ctx, selector)
	if err != nil {
		return nil, err
	}
	switch {
	case !state.Exists:
		return nil, &ElementNotFoundError{Selector: selector}
	case state.Opacity == 0:
		return nil, &ElementNotInteractableError{Selector: selector, Reason: "zero opacity"}
	case !state.Visible:
		return nil, &ElementNotInteractableError{Selector: selector, Reason: "hidden"}
	case state.Disabled:
		return nil, &ElementNotInteractableError{Selector: selector, Reason: "disabled"}
	}
	return state, nil
}

// Click dispatches a left mouse press/release pair at the center of the
// first element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	state, err := p.interactable(ctx, selector)
	if err != nil {
		return err
	}
	x, y := state.Center()

	for _, typ := range []string{"mousePressed", "mouseReleased"} {
		_, err := p.command(ctx, "Input.dispatchMouseEvent", map[string]any{
			"type":       typ,
			"x":          x,
			"y":          y,
			"button":     "left",
			"clickCount": 1,
		})
		if err != nil {
			return err
		}
	}
	p.logger.Debugf("browser:action", "clicked %q at (%.0f, %.0f)", selector, x, y)
	return nil
}

// Type clicks the element to focus it, then inserts text as if typed.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	if err := p.Click(ctx, selector); err != nil {
		return err
	}
	if _, err := p.command(ctx, "Input.insertText", map[string]any{"text": text}); err != nil {
		return err
	}
	p.logger.Debugf("browser:action", "typed %d chars into %q", len(text), selector)
	return nil
}
