package browser

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// ElementState is a point-in-time observation of the first element matching
// a selector within the active page.
type ElementState struct {
	Exists     bool
	Visible    bool
	X          float64
	Y          float64
	Width      float64
	Height     float64
	Text       string
	Attributes map[string]string
	Disabled   bool
	Opacity    float64
}

// Center returns the element's center point in page coordinates.
func (s *ElementState) Center() (x, y float64) {
	return s.X + s.Width/2, s.Y + s.Height/2
}

// queryElementJS observes the first match of a selector in one evaluation.
// querySelector failures are caught and reported so a malformed selector can
// be told apart from an evaluation error.
const queryElementJS = `(() => {
	let el;
	try {
		el = document.querySelector(%q);
	} catch (e) {
		return { selectorError: String((e && e.message) || e) };
	}
	if (!el) {
		return { exists: false };
	}
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	const opacity = parseFloat(style.opacity);
	const attrs = {};
	for (const a of el.attributes) {
		attrs[a.name] = a.value;
	}
	return {
		exists: true,
		visible: rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none' && opacity > 0,
		x: rect.x,
		y: rect.y,
		width: rect.width,
		height: rect.height,
		text: el.textContent || '',
		attributes: attrs,
		disabled: !!el.disabled,
		opacity: opacity,
	};
})()`

// QueryElement evaluates the element query primitive for selector. A
// non-existent element is a valid observation, not an error; a malformed
// selector fails with SelectorError.
func (p *Page) QueryElement(ctx context.Context, selector string) (*ElementState, error) {
	res, err := p.command(ctx, "Runtime.evaluate", map[string]any{
		"expression":    fmt.Sprintf(queryElementJS, selector),
		"returnByValue": true,
	})
	if err != nil {
		return nil, err
	}
	if exc := gjson.GetBytes(res, "exceptionDetails.exception.description").String(); exc != "" {
		return nil, fmt.Errorf("element query failed: %s", exc)
	}

	value := gjson.GetBytes(res, "result.value")
	if reason := value.Get("selectorError").String(); reason != "" {
		return nil, &SelectorError{Selector: selector, Reason: reason}
	}

	state := &ElementState{
		Exists:   value.Get("exists").Bool(),
		Visible:  value.Get("visible").Bool(),
		X:        value.Get("x").Float(),
		Y:        value.Get("y").Float(),
		Width:    value.Get("width").Float(),
		Height:   value.Get("height").Float(),
		Text:     value.Get("text").String(),
		Disabled: value.Get("disabled").Bool(),
		Opacity:  value.Get("opacity").Float(),
	}
	if attrs := value.Get("attributes"); attrs.IsObject() {
		state.Attributes = make(map[string]string)
		attrs.ForEach(func(key, val gjson.Result) bool {
			state.Attributes[key.String()] = val.String()
			return true
		})
	}
	return state, nil
}
