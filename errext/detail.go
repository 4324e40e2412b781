package errext

import "errors"

// Detail is the uniform serializable form of a domain error: a stable kind
// tag plus the structured fields the error carries (selector, url, timeout,
// elapsed, ...). Reports and trace logs embed it verbatim.
type Detail struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Detailer is implemented by domain errors that expose structured detail.
type Detailer interface {
	ErrorDetail() Detail
}

// DetailOf extracts the structured detail from err. Errors without a
// Detailer in their chain degrade to a generic detail carrying only the
// error text.
func DetailOf(err error) Detail {
	if err == nil {
		return Detail{}
	}
	var d Detailer
	if errors.As(err, &d) {
		return d.ErrorDetail()
	}
	return Detail{Kind: "error", Message: err.Error()}
}
