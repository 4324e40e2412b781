// Package errext contains extensions for normal Go errors: process exit
// codes and the structured detail contract that reports and trace logs
// serialize verbatim.
package errext

import "errors"

// ExitCode is the process exit code an error maps to.
type ExitCode uint8

// Exit codes returned by the tugboat binary.
const (
	GenericError ExitCode = 1
	TestsFailed  ExitCode = 2
	SetupError   ExitCode = 3
	BrowserError ExitCode = 4
)

// HasExitCode is a wrapper around an error with an attached exit code.
type HasExitCode interface {
	error
	ExitCode() ExitCode
}

// WithExitCodeIfNone can attach an exit code to the given error, if it
// doesn't have one already. It won't do anything if the error already had an
// exit code attached.
func WithExitCodeIfNone(err error, exitCode ExitCode) error {
	if err == nil {
		return nil
	}
	var ecerr HasExitCode
	if errors.As(err, &ecerr) {
		return err
	}
	return withExitCode{err, exitCode}
}

type withExitCode struct {
	error
	exitCode ExitCode
}

func (w withExitCode) Unwrap() error      { return w.error }
func (w withExitCode) ExitCode() ExitCode { return w.exitCode }
