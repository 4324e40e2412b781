// Package event implements the lifecycle event bus that decouples tugboat's
// components from their observers (trace recorder, report generator).
package event

// Type represents the different event types emitted over the bus.
type Type string

const (
	TransportCrashed Type = "transportCrashed"

	NavigationStarted   Type = "navigationStarted"
	NavigationCompleted Type = "navigationCompleted"
	NavigationFailed    Type = "navigationFailed"

	WaitStarted   Type = "waitStarted"
	WaitCompleted Type = "waitCompleted"
	WaitFailed    Type = "waitFailed"

	ContextCreated   Type = "contextCreated"
	ContextDestroyed Type = "contextDestroyed"

	RunStarted     Type = "runStarted"
	RunCompleted   Type = "runCompleted"
	RunFailed      Type = "runFailed"
	SuiteStarted   Type = "suiteStarted"
	SuiteCompleted Type = "suiteCompleted"
	SuiteFailed    Type = "suiteFailed"
	TestStarted    Type = "testStarted"
	TestCompleted  Type = "testCompleted"
	TestFailed     Type = "testFailed"
)

// AllTypes lists every event type, for subscribers that observe the whole
// lifecycle (e.g. the trace recorder).
func AllTypes() []Type {
	return []Type{
		TransportCrashed,
		NavigationStarted, NavigationCompleted, NavigationFailed,
		WaitStarted, WaitCompleted, WaitFailed,
		ContextCreated, ContextDestroyed,
		RunStarted, RunCompleted, RunFailed,
		SuiteStarted, SuiteCompleted, SuiteFailed,
		TestStarted, TestCompleted, TestFailed,
	}
}

// Event is the emitted event. It contains the event type and an optional
// data payload, and a Done function that must be called by event handlers
// when they're finished processing the event, if the emitter waits on it.
type Event struct {
	Type Type
	Data any
	Done func()
}
