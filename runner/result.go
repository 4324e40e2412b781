package runner

import (
	"fmt"
	"time"

	"github.com/tugboatci/tugboat/errext"
)

// Status is the outcome of one executed test.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// TestResult is the permanent record of one test in a run. Appended exactly
// once per test, in execution order.
type TestResult struct {
	Name     string         `json:"name"`
	Suite    string         `json:"suite"`
	Status   Status         `json:"status"`
	Duration time.Duration  `json:"duration"`
	Error    *errext.Detail `json:"error,omitempty"`
}

// Summary aggregates one run.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`

	// TestDuration is the summed per-test duration; Duration is the run's
	// own wall-clock time including hooks.
	TestDuration time.Duration `json:"testDuration"`
	Duration     time.Duration `json:"duration"`
}

// AllPassed reports whether the run had no failures and nothing skipped by a
// hook failure.
func (s *Summary) AllPassed() bool {
	return s.Failed == 0 && s.Skipped == 0
}

// AssertionError is a structured test-body failure.
type AssertionError struct {
	Message  string
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	if e.Expected == nil && e.Actual == nil {
		return e.Message
	}
	return fmt.Sprintf("%s (expected %v, got %v)", e.Message, e.Expected, e.Actual)
}

// ErrorDetail implements errext.Detailer.
func (e *AssertionError) ErrorDetail() errext.Detail {
	fields := map[string]any{}
	if e.Expected != nil || e.Actual != nil {
		fields["expected"] = fmt.Sprintf("%v", e.Expected)
		fields["actual"] = fmt.Sprintf("%v", e.Actual)
	}
	return errext.Detail{Kind: "AssertionError", Message: e.Message, Fields: fields}
}

// SuiteFailure travels on suiteFailed/runFailed events when a hook outside a
// test boundary fails.
type SuiteFailure struct {
	Suite string
	Phase string
	Err   error
}
