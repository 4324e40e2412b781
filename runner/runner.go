// Package runner registers suites, tests and lifecycle hooks and executes
// them strictly sequentially in a fixed deterministic order, with optional
// per-test browsing-context isolation.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tugboatci/tugboat/errext"
	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/log"
)

// TestFunc is a test body. A returned error (or panic) fails the test; the
// failure is caught at the test boundary and never aborts the run.
type TestFunc func(ctx context.Context) error

// HookFunc is a lifecycle hook body.
type HookFunc func(ctx context.Context) error

type hookSet struct {
	beforeAll  []HookFunc
	afterAll   []HookFunc
	beforeEach []HookFunc
	afterEach  []HookFunc
}

// Test is one registered test.
type Test struct {
	Name string
	fn   TestFunc
}

// Suite is an ordered list of tests plus its four hook lists. Suites are
// immutable once registration finishes.
type Suite struct {
	Name  string
	tests []*Test
	hooks hookSet
}

// ContextManager creates and destroys isolated browsing contexts. Satisfied
// by browser.ContextManager.
type ContextManager interface {
	CreateContext(ctx context.Context) (string, error)
	DestroyContext(ctx context.Context, id string) error
}

// RunOptions configure one Run call.
type RunOptions struct {
	// Isolate creates one browsing context per test, destroyed right after
	// the test's cleanup hooks.
	Isolate bool

	// Contexts is the isolation manager. Required when Isolate is set.
	Contexts ContextManager
}

// Runner holds the registration tree and executes it.
type Runner struct {
	logger *log.Logger
	bus    *event.System

	mu           sync.Mutex
	suites       []*Suite
	stack        []*Suite
	defaultSuite *Suite
	global       hookSet
	results      []TestResult
}

// New creates a Runner.
func New(bus *event.System, logger *log.Logger) *Runner {
	return &Runner{logger: logger, bus: bus}
}

// Describe registers a suite and immediately executes body so that nested
// test and hook registrations attach to it. Nesting is supported as a
// stack: the previously active suite is restored afterwards.
func (r *Runner) Describe(name string, body func()) {
	r.mu.Lock()
	if top := r.activeSuite(); top != nil {
		name = top.Name + " / " + name
	}
	s := &Suite{Name: name}
	r.suites = append(r.suites, s)
	r.stack = append(r.stack, s)
	r.mu.Unlock()

	body()

	r.mu.Lock()
	r.stack = r.stack[:len(r.stack)-1]
	r.mu.Unlock()
}

// Test registers a test on the active suite, or on an implicit default
// suite when no Describe is active.
func (r *Runner) Test(name string, fn TestFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.activeSuite()
	if s == nil {
		if r.defaultSuite == nil {
			r.defaultSuite = &Suite{Name: "default"}
			r.suites = append(r.suites, r.defaultSuite)
		}
		s = r.defaultSuite
	}
	s.tests = append(s.tests, &Test{Name: name, fn: fn})
}

// activeSuite returns the top of the registration stack. Callers hold r.mu.
func (r *Runner) activeSuite() *Suite {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

// hookTarget returns the hook set registrations attach to: the active
// suite's if one exists, else the global set. Callers hold r.mu.
func (r *Runner) hookTarget() *hookSet {
	if s := r.activeSuite(); s != nil {
		return &s.hooks
	}
	return &r.global
}

func (r *Runner) BeforeAll(fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.hookTarget()
	t.beforeAll = append(t.beforeAll, fn)
}

func (r *Runner) AfterAll(fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.hookTarget()
	t.afterAll = append(t.afterAll, fn)
}

func (r *Runner) BeforeEach(fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.hookTarget()
	t.beforeEach = append(t.beforeEach, fn)
}

func (r *Runner) AfterEach(fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.hookTarget()
	t.afterEach = append(t.afterEach, fn)
}

// Reset clears all registered suites, hooks and results. Safe to call
// between independent runs.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suites = nil
	r.stack = nil
	r.defaultSuite = nil
	r.global = hookSet{}
	r.results = nil
}

// Results returns a copy of the execution-ordered result list.
func (r *Runner) Results() []TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TestResult, len(r.results))
	copy(out, r.results)
	return out
}

// Run executes all registered suites strictly sequentially:
// global beforeAll; per suite: suite beforeAll, per test ([create context],
// global beforeEach, suite beforeEach, body, suite afterEach, global
// afterEach, [destroy context], record result), suite afterAll; global
// afterAll. Test failures are caught at the test boundary; hook failures
// are reported as suite- or run-level failures and never folded into a
// TestResult: a failing beforeAll/afterAll aborts the enclosing suite (or
// run), a failing beforeEach skips the test it guards.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	r.mu.Lock()
	suites := make([]*Suite, len(r.suites))
	copy(suites, r.suites)
	r.results = nil
	r.mu.Unlock()

	start := time.Now()
	r.bus.Emit(&event.Event{Type: event.RunStarted, Data: len(suites)})

	var runErr error
	if err := r.runHooks(ctx, r.global.beforeAll, "global beforeAll"); err != nil {
		runErr = fmt.Errorf("global beforeAll failed: %w", err)
		r.bus.Emit(&event.Event{Type: event.RunFailed, Data: SuiteFailure{Phase: "beforeAll", Err: err}})
		for _, s := range suites {
			r.skipSuite(s)
		}
	} else {
		for _, s := range suites {
			r.runSuite(ctx, s, opts)
		}
		if err := r.runHooks(ctx, r.global.afterAll, "global afterAll"); err != nil {
			runErr = fmt.Errorf("global afterAll failed: %w", err)
			r.bus.Emit(&event.Event{Type: event.RunFailed, Data: SuiteFailure{Phase: "afterAll", Err: err}})
		}
	}

	summary := r.summarize(time.Since(start))
	r.bus.Emit(&event.Event{Type: event.RunCompleted, Data: summary})
	r.logger.Infof("runner", "run finished: %d total, %d passed, %d failed, %d skipped in %s",
		summary.Total, summary.Passed, summary.Failed, summary.Skipped, summary.Duration)
	return summary, runErr
}

func (r *Runner) runSuite(ctx context.Context, s *Suite, opts RunOptions) {
	r.bus.Emit(&event.Event{Type: event.SuiteStarted, Data: s.Name})

	if err := r.runHooks(ctx, s.hooks.beforeAll, s.Name+" beforeAll"); err != nil {
		r.bus.Emit(&event.Event{Type: event.SuiteFailed, Data: SuiteFailure{Suite: s.Name, Phase: "beforeAll", Err: err}})
		r.skipSuite(s)
		// Cleanup still gets its chance even though the suite was aborted.
		if err := r.runHooks(ctx, s.hooks.afterAll, s.Name+" afterAll"); err != nil {
			r.bus.Emit(&event.Event{Type: event.SuiteFailed, Data: SuiteFailure{Suite: s.Name, Phase: "afterAll", Err: err}})
		}
		return
	}

	for _, t := range s.tests {
		r.runTest(ctx, s, t, opts)
	}

	if err := r.runHooks(ctx, s.hooks.afterAll, s.Name+" afterAll"); err != nil {
		r.bus.Emit(&event.Event{Type: event.SuiteFailed, Data: SuiteFailure{Suite: s.Name, Phase: "afterAll", Err: err}})
		return
	}
	r.bus.Emit(&event.Event{Type: event.SuiteCompleted, Data: s.Name})
}

func (r *Runner) runTest(ctx context.Context, s *Suite, t *Test, opts RunOptions) {
	r.bus.Emit(&event.Event{Type: event.TestStarted, Data: s.Name + " / " + t.Name})
	start := time.Now()

	res := TestResult{Name: t.Name, Suite: s.Name, Status: StatusPassed}

	// A failing beforeEach is a hook failure, not a test failure: the test is
	// never attempted and must not be folded into its TestResult.
	var contextID string
	var beforeEachErr error
	var beforeEachSuite string
	testErr := func() error {
		if opts.Isolate && opts.Contexts != nil {
			id, err := opts.Contexts.CreateContext(ctx)
			if err != nil {
				return fmt.Errorf("creating isolated context: %w", err)
			}
			contextID = id
		}
		if err := r.runHooks(ctx, r.global.beforeEach, "global beforeEach"); err != nil {
			beforeEachErr = err
			return nil
		}
		if err := r.runHooks(ctx, s.hooks.beforeEach, s.Name+" beforeEach"); err != nil {
			beforeEachErr, beforeEachSuite = err, s.Name
			return nil
		}
		return safeCall(ctx, t.fn)
	}()

	// Both afterEach tiers execute regardless of the test's outcome. Their
	// failures are reported but never overwrite the decided outcome.
	if err := r.runHooks(ctx, s.hooks.afterEach, s.Name+" afterEach"); err != nil {
		r.bus.Emit(&event.Event{Type: event.SuiteFailed, Data: SuiteFailure{Suite: s.Name, Phase: "afterEach", Err: err}})
	}
	if err := r.runHooks(ctx, r.global.afterEach, "global afterEach"); err != nil {
		r.bus.Emit(&event.Event{Type: event.SuiteFailed, Data: SuiteFailure{Phase: "afterEach", Err: err}})
	}

	if contextID != "" {
		// Cleanup errors must never mask the test's own pass/fail status.
		if err := opts.Contexts.DestroyContext(ctx, contextID); err != nil {
			r.logger.Warnf("runner", "destroying context %s for test %q: %s", contextID, t.Name, err)
		}
	}

	res.Duration = time.Since(start)
	switch {
	case beforeEachErr != nil:
		res.Status = StatusSkipped
		r.bus.Emit(&event.Event{Type: event.SuiteFailed, Data: SuiteFailure{
			Suite: beforeEachSuite, Phase: "beforeEach", Err: beforeEachErr,
		}})
		r.bus.Emit(&event.Event{Type: event.TestCompleted, Data: res})
	case testErr != nil:
		res.Status = StatusFailed
		detail := errext.DetailOf(testErr)
		res.Error = &detail
		r.bus.Emit(&event.Event{Type: event.TestFailed, Data: res})
	default:
		r.bus.Emit(&event.Event{Type: event.TestCompleted, Data: res})
	}

	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// skipSuite records every test of an aborted suite as skipped. They were
// never attempted and must not be marked as passed.
func (r *Runner) skipSuite(s *Suite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range s.tests {
		r.results = append(r.results, TestResult{Name: t.Name, Suite: s.Name, Status: StatusSkipped})
	}
}

func (r *Runner) runHooks(ctx context.Context, hooks []HookFunc, phase string) error {
	for i, h := range hooks {
		if err := safeCall(ctx, h); err != nil {
			r.logger.Errorf("runner", "%s hook %d failed: %s", phase, i, err)
			return err
		}
	}
	return nil
}

func (r *Runner) summarize(wall time.Duration) *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &Summary{Total: len(r.results), Duration: wall}
	for _, res := range r.results {
		switch res.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
		s.TestDuration += res.Duration
	}
	return s
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}
