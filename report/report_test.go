package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tugboatci/tugboat/errext"
	"github.com/tugboatci/tugboat/runner"
	"github.com/tugboatci/tugboat/trace"
)

func sampleReport() *JSONReport {
	return BuildJSON(
		&runner.Summary{
			Total: 3, Passed: 1, Failed: 1, Skipped: 1,
			TestDuration: 300 * time.Millisecond,
			Duration:     time.Second,
		},
		[]runner.TestResult{
			{Name: "valid credentials", Suite: "login", Status: runner.StatusPassed, Duration: 120 * time.Millisecond},
			{
				Name: "wrong password", Suite: "login", Status: runner.StatusFailed,
				Duration: 180 * time.Millisecond,
				Error: &errext.Detail{
					Kind:    "AssertionError",
					Message: "Intentional test failure",
					Fields:  map[string]any{"expected": "200", "actual": "403"},
				},
			},
			{Name: "paging", Suite: "search", Status: runner.StatusSkipped},
		},
		[]trace.Entry{
			{Time: time.Now().UTC(), Event: "runStarted", Detail: "2"},
		},
	)
}

func TestReportRoundTrip(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	rep := sampleReport()
	require.NoError(t, WriteJSON(fs, "/reports/run.json", rep))

	buf, err := afero.ReadFile(fs, "/reports/run.json")
	require.NoError(t, err)

	parsed, err := ParseJSON(buf)
	require.NoError(t, err)
	assert.Equal(t, rep.Summary, parsed.Summary)
	require.Len(t, parsed.Results, 3)
	assert.Equal(t, rep.Results[0], parsed.Results[0])
	assert.Equal(t, runner.StatusFailed, parsed.Results[1].Status)
	require.NotNil(t, parsed.Results[1].Error)
	assert.Equal(t, "AssertionError", parsed.Results[1].Error.Kind)
	assert.Equal(t, "Intentional test failure", parsed.Results[1].Error.Message)
	require.Len(t, parsed.Trace, 1)
}

func TestParseJSONMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseJSON([]byte(`{"summary":`))
	require.Error(t, err)
}

func TestWriteConsole(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	WriteConsole(&out, sampleReport(), true)
	text := out.String()

	assert.Contains(t, text, "✓ login / valid credentials")
	assert.Contains(t, text, "✗ login / wrong password")
	assert.Contains(t, text, "AssertionError: Intentional test failure")
	assert.Contains(t, text, "- search / paging")
	assert.Contains(t, text, "3 total, 1 passed, 1 failed, 1 skipped")
}

func TestWriteConsoleAllPassed(t *testing.T) {
	t.Parallel()

	rep := BuildJSON(
		&runner.Summary{Total: 1, Passed: 1, Duration: time.Second},
		[]runner.TestResult{{Name: "a", Suite: "s", Status: runner.StatusPassed}},
		nil,
	)

	var out bytes.Buffer
	WriteConsole(&out, rep, true)
	assert.Contains(t, out.String(), "1 total, 1 passed, 0 failed")
	assert.NotContains(t, out.String(), "skipped")
}
