package trace

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/log"
)

func newTestRecorder(t *testing.T) (*Recorder, *event.System) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	sys := event.NewEventSystem(100, l)
	r := NewRecorder(sys, log.NewNullLogger())
	t.Cleanup(r.Stop)
	return r, sys
}

func TestRecorderRecordsInOrder(t *testing.T) {
	t.Parallel()

	r, sys := newTestRecorder(t)

	for _, ev := range []*event.Event{
		{Type: event.RunStarted, Data: 2},
		{Type: event.TestStarted, Data: "login / valid credentials"},
		{Type: event.TestCompleted},
		{Type: event.RunCompleted},
	} {
		wait := sys.Emit(ev)
		require.NoError(t, wait(context.Background()))
	}

	entries := r.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, event.RunStarted, entries[0].Event)
	assert.Equal(t, "2", entries[0].Detail)
	assert.Equal(t, event.TestStarted, entries[1].Event)
	assert.Equal(t, "login / valid credentials", entries[1].Detail)
	assert.Empty(t, entries[2].Detail, "events without data carry no detail")
	assert.False(t, entries[0].Time.IsZero())
}

func TestRecorderStop(t *testing.T) {
	t.Parallel()

	r, sys := newTestRecorder(t)

	wait := sys.Emit(&event.Event{Type: event.RunStarted})
	require.NoError(t, wait(context.Background()))
	r.Stop()

	// Emissions after Stop are not recorded.
	sys.Emit(&event.Event{Type: event.RunCompleted})
	assert.Len(t, r.Entries(), 1)
}
