// Package trace records the run's lifecycle events from the event bus into
// an append-only, snapshotable log.
package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/log"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	Time   time.Time  `json:"time"`
	Event  event.Type `json:"event"`
	Detail string     `json:"detail,omitempty"`
}

// Recorder subscribes to every lifecycle event and appends entries in
// arrival order.
type Recorder struct {
	sys    *event.System
	logger *log.Logger
	subID  uint64
	done   chan struct{}

	mu      sync.Mutex
	entries []Entry
}

// NewRecorder starts recording. Stop releases the subscription.
func NewRecorder(sys *event.System, logger *log.Logger) *Recorder {
	r := &Recorder{sys: sys, logger: logger, done: make(chan struct{})}

	subID, ch := sys.Subscribe(event.AllTypes()...)
	r.subID = subID
	go func() {
		defer close(r.done)
		for ev := range ch {
			e := Entry{Time: time.Now(), Event: ev.Type}
			if ev.Data != nil {
				e.Detail = fmt.Sprintf("%+v", ev.Data)
			}
			r.mu.Lock()
			r.entries = append(r.entries, e)
			r.mu.Unlock()
			ev.Done()
		}
	}()
	return r
}

// Entries returns a snapshot of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Stop unsubscribes and waits for the recording goroutine to drain.
func (r *Recorder) Stop() {
	r.sys.Unsubscribe(r.subID)
	<-r.done
}
