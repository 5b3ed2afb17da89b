package progress

import (
	"context"
	"time"
)

// EventType classifies watch stream events.
type EventType string

const (
	// EventSnapshot carries a changed record state.
	EventSnapshot EventType = "snapshot"

	// EventComplete is the terminal marker after the complete snapshot.
	EventComplete EventType = "complete"

	// EventTimeout is the terminal marker when no change has been
	// observed within the inactivity budget.
	EventTimeout EventType = "timeout"
)

// Event is one element of a watch stream.
type Event struct {
	Type   EventType
	Record Record
}

// Watch returns a stream of progress events for id.
//
// The stream emits a snapshot only when the record's observable fields
// change (value equality), then terminates after either the complete
// marker (stage reached complete) or the timeout marker (no change for
// the configured inactivity budget). The channel is closed when the
// stream terminates or ctx is cancelled.
//
// Change detection polls on the registry's fixed quantum. A record that
// does not exist yet counts as "no change"; it may appear later if the
// id is created mid-watch.
func (r *Registry) Watch(ctx context.Context, id string) <-chan Event {
	out := make(chan Event, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()

		var last *Record
		idle := 0

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current, ok := r.Get(id)
			if !ok || (last != nil && current == *last) {
				idle++
				if idle >= r.cfg.MaxIdlePolls {
					if !send(ctx, out, Event{Type: EventTimeout, Record: current}) {
						return
					}
					return
				}
				continue
			}

			last = &current
			idle = 0
			if !send(ctx, out, Event{Type: EventSnapshot, Record: current}) {
				return
			}

			if current.Stage == StageComplete {
				send(ctx, out, Event{Type: EventComplete, Record: current})
				return
			}
		}
	}()

	return out
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
