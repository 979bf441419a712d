// Package trace records the lifecycle of every node in a run as an
// append-only sequence of events. Each node owns exactly one Recorder;
// the merged, time-ordered result is the sole artifact the rendering
// layer consumes.
package trace

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// A State is the phase a node reports in a trace event.
type State uint

const (
	StateIdle State = iota
	StateSendOut
	StateSendIn
	StateReceiveOut
	StateReceiveIn
	StateSelected
)

// String converts a State to its display name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSendOut:
		return "SEND_OUT"
	case StateSendIn:
		return "SEND_IN"
	case StateReceiveOut:
		return "RECEIVE_OUT"
	case StateReceiveIn:
		return "RECEIVE_IN"
	case StateSelected:
		return "SELECTED"
	default:
		return "UNKNOWN_STATE"
	}
}

// MarshalText makes states render as their display names in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// An Event is one row of the result table: which node was in which state,
// in which round, at which clock value.
type Event struct {
	EventID    string `json:"event_id"`
	Name       string `json:"name"`
	ElectionID int64  `json:"id"`
	Round      int    `json:"round"`
	Clock      int64  `json:"clock"`
	State      State  `json:"state"`
}

// A Recorder is an append-only event log owned by a single node. Appends
// happen only from the owning node's goroutine; the mutex exists so the
// orchestrator and tests can snapshot a live recorder safely.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{events: make([]Event, 0, 32)}
}

// Record appends an event stamped with the current wall clock.
func (r *Recorder) Record(name string, electionID int64, round int, state State) {
	r.RecordAt(name, electionID, round, state, time.Now().UnixNano())
}

// RecordAt appends an event with an explicit clock value. The initial IDLE
// event uses clock 0 so every run starts from a common frame.
func (r *Recorder) RecordAt(name string, electionID int64, round int, state State, clock int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Event{
		EventID:    uuid.NewString(),
		Name:       name,
		ElectionID: electionID,
		Round:      round,
		Clock:      clock,
		State:      state,
	})
}

// Snapshot returns a copy of the recorded events, safe for analysis.
func (r *Recorder) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Merge combines per-node traces into one result set ordered by
// (round, clock, name). Node names are zero-padded, so lexical order on
// the name tiebreak matches ring position.
func Merge(traces ...[]Event) []Event {
	var merged []Event
	for _, t := range traces {
		merged = append(merged, t...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		if a.Clock != b.Clock {
			return a.Clock < b.Clock
		}
		return a.Name < b.Name
	})

	return merged
}
