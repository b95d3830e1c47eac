package engine

import (
	"slices"

	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventStarted       EventKind = "started"
	EventFreezeOpened  EventKind = "freeze_opened"
	EventFreezeClosed  EventKind = "freeze_closed"
	EventFreezeEdited  EventKind = "freeze_edited"
	EventFreezeDeleted EventKind = "freeze_deleted"
	EventStopped       EventKind = "stopped"
)

// Event is delivered to listeners after every mutating Session call.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}

// Listener receives session events on the goroutine that caused them.
type Listener func(Event)

// Snapshot is an immutable view of a Session.
//
// Freezes is a copy; callers may keep it. Report is set only when the
// session is Stopped.
type Snapshot struct {
	State          State               `json:"state"`
	TrialID        string              `json:"trial_id,omitempty"`
	PatientID      string              `json:"patient_id,omitempty"`
	Label          trial.Label         `json:"label"`
	StartTimestamp int64               `json:"start_timestamp,omitempty"`
	EndTimestamp   int64               `json:"end_timestamp,omitempty"`
	ElapsedMs      int64               `json:"elapsed_ms"`
	FreezeOpen     bool                `json:"freeze_open"`
	OpenSinceMs    int64               `json:"open_since_ms,omitempty"`
	Freezes        []trial.FreezeEvent `json:"freezes"`
	Report         *fog.Report         `json:"report,omitempty"`
	Persisted      bool                `json:"persisted"`
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.listenerMu.Lock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = l
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

// emit delivers in subscription order.
func (s *Session) emit(kind EventKind, snap Snapshot) {
	s.listenerMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.listenerMu.Unlock()
	slices.Sort(ids)

	ev := Event{Kind: kind, Snapshot: snap}
	for _, id := range ids {
		s.listenerMu.Lock()
		l, ok := s.listeners[id]
		s.listenerMu.Unlock()
		if ok {
			l(ev)
		}
	}
}
