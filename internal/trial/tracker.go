package trial

// Tracker records the freeze episodes of a running trial.
//
// It owns the single open-episode slot and the ordered sequence of closed
// episodes. Tracker is pure data manipulation: callers are responsible for
// recomputing statistics, persisting and notifying after a mutation.
//
// Thread-safety: Tracker is not safe for concurrent use. It is owned by the
// session's single control thread.
type Tracker struct {
	open      bool
	openSince int64
	events    []FreezeEvent
	nextID    int
}

// NewTracker creates an empty tracker. The first closed episode gets id 1.
func NewTracker() *Tracker {
	return &Tracker{nextID: 1}
}

// Reset clears all episodes and the id counter.
func (t *Tracker) Reset() {
	t.open = false
	t.openSince = 0
	t.events = nil
	t.nextID = 1
}

// IsOpen reports whether an episode is currently open.
func (t *Tracker) IsOpen() bool {
	return t.open
}

// OpenSince returns the start offset of the open episode, if any.
func (t *Tracker) OpenSince() (int64, bool) {
	return t.openSince, t.open
}

// NextID returns the id that the next closed episode will receive.
func (t *Tracker) NextID() int {
	return t.nextID
}

// Events returns a copy of the closed episodes in closure order.
func (t *Tracker) Events() []FreezeEvent {
	out := make([]FreezeEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Open starts an episode at the given trial offset.
// Returns ErrFreezeAlreadyOpen if an episode is already open.
func (t *Tracker) Open(atOffsetMs int64) error {
	if t.open {
		return ErrFreezeAlreadyOpen
	}
	if atOffsetMs < 0 {
		atOffsetMs = 0
	}
	t.open = true
	t.openSince = atOffsetMs
	return nil
}

// Close ends the open episode at the given trial offset and appends it.
// An end offset before the start is clamped to the start.
// Returns ErrNoOpenFreeze if no episode is open.
func (t *Tracker) Close(atOffsetMs int64) (FreezeEvent, error) {
	if !t.open {
		return FreezeEvent{}, ErrNoOpenFreeze
	}
	if atOffsetMs < t.openSince {
		atOffsetMs = t.openSince
	}
	ev := FreezeEvent{
		ID:            t.nextID,
		StartOffsetMs: t.openSince,
		EndOffsetMs:   atOffsetMs,
		DurationMs:    atOffsetMs - t.openSince,
	}
	t.nextID++
	t.events = append(t.events, ev)
	t.open = false
	t.openSince = 0
	return ev, nil
}

// ForceCloseIfOpen closes the open episode, if any. Used when a trial stops
// while a press is held so that no in-progress freeze is discarded.
func (t *Tracker) ForceCloseIfOpen(atOffsetMs int64) (FreezeEvent, bool) {
	ev, err := t.Close(atOffsetMs)
	if err != nil {
		return FreezeEvent{}, false
	}
	return ev, true
}

// Edit sets the duration of a closed episode and recomputes its end offset.
func (t *Tracker) Edit(id int, newDurationMs int64) (FreezeEvent, error) {
	return editEvent(t.events, id, newDurationMs)
}

// Delete permanently removes a closed episode. Its id is not reused.
func (t *Tracker) Delete(id int) error {
	events, err := deleteEvent(t.events, id)
	if err != nil {
		return err
	}
	t.events = events
	return nil
}

func indexOf(events []FreezeEvent, id int) int {
	for i := range events {
		if events[i].ID == id {
			return i
		}
	}
	return -1
}

// editEvent validates before mutating so a rejected edit leaves events unchanged.
func editEvent(events []FreezeEvent, id int, durationMs int64) (FreezeEvent, error) {
	i := indexOf(events, id)
	if i < 0 {
		return FreezeEvent{}, NewFreezeNotFound(id)
	}
	if durationMs < 0 {
		return FreezeEvent{}, NewValidationError("duration", "must not be negative")
	}
	if durationMs > MaxFreezeDurationMs {
		return FreezeEvent{}, NewValidationError("duration", "must not exceed 24 hours")
	}
	events[i].DurationMs = durationMs
	events[i].EndOffsetMs = events[i].StartOffsetMs + durationMs
	return events[i], nil
}

func deleteEvent(events []FreezeEvent, id int) ([]FreezeEvent, error) {
	i := indexOf(events, id)
	if i < 0 {
		return events, NewFreezeNotFound(id)
	}
	out := make([]FreezeEvent, 0, len(events)-1)
	out = append(out, events[:i]...)
	out = append(out, events[i+1:]...)
	return out, nil
}
