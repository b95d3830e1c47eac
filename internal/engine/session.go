package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

// DefaultTickInterval is how often the elapsed-time display is refreshed.
const DefaultTickInterval = 10 * time.Millisecond

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle means no trial has been started yet.
	StateIdle State = iota
	// StateRunning means a trial clock is running.
	StateRunning
	// StateStopped means the last trial is finalized and may be edited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Archive persists finalized trials. Implemented by *archive.Archive.
type Archive interface {
	Append(ctx context.Context, t trial.Trial) error
	EditFreeze(ctx context.Context, trialID string, freezeID int, durationMs int64) (fog.Report, error)
	DeleteFreeze(ctx context.Context, trialID string, freezeID int) (fog.Report, error)
}

// TickFunc receives the elapsed milliseconds of the running trial.
// It is called from the ticker goroutine and must not block.
type TickFunc func(elapsedMs int64)

// Session is the trial state machine.
//
// Thread-safety: all methods are safe for concurrent use. TickFunc and
// listeners are invoked without the session lock held.
type Session struct {
	clock        Clock
	archive      Archive
	ids          IDGenerator
	labels       trial.LabelValidator
	tickInterval time.Duration
	onTick       TickFunc
	log          *zap.Logger

	mu        sync.Mutex
	state     State
	current   trial.Trial // Running: identity and start; Stopped: finalized trial
	tracker   *trial.Tracker
	report    fog.Report
	persisted bool
	stopTick  func()

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextListen int
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithArchive sets where stopped trials are persisted. Without an archive,
// trials live only in the session until the next Start.
func WithArchive(a Archive) Option {
	return func(s *Session) { s.archive = a }
}

// WithIDGenerator sets the trial id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) { s.ids = g }
}

// WithLabelValidator checks structured labels against a protocol catalog.
func WithLabelValidator(v trial.LabelValidator) Option {
	return func(s *Session) { s.labels = v }
}

// WithTickInterval sets the elapsed-time tick period. Non-positive values
// disable the ticker.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tickInterval = d }
}

// WithTickFunc sets the callback that receives elapsed-time ticks.
func WithTickFunc(fn TickFunc) Option {
	return func(s *Session) { s.onTick = fn }
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// NewSession creates an idle session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		clock:        NewSystemClock(),
		ids:          UUIDv7Generator{},
		tickInterval: DefaultTickInterval,
		log:          zap.NewNop(),
		tracker:      trial.NewTracker(),
		listeners:    make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a new trial. Allowed from Idle and Stopped.
//
// Returns a *trial.ValidationError, leaving the session unchanged, for an
// empty patient id or an invalid label. Calling Start while a trial is
// running is a no-op that returns the running trial's snapshot.
func (s *Session) Start(patientID string, label trial.Label) (Snapshot, error) {
	s.mu.Lock()
	if s.state == StateRunning {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}

	pid, err := trial.ValidatePatientID(patientID)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	label = label.Normalize()
	if err := label.Validate(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if s.labels != nil {
		if err := s.labels.ValidateLabel(label); err != nil {
			s.mu.Unlock()
			return Snapshot{}, err
		}
	}

	now := s.clock.NowMillis()
	s.current = trial.Trial{
		ID:             s.ids.Generate(),
		PatientID:      pid,
		Label:          label,
		StartTimestamp: now,
	}
	s.tracker.Reset()
	s.report = fog.Report{}
	s.persisted = false
	s.state = StateRunning
	s.stopTick = s.startTicker(now)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info("trial started",
		zap.String("trial_id", snap.TrialID),
		zap.String("patient_id", pid),
		zap.String("label", label.String()),
	)
	s.emit(EventStarted, snap)
	return snap, nil
}

// PressFreeze opens a freeze episode at the current trial offset.
// Returns false, changing nothing, when no trial is running or an episode is
// already open.
func (s *Session) PressFreeze() bool {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	if err := s.tracker.Open(s.offsetLocked()); err != nil {
		s.mu.Unlock()
		return false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(EventFreezeOpened, snap)
	return true
}

// ReleaseFreeze closes the open episode at the current trial offset and
// records it with the next freeze id. Returns false when no trial is
// running or no episode is open.
func (s *Session) ReleaseFreeze() (trial.FreezeEvent, bool) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return trial.FreezeEvent{}, false
	}
	ev, err := s.tracker.Close(s.offsetLocked())
	if err != nil {
		s.mu.Unlock()
		return trial.FreezeEvent{}, false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Debug("freeze recorded",
		zap.String("trial_id", snap.TrialID),
		zap.Int("freeze_id", ev.ID),
		zap.Int64("duration_ms", ev.DurationMs),
	)
	s.emit(EventFreezeClosed, snap)
	return ev, true
}

// Stop finalizes the running trial.
//
// The clock is read once: a held freeze is closed at exactly the trial's
// total duration. The ticker is stopped before Stop returns. The trial is
// then appended to the archive; a persistence failure is returned wrapped,
// but the session still moves to Stopped and the report is still returned.
func (s *Session) Stop(ctx context.Context) (fog.Report, error) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return fog.Report{}, ErrNotRunning
	}

	end := s.clock.NowMillis()
	if end < s.current.StartTimestamp {
		end = s.current.StartTimestamp
	}
	total := end - s.current.StartTimestamp
	s.tracker.ForceCloseIfOpen(total)

	finished := s.current
	finished.EndTimestamp = end
	finished.TotalDurationMs = total
	finished.FreezeEvents = s.tracker.Events()
	finished.NextFreezeID = s.tracker.NextID()

	s.current = finished
	report := fog.Summarize(finished)
	s.report = report
	s.state = StateStopped
	snap := s.snapshotLocked()
	stopTick := s.stopTick
	s.stopTick = nil
	s.mu.Unlock()

	if stopTick != nil {
		stopTick()
	}

	var persistErr error
	if s.archive != nil {
		if err := s.archive.Append(ctx, finished.Clone()); err != nil {
			persistErr = fmt.Errorf("archive trial %s: %w", finished.ID, err)
			s.log.Error("trial not persisted", zap.String("trial_id", finished.ID), zap.Error(err))
		}
	}

	// A Start during the archive write owns the session now; only the
	// finished trial's own flag may be set.
	persisted := s.archive != nil && persistErr == nil
	s.mu.Lock()
	if s.state == StateStopped && s.current.ID == finished.ID {
		s.persisted = persisted
		snap = s.snapshotLocked()
	} else {
		snap.Persisted = persisted
	}
	s.mu.Unlock()

	s.log.Info("trial stopped",
		zap.String("trial_id", finished.ID),
		zap.Int64("duration_ms", total),
		zap.Int("freezes", report.FreezeCount),
		zap.Int("cumulative_grade", int(report.Cumulative)),
		zap.Int("frequency_grade", int(report.Frequency)),
	)
	s.emit(EventStopped, snap)
	return report, persistErr
}

// EditFreeze sets the duration of a recorded freeze.
//
// While running it edits the live episode list. After Stop it edits the
// last stopped trial and, when that trial was archived, persists the change
// through the archive. Unknown ids return a *trial.NotFoundError, negative
// durations a *trial.ValidationError; neither changes anything.
func (s *Session) EditFreeze(ctx context.Context, freezeID int, durationMs int64) (Snapshot, error) {
	return s.mutateFreeze(ctx, EventFreezeEdited,
		func(tr *trial.Tracker) error {
			_, err := tr.Edit(freezeID, durationMs)
			return err
		},
		func(t *trial.Trial) error {
			_, err := t.EditFreeze(freezeID, durationMs)
			return err
		},
		func(a Archive, trialID string) (fog.Report, error) {
			return a.EditFreeze(ctx, trialID, freezeID, durationMs)
		},
	)
}

// EditFreezeSeconds is EditFreeze for operator input in seconds.
func (s *Session) EditFreezeSeconds(ctx context.Context, freezeID int, seconds float64) (Snapshot, error) {
	ms, err := trial.SecondsToMillis(seconds)
	if err != nil {
		return Snapshot{}, err
	}
	return s.EditFreeze(ctx, freezeID, ms)
}

// DeleteFreeze permanently removes a recorded freeze. Freeze ids are never
// reused. The same running/stopped rules as EditFreeze apply.
func (s *Session) DeleteFreeze(ctx context.Context, freezeID int) (Snapshot, error) {
	return s.mutateFreeze(ctx, EventFreezeDeleted,
		func(tr *trial.Tracker) error {
			return tr.Delete(freezeID)
		},
		func(t *trial.Trial) error {
			return t.DeleteFreeze(freezeID)
		},
		func(a Archive, trialID string) (fog.Report, error) {
			return a.DeleteFreeze(ctx, trialID, freezeID)
		},
	)
}

func (s *Session) mutateFreeze(
	ctx context.Context,
	kind EventKind,
	live func(*trial.Tracker) error,
	local func(*trial.Trial) error,
	archived func(Archive, string) (fog.Report, error),
) (Snapshot, error) {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return Snapshot{}, ErrNoTrial

	case StateRunning:
		if err := live(s.tracker); err != nil {
			s.mu.Unlock()
			return Snapshot{}, err
		}

	case StateStopped:
		updated := s.current.Clone()
		if err := local(&updated); err != nil {
			s.mu.Unlock()
			return Snapshot{}, err
		}
		if s.persisted {
			if _, err := archived(s.archive, updated.ID); err != nil {
				s.mu.Unlock()
				return Snapshot{}, fmt.Errorf("update archived trial %s: %w", updated.ID, err)
			}
		}
		s.current = updated
		s.report = fog.Summarize(updated)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(kind, snap)
	return snap, nil
}

// Snapshot returns an immutable view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Elapsed returns the running trial's elapsed milliseconds, the total
// duration of a stopped trial, or 0 when idle.
func (s *Session) Elapsed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

// Report returns the report of the last stopped trial.
func (s *Session) Report() (fog.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report, s.state == StateStopped
}

// Close stops the ticker without finalizing the trial. Used on shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	stopTick := s.stopTick
	s.stopTick = nil
	s.mu.Unlock()
	if stopTick != nil {
		stopTick()
	}
}

func (s *Session) offsetLocked() int64 {
	off := s.clock.NowMillis() - s.current.StartTimestamp
	if off < 0 {
		return 0
	}
	return off
}

func (s *Session) elapsedLocked() int64 {
	switch s.state {
	case StateRunning:
		return s.offsetLocked()
	case StateStopped:
		return s.current.TotalDurationMs
	default:
		return 0
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     s.state,
		ElapsedMs: s.elapsedLocked(),
	}
	if s.state == StateIdle {
		return snap
	}
	snap.TrialID = s.current.ID
	snap.PatientID = s.current.PatientID
	snap.Label = s.current.Label
	snap.StartTimestamp = s.current.StartTimestamp

	switch s.state {
	case StateRunning:
		snap.OpenSinceMs, snap.FreezeOpen = s.tracker.OpenSince()
		snap.Freezes = s.tracker.Events()
	case StateStopped:
		snap.EndTimestamp = s.current.EndTimestamp
		snap.Freezes = s.current.Clone().FreezeEvents
		report := s.report
		snap.Report = &report
		snap.Persisted = s.persisted
	}
	if snap.Freezes == nil {
		snap.Freezes = []trial.FreezeEvent{}
	}
	return snap
}

// startTicker launches the elapsed-time ticker for a trial started at
// startMs and returns a function that stops it and waits for exit.
func (s *Session) startTicker(startMs int64) func() {
	if s.onTick == nil || s.tickInterval <= 0 {
		return nil
	}
	clock, onTick, interval := s.clock, s.onTick, s.tickInterval

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				elapsed := clock.NowMillis() - startMs
				if elapsed < 0 {
					elapsed = 0
				}
				onTick(elapsed)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}
