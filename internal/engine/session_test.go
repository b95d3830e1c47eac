package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fogtimer/internal/archive"
	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/testutil"
	"github.com/roach88/fogtimer/internal/trial"
)

var t0 = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC).UnixMilli()

type fixture struct {
	session *Session
	clock   *testutil.ManualClock
	archive *archive.Archive
	store   *testutil.MemStore
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	st := testutil.NewMemStore()
	a, err := archive.Open(context.Background(), st)
	require.NoError(t, err)
	clock := testutil.NewManualClock(t0)

	base := []Option{
		WithClock(clock),
		WithArchive(a),
		WithIDGenerator(testutil.NewSequentialIDGenerator("trial")),
		WithTickInterval(0),
	}
	s := NewSession(append(base, opts...)...)
	t.Cleanup(s.Close)
	return fixture{session: s, clock: clock, archive: a, store: st}
}

type labelValidatorFunc func(trial.Label) error

func (f labelValidatorFunc) ValidateLabel(l trial.Label) error { return f(l) }

func walk() trial.Label { return trial.FreeLabel("10m walk") }

// recordFreeze presses at the current time, holds for ms, and releases.
func (f fixture) recordFreeze(t *testing.T, ms int64) trial.FreezeEvent {
	t.Helper()
	require.True(t, f.session.PressFreeze())
	f.clock.Advance(ms)
	ev, ok := f.session.ReleaseFreeze()
	require.True(t, ok)
	return ev
}

func TestNewSession_Idle(t *testing.T) {
	f := newFixture(t)
	snap := f.session.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, int64(0), f.session.Elapsed())
	assert.Empty(t, snap.TrialID)
	_, ok := f.session.Report()
	assert.False(t, ok)
}

func TestStart(t *testing.T) {
	f := newFixture(t)

	snap, err := f.session.Start("  P-001 ", walk())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, "trial-1", snap.TrialID)
	assert.Equal(t, "P-001", snap.PatientID)
	assert.Equal(t, t0, snap.StartTimestamp)
	assert.Equal(t, int64(0), snap.ElapsedMs)
	assert.Empty(t, snap.Freezes)

	f.clock.Advance(1500)
	assert.Equal(t, int64(1500), f.session.Elapsed())
}

func TestStart_Validation(t *testing.T) {
	reject := labelValidatorFunc(func(l trial.Label) error {
		if l.Condition == "BAD" {
			return trial.NewValidationError("label", "unknown condition")
		}
		return nil
	})
	f := newFixture(t, WithLabelValidator(reject))

	tests := []struct {
		name    string
		patient string
		label   trial.Label
	}{
		{"empty patient", "   ", walk()},
		{"blank label", "P-001", trial.FreeLabel(" ")},
		{"structured without number", "P-001", trial.TaskLabel("OFF", "TUG", 0)},
		{"rejected by catalog", "P-001", trial.TaskLabel("BAD", "TUG", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.session.Start(tt.patient, tt.label)
			require.Error(t, err)
			assert.True(t, trial.IsValidation(err))
			assert.Equal(t, StateIdle, f.session.State())
		})
	}

	_, err := f.session.Start("P-001", trial.TaskLabel("OFF", "TUG", 1))
	assert.NoError(t, err)
}

func TestStart_WhileRunningIsNoop(t *testing.T) {
	f := newFixture(t)
	first, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.clock.Advance(700)

	again, err := f.session.Start("P-999", trial.FreeLabel("other"))
	require.NoError(t, err)
	assert.Equal(t, first.TrialID, again.TrialID)
	assert.Equal(t, "P-001", again.PatientID)
	assert.Equal(t, int64(700), again.ElapsedMs)
}

func TestPressRelease(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.session.PressFreeze(), "press while idle")
	_, ok := f.session.ReleaseFreeze()
	assert.False(t, ok, "release while idle")

	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)

	_, ok = f.session.ReleaseFreeze()
	assert.False(t, ok, "release without press")

	f.clock.Advance(1000)
	assert.True(t, f.session.PressFreeze())
	f.clock.Advance(300)
	assert.False(t, f.session.PressFreeze(), "second press is ignored")

	snap := f.session.Snapshot()
	assert.True(t, snap.FreezeOpen)
	assert.Equal(t, int64(1000), snap.OpenSinceMs)

	f.clock.Advance(1200)
	ev, ok := f.session.ReleaseFreeze()
	require.True(t, ok)
	assert.Equal(t, trial.FreezeEvent{ID: 1, StartOffsetMs: 1000, EndOffsetMs: 2500, DurationMs: 1500}, ev)

	_, ok = f.session.ReleaseFreeze()
	assert.False(t, ok, "second release is ignored")
	assert.False(t, f.session.Snapshot().FreezeOpen)
}

func TestStop(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)

	f.clock.Advance(5000)
	f.recordFreeze(t, 500)
	f.clock.Advance(14500)

	report, err := f.session.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20000), report.TotalDurationMs)
	assert.Equal(t, 1, report.FreezeCount)
	assert.Equal(t, int64(500), report.TotalFrozenMs)
	assert.InDelta(t, 2.5, report.PercentFrozen, 1e-9)
	assert.Equal(t, fog.Cumulative(1), report.Cumulative)
	assert.Equal(t, fog.Frequency(1), report.Frequency)

	snap := f.session.Snapshot()
	assert.Equal(t, StateStopped, snap.State)
	assert.True(t, snap.Persisted)
	assert.Equal(t, t0+20000, snap.EndTimestamp)
	require.NotNil(t, snap.Report)
	assert.Equal(t, report, *snap.Report)
	assert.Equal(t, int64(20000), f.session.Elapsed())

	f.clock.Advance(9999)
	assert.Equal(t, int64(20000), f.session.Elapsed(), "stopped trials no longer tick")

	require.Equal(t, 1, f.archive.Len())
	stored, err := f.archive.Get("trial-1")
	require.NoError(t, err)
	assert.Equal(t, "P-001", stored.PatientID)
	assert.Equal(t, int64(20000), stored.TotalDurationMs)
	assert.Equal(t, 2, stored.NextFreezeID)
}

func TestStop_ForceClosesHeldFreeze(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)

	f.clock.Advance(2000)
	require.True(t, f.session.PressFreeze())
	f.clock.Advance(3000)

	report, err := f.session.Stop(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Freezes, 1)
	ev := report.Freezes[0]
	assert.Equal(t, int64(2000), ev.StartOffsetMs)
	assert.Equal(t, report.TotalDurationMs, ev.EndOffsetMs)
	assert.Equal(t, int64(3000), ev.DurationMs)
	assert.False(t, f.session.Snapshot().FreezeOpen)
}

func TestStop_NotRunning(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = f.session.Start("P-001", walk())
	require.NoError(t, err)
	_, err = f.session.Stop(context.Background())
	require.NoError(t, err)

	_, err = f.session.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, 1, f.archive.Len())
}

func TestStop_ClockBeforeStart(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.clock.Set(t0 - 5000)

	report, err := f.session.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.TotalDurationMs)
	assert.Equal(t, 0.0, report.PercentFrozen)
}

func TestStop_PersistFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.clock.Advance(1000)
	f.recordFreeze(t, 800)
	f.clock.Advance(200)

	f.store.FailPuts(true)
	report, err := f.session.Stop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, int64(2000), report.TotalDurationMs)

	snap := f.session.Snapshot()
	assert.Equal(t, StateStopped, snap.State)
	assert.False(t, snap.Persisted)
	assert.Equal(t, 0, f.archive.Len())

	snap, err = f.session.EditFreeze(context.Background(), 1, 400)
	require.NoError(t, err, "unpersisted trials are edited locally")
	assert.Equal(t, int64(400), snap.Report.TotalFrozenMs)
}

// blockingArchive holds Append until release is closed.
type blockingArchive struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingArchive) Append(context.Context, trial.Trial) error {
	close(b.entered)
	<-b.release
	return nil
}

func (b *blockingArchive) EditFreeze(context.Context, string, int, int64) (fog.Report, error) {
	return fog.Report{}, nil
}

func (b *blockingArchive) DeleteFreeze(context.Context, string, int) (fog.Report, error) {
	return fog.Report{}, nil
}

func TestStop_StartDuringArchiveWrite(t *testing.T) {
	arch := &blockingArchive{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, WithArchive(arch))

	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.clock.Advance(1000)
	f.recordFreeze(t, 500)
	f.clock.Advance(1500)

	events := make(chan Event, 8)
	f.session.Subscribe(func(ev Event) { events <- ev })

	type result struct {
		report fog.Report
		err    error
	}
	stopped := make(chan result, 1)
	go func() {
		report, err := f.session.Stop(context.Background())
		stopped <- result{report, err}
	}()

	<-arch.entered
	_, err = f.session.Start("P-002", walk())
	require.NoError(t, err)
	close(arch.release)

	res := <-stopped
	require.NoError(t, res.err)
	assert.Equal(t, "trial-1", res.report.TrialID)
	assert.Equal(t, int64(3000), res.report.TotalDurationMs)
	assert.Equal(t, 1, res.report.FreezeCount)

	assert.Equal(t, EventStarted, (<-events).Kind)
	ev := <-events
	assert.Equal(t, EventStopped, ev.Kind)
	assert.Equal(t, "trial-1", ev.Snapshot.TrialID)
	assert.Equal(t, StateStopped, ev.Snapshot.State)
	assert.True(t, ev.Snapshot.Persisted)

	snap := f.session.Snapshot()
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, "trial-2", snap.TrialID)
	assert.False(t, snap.Persisted)
}

func TestEditFreeze_Running(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.clock.Advance(1000)
	f.recordFreeze(t, 1000)

	snap, err := f.session.EditFreeze(ctx, 1, 400)
	require.NoError(t, err)
	require.Len(t, snap.Freezes, 1)
	assert.Equal(t, trial.FreezeEvent{ID: 1, StartOffsetMs: 1000, EndOffsetMs: 1400, DurationMs: 400}, snap.Freezes[0])

	_, err = f.session.EditFreeze(ctx, 9, 100)
	assert.True(t, trial.IsNotFound(err))

	_, err = f.session.EditFreeze(ctx, 1, -1)
	assert.True(t, trial.IsValidation(err))
	assert.Equal(t, int64(400), f.session.Snapshot().Freezes[0].DurationMs, "rejected edit changes nothing")
}

func TestEditFreeze_StoppedPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.clock.Advance(1000)
	f.recordFreeze(t, 1000)
	f.clock.Advance(8000)
	_, err = f.session.Stop(ctx)
	require.NoError(t, err)

	snap, err := f.session.EditFreeze(ctx, 1, 2500)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), snap.Report.TotalFrozenMs)
	assert.InDelta(t, 25.0, snap.Report.PercentFrozen, 1e-9)
	assert.Equal(t, fog.Cumulative(2), snap.Report.Cumulative)
	assert.Equal(t, fog.Frequency(2), snap.Report.Frequency)

	stored, err := f.archive.Get("trial-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), stored.FreezeEvents[0].DurationMs)
	assert.Equal(t, int64(3500), stored.FreezeEvents[0].EndOffsetMs)

	_, err = f.session.EditFreeze(ctx, 2, 100)
	assert.True(t, trial.IsNotFound(err))
}

func TestEditFreeze_StoppedArchiveFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.recordFreeze(t, 1000)
	_, err = f.session.Stop(ctx)
	require.NoError(t, err)

	f.store.FailPuts(true)
	_, err = f.session.EditFreeze(ctx, 1, 10)
	require.ErrorIs(t, err, testutil.ErrInjected)

	snap := f.session.Snapshot()
	assert.Equal(t, int64(1000), snap.Freezes[0].DurationMs)
	assert.Equal(t, int64(1000), snap.Report.TotalFrozenMs)
}

func TestEditFreezeSeconds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.recordFreeze(t, 1000)

	snap, err := f.session.EditFreezeSeconds(ctx, 1, 2.5)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), snap.Freezes[0].DurationMs)

	_, err = f.session.EditFreezeSeconds(ctx, 1, -0.5)
	assert.True(t, trial.IsValidation(err))
}

func TestDeleteFreeze_IDsNotReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.recordFreeze(t, 100)
	f.recordFreeze(t, 200)

	snap, err := f.session.DeleteFreeze(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snap.Freezes, 1)
	assert.Equal(t, 2, snap.Freezes[0].ID)

	ev := f.recordFreeze(t, 300)
	assert.Equal(t, 3, ev.ID)

	_, err = f.session.DeleteFreeze(ctx, 1)
	assert.True(t, trial.IsNotFound(err))
}

func TestDeleteFreeze_Stopped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.recordFreeze(t, 500)
	f.recordFreeze(t, 700)
	f.clock.Advance(8800)
	report, err := f.session.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FreezeCount)

	snap, err := f.session.DeleteFreeze(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Report.FreezeCount)
	assert.Equal(t, int64(500), snap.Report.TotalFrozenMs)
	assert.Equal(t, fog.Frequency(1), snap.Report.Frequency)

	stored, err := f.archive.Get("trial-1")
	require.NoError(t, err)
	assert.Len(t, stored.FreezeEvents, 1)
}

func TestEdit_Idle(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.EditFreeze(context.Background(), 1, 100)
	assert.ErrorIs(t, err, ErrNoTrial)
	_, err = f.session.DeleteFreeze(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoTrial)
}

func TestRestartAfterStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.recordFreeze(t, 100)
	f.recordFreeze(t, 100)
	_, err = f.session.Stop(ctx)
	require.NoError(t, err)

	snap, err := f.session.Start("P-001", trial.FreeLabel("turn"))
	require.NoError(t, err)
	assert.Equal(t, "trial-2", snap.TrialID)
	assert.Empty(t, snap.Freezes)
	assert.Nil(t, snap.Report)

	ev := f.recordFreeze(t, 100)
	assert.Equal(t, 1, ev.ID, "freeze ids restart per trial")
}

func TestSnapshot_FreezesAreCopies(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.recordFreeze(t, 100)

	snap := f.session.Snapshot()
	snap.Freezes[0].DurationMs = 99999
	assert.Equal(t, int64(100), f.session.Snapshot().Freezes[0].DurationMs)
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var kinds []EventKind
	unsubscribe := f.session.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
	})

	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.recordFreeze(t, 100)
	f.session.PressFreeze()
	f.session.PressFreeze()
	f.clock.Advance(50)
	_, err = f.session.EditFreeze(ctx, 1, 10)
	require.NoError(t, err)
	_, err = f.session.DeleteFreeze(ctx, 1)
	require.NoError(t, err)
	_, err = f.session.EditFreeze(ctx, 1, 10)
	require.Error(t, err)
	_, err = f.session.Stop(ctx)
	require.NoError(t, err)

	assert.Equal(t, []EventKind{
		EventStarted,
		EventFreezeOpened,
		EventFreezeClosed,
		EventFreezeOpened,
		EventFreezeEdited,
		EventFreezeDeleted,
		EventStopped,
	}, kinds, "no-ops and failures emit nothing")

	unsubscribe()
	_, err = f.session.Start("P-002", walk())
	require.NoError(t, err)
	assert.Len(t, kinds, 7)
}

func TestSubscribe_StoppedEventCarriesReport(t *testing.T) {
	f := newFixture(t)
	var last Event
	f.session.Subscribe(func(ev Event) { last = ev })

	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.clock.Advance(3000)
	_, err = f.session.Stop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, EventStopped, last.Kind)
	require.NotNil(t, last.Snapshot.Report)
	assert.Equal(t, int64(3000), last.Snapshot.Report.TotalDurationMs)
	assert.True(t, last.Snapshot.Persisted)
}

func TestTicker_StopsWithTrial(t *testing.T) {
	var (
		mu    sync.Mutex
		ticks []int64
		count atomic.Int64
	)
	f := newFixture(t,
		WithTickInterval(time.Millisecond),
		WithTickFunc(func(elapsed int64) {
			mu.Lock()
			ticks = append(ticks, elapsed)
			mu.Unlock()
			count.Add(1)
		}),
	)

	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.clock.Advance(700)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks) > 0 && ticks[len(ticks)-1] == 700
	}, time.Second, time.Millisecond)

	_, err = f.session.Stop(context.Background())
	require.NoError(t, err)

	after := count.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, count.Load(), "no tick after Stop returns")
}

func TestTicker_DisabledWithoutCallback(t *testing.T) {
	f := newFixture(t, WithTickInterval(time.Millisecond))
	_, err := f.session.Start("P-001", walk())
	require.NoError(t, err)
	f.session.mu.Lock()
	assert.Nil(t, f.session.stopTick)
	f.session.mu.Unlock()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "State(9)", State(9).String())
}
