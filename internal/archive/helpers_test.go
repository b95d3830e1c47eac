package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fogtimer/internal/testutil"
	"github.com/roach88/fogtimer/internal/trial"
)

var baseTime = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

// createTestArchive opens an empty archive over an in-memory store.
func createTestArchive(t *testing.T) (*Archive, *testutil.MemStore) {
	t.Helper()
	st := testutil.NewMemStore()
	a, err := Open(context.Background(), st)
	require.NoError(t, err)
	return a, st
}

// trialWithFreezes builds a finalized trial starting at baseTime+offset.
func trialWithFreezes(id, patient string, label trial.Label, offset time.Duration, durationMs int64, freezes ...trial.FreezeEvent) trial.Trial {
	start := baseTime.Add(offset).UnixMilli()
	next := 1
	for _, f := range freezes {
		if f.ID >= next {
			next = f.ID + 1
		}
	}
	if freezes == nil {
		freezes = []trial.FreezeEvent{}
	}
	return trial.Trial{
		ID:              id,
		PatientID:       patient,
		Label:           label,
		StartTimestamp:  start,
		EndTimestamp:    start + durationMs,
		TotalDurationMs: durationMs,
		FreezeEvents:    freezes,
		NextFreezeID:    next,
	}
}

func freeze(id int, start, duration int64) trial.FreezeEvent {
	return trial.FreezeEvent{ID: id, StartOffsetMs: start, EndOffsetMs: start + duration, DurationMs: duration}
}
