package trial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrial() Trial {
	return Trial{
		ID:              "t-1",
		PatientID:       "P001",
		Label:           TaskLabel("Single task", "TUG", 1),
		StartTimestamp:  1_700_000_000_000,
		EndTimestamp:    1_700_000_010_000,
		TotalDurationMs: 10_000,
		FreezeEvents: []FreezeEvent{
			{ID: 1, StartOffsetMs: 1000, EndOffsetMs: 1500, DurationMs: 500},
			{ID: 2, StartOffsetMs: 4000, EndOffsetMs: 6000, DurationMs: 2000},
		},
		NextFreezeID: 3,
	}
}

func TestTrial_DerivedStats(t *testing.T) {
	tr := sampleTrial()
	assert.Equal(t, 2, tr.FreezeCount())
	assert.Equal(t, int64(2500), tr.TotalFrozenMs())
	assert.InDelta(t, 25.0, tr.PercentFrozen(), 1e-9)
	assert.Equal(t, int64(2500), tr.FrozenTimeFromPercent())
}

func TestTrial_ZeroDurationPercent(t *testing.T) {
	tr := Trial{PatientID: "P", TotalDurationMs: 0, FreezeEvents: []FreezeEvent{{ID: 1}}}
	assert.Equal(t, 0.0, tr.PercentFrozen())
	assert.Equal(t, int64(0), tr.FrozenTimeFromPercent())
}

func TestTrial_DeleteRecomputes(t *testing.T) {
	tr := sampleTrial()
	require.NoError(t, tr.DeleteFreeze(2))
	assert.Equal(t, 1, tr.FreezeCount())
	assert.Equal(t, int64(500), tr.TotalFrozenMs())
	_, ok := tr.Freeze(2)
	assert.False(t, ok)
}

func TestTrial_EditFreeze(t *testing.T) {
	tr := sampleTrial()
	ev, err := tr.EditFreeze(1, 3000)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), ev.EndOffsetMs)
	assert.Equal(t, int64(5000), tr.TotalFrozenMs())
}

func TestTrial_CloneIsDeep(t *testing.T) {
	tr := sampleTrial()
	c := tr.Clone()
	c.FreezeEvents[0].DurationMs = 1
	assert.Equal(t, int64(500), tr.FreezeEvents[0].DurationMs)
}

func TestTrial_Validate(t *testing.T) {
	tr := sampleTrial()
	require.NoError(t, tr.Validate())

	bad := sampleTrial()
	bad.FreezeEvents[1].EndOffsetMs = 1
	assert.True(t, IsValidation(bad.Validate()))

	bad = sampleTrial()
	bad.EndTimestamp = bad.StartTimestamp - 1
	assert.Error(t, bad.Validate())

	bad = sampleTrial()
	bad.NextFreezeID = 2
	assert.Error(t, bad.Validate())

	bad = sampleTrial()
	bad.PatientID = ""
	assert.Error(t, bad.Validate())
}
