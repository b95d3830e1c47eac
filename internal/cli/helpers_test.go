package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fogtimer/internal/archive"
	"github.com/roach88/fogtimer/internal/store"
	"github.com/roach88/fogtimer/internal/trial"
)

var baseTime = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

const testConfig = `database: fogtimer.db
archive_key: fog_trials
export:
  dir: exports
  timezone: UTC
logging:
  directory: logs
  console: false
`

// setupWorkspace moves the test into an empty directory holding a config
// file, so commands find it and write their database, logs and exports
// there.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("fogtimer.yaml", []byte(testConfig), 0o644))
	return dir
}

// seedArchive appends trials to the workspace database.
func seedArchive(t *testing.T, trials ...trial.Trial) {
	t.Helper()
	st, err := store.Open("fogtimer.db")
	require.NoError(t, err)
	defer st.Close()

	a, err := archive.Open(context.Background(), st)
	require.NoError(t, err)
	for _, tr := range trials {
		require.NoError(t, a.Append(context.Background(), tr))
	}
}

// standardTrials is a structured-label trial with two freezes (22.5%
// frozen) and a free-label trial without freezes.
func standardTrials() []trial.Trial {
	start := baseTime.UnixMilli()
	second := baseTime.Add(time.Minute).UnixMilli()
	return []trial.Trial{
		{
			ID:              "t-1",
			PatientID:       "P-1",
			Label:           trial.TaskLabel("OFF", "Turn 360", 1),
			StartTimestamp:  start,
			EndTimestamp:    start + 20000,
			TotalDurationMs: 20000,
			FreezeEvents: []trial.FreezeEvent{
				{ID: 1, StartOffsetMs: 2000, EndOffsetMs: 5000, DurationMs: 3000},
				{ID: 2, StartOffsetMs: 10000, EndOffsetMs: 11500, DurationMs: 1500},
			},
			NextFreezeID: 3,
		},
		{
			ID:              "t-2",
			PatientID:       "P-2",
			Label:           trial.FreeLabel("Hallway"),
			StartTimestamp:  second,
			EndTimestamp:    second + 10000,
			TotalDurationMs: 10000,
			FreezeEvents:    []trial.FreezeEvent{},
			NextFreezeID:    1,
		},
	}
}

// execute runs the CLI in-process.
func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	code = Execute(context.Background(), args, strings.NewReader(stdin), out, errOut)
	return out.String(), errOut.String(), code
}

// jsonResponse mirrors CLIResponse with the payload left raw.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, stdout string) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout: %s", stdout)
	return resp
}

func decodeData(t *testing.T, stdout string, v any) {
	t.Helper()
	resp := decodeResponse(t, stdout)
	require.Equal(t, "ok", resp.Status, "stdout: %s", stdout)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
