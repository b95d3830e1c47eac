package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fogtimer", cmd.Use)
	assert.Contains(t, cmd.Long, "Freezing of Gait")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "list", "show", "edit", "delete", "export", "clear", "test", "protocol"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestExecute_InvalidFormat(t *testing.T) {
	setupWorkspace(t)

	_, stderr, code := execute(t, "", "list", "--format", "yaml")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "invalid format")
}

func TestExecute_UnknownCommand(t *testing.T) {
	_, stderr, code := execute(t, "", "frobnicate")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestExecute_MissingConfigFile(t *testing.T) {
	setupWorkspace(t)

	_, stderr, code := execute(t, "", "list", "--config", "nope.yaml")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "failed to load configuration")
}

func TestList_Text(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "list")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "t-1")
	assert.Contains(t, stdout, "OFF - Turn 360 - Trial 1")
	assert.Contains(t, stdout, "22.50%")
	assert.Contains(t, stdout, "Hallway")
	assert.Contains(t, stdout, "2024-03-05T09:00:00.000Z")
}

func TestList_JSONPatientFilter(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "list", "--patient", "P-2", "--format", "json")
	require.Equal(t, ExitSuccess, code)

	var rows []summary
	decodeData(t, stdout, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "t-2", rows[0].ID)
	assert.Equal(t, 0, rows[0].FreezeCount)
	assert.Equal(t, 0, rows[0].Cumulative)
}

func TestList_Empty(t *testing.T) {
	setupWorkspace(t)

	stdout, _, code := execute(t, "", "list")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "No trials recorded.")
}

func TestList_DatabaseFlagOverridesConfig(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "list", "--db", "other.db")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "No trials recorded.")
	assert.FileExists(t, "other.db")
}

func TestShow_Text(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "show", "t-1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Trial duration:     00:00:20.000")
	assert.Contains(t, stdout, "Freezes:            2")
	assert.Contains(t, stdout, "Total frozen:       00:00:04.500")
	assert.Contains(t, stdout, "Percent frozen:     22.50%")
	assert.Contains(t, stdout, "Time spent frozen:  00:00:04.500")
}

func TestShow_NotFoundJSON(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "show", "t-9", "--format", "json")
	assert.Equal(t, ExitCommandError, code)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "trial t-9 not found")
}

func TestEdit_RecomputesAndPersists(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "edit", "t-1", "2", "0.5", "--format", "json")
	require.Equal(t, ExitSuccess, code)

	var report fog.Report
	decodeData(t, stdout, &report)
	assert.Equal(t, int64(3500), report.TotalFrozenMs)
	assert.InDelta(t, 17.5, report.PercentFrozen, 1e-9)
	require.Len(t, report.Freezes, 2)
	assert.Equal(t, int64(10500), report.Freezes[1].EndOffsetMs)

	stdout, _, code = execute(t, "", "show", "t-1", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var reloaded fog.Report
	decodeData(t, stdout, &reloaded)
	assert.Equal(t, report.TotalFrozenMs, reloaded.TotalFrozenMs)
}

func TestEdit_RejectsBadInput(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantMsg  string
	}{
		{"negative_seconds", []string{"edit", "t-1", "1", "--", "-1"}, ExitFailure, "must not be negative"},
		{"not_a_number", []string{"edit", "t-1", "1", "abc"}, ExitFailure, "not a number of seconds"},
		{"bad_freeze_id", []string{"edit", "t-1", "x", "1"}, ExitFailure, "not a positive integer"},
		{"unknown_freeze", []string{"edit", "t-1", "9", "1"}, ExitCommandError, "freeze 9 not found"},
		{"unknown_trial", []string{"edit", "t-9", "1", "1"}, ExitCommandError, "trial t-9 not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := execute(t, "", tt.args...)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stderr, tt.wantMsg)
		})
	}

	stdout, _, _ := execute(t, "", "show", "t-1")
	assert.Contains(t, stdout, "Total frozen:       00:00:04.500", "rejected edits change nothing")
}

func TestDelete_Freeze(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "delete", "t-1", "1", "--format", "json")
	require.Equal(t, ExitSuccess, code)

	var report fog.Report
	decodeData(t, stdout, &report)
	assert.Equal(t, 1, report.FreezeCount)
	assert.Equal(t, int64(1500), report.TotalFrozenMs)
	require.Len(t, report.Freezes, 1)
	assert.Equal(t, 2, report.Freezes[0].ID, "remaining ids are kept")
}

func TestDelete_Trial(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "delete", "t-2")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Deleted trial t-2 (1 remaining)")

	_, stderr, code := execute(t, "", "delete", "t-2")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "trial t-2 not found")
}

func TestExport_Stdout(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "export", "--out", "-")
	require.Equal(t, ExitSuccess, code)

	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	require.Len(t, lines, 4, "header, two freeze rows, one blank-freeze row")
	assert.True(t, strings.HasPrefix(lines[0], "Patient ID,Task,"))
	assert.True(t, strings.HasPrefix(lines[1], `"P-1","OFF - Turn 360 - Trial 1",09:00:00.000,09:00:20.000,`))
	assert.True(t, strings.HasSuffix(lines[3], ",,,,,,,"))
}

func TestExport_GeneratedFile(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "export", "--patient", "P-1", "--format", "json")
	require.Equal(t, ExitSuccess, code)

	var res exportResult
	decodeData(t, stdout, &res)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, "exports", filepath.Dir(res.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(res.Path), "FoG_P-1_"))
	assert.True(t, strings.HasSuffix(res.Path, ".csv"))

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestExport_ExplicitFileAndUnknownTrial(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	stdout, _, code := execute(t, "", "export", "--trial", "t-2", "--out", filepath.Join("out", "t2.csv"))
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Exported 1 rows to out/t2.csv")
	assert.FileExists(t, filepath.Join("out", "t2.csv"))

	_, stderr, code := execute(t, "", "export", "--trial", "t-9")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "trial t-9 not found")
}

func TestClear(t *testing.T) {
	setupWorkspace(t)
	seedArchive(t, standardTrials()...)

	_, stderr, code := execute(t, "", "clear")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "without --yes")

	stdout, _, code := execute(t, "", "clear", "--yes")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Removed 2 trials")

	stdout, _, _ = execute(t, "", "list")
	assert.Contains(t, stdout, "No trials recorded.")
}

func TestProtocolValidate(t *testing.T) {
	setupWorkspace(t)
	require.NoError(t, os.WriteFile("clinic.cue", []byte(`name: "Clinic"
conditions: ["OFF", "ON"]
tasks: ["TUG", "Doorway"]
trials_per_task: 2
`), 0o644))
	require.NoError(t, os.WriteFile("dup.cue", []byte(`name: "Dup"
conditions: ["OFF", "OFF"]
tasks: ["TUG"]
`), 0o644))

	stdout, _, code := execute(t, "", "protocol", "validate", "clinic.cue")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Clinic")
	assert.Contains(t, stdout, "Trials in total:  8")

	stdout, _, code = execute(t, "", "protocol", "validate", "dup.cue", "--format", "json")
	assert.Equal(t, ExitFailure, code)
	resp := decodeResponse(t, stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeProtocol, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, `duplicate condition "OFF"`)

	_, _, code = execute(t, "", "protocol", "validate", "missing.cue")
	assert.Equal(t, ExitCommandError, code)
}

func TestProtocolLabels(t *testing.T) {
	stdout, _, code := execute(t, "", "protocol", "labels")
	require.Equal(t, ExitSuccess, code)

	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	require.Len(t, lines, 24)
	assert.Equal(t, "OFF - Gait Initiation - Trial 1", lines[0])
	assert.Equal(t, "OFF - Gait Initiation - Trial 2", lines[1])
	assert.Equal(t, "ON - Dual Task Walk - Trial 3", lines[23])
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	scenarios, err := filepath.Abs(filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err)
	golden, err := filepath.Abs(filepath.Join("..", "harness", "testdata", "golden"))
	require.NoError(t, err)

	stdout, _, code := execute(t, "", "test", scenarios, "--golden", golden)
	assert.Equal(t, ExitSuccess, code, stdout)
	assert.Contains(t, stdout, "Test Summary: 3 passed, 0 failed, 3 total")

	stdout, _, code = execute(t, "", "test", scenarios, "--filter", "grade_*", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var result TestResult
	decodeData(t, stdout, &result)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Passed)
}

func TestTestCommand_FailingScenario(t *testing.T) {
	setupWorkspace(t)
	require.NoError(t, os.WriteFile("wrong.yaml", []byte(`name: wrong grade
description: Expects the wrong cumulative grade
trials:
  - patient: P-1
    label: Hallway
    steps:
      - {at: 1000, do: press}
      - {at: 4000, do: release}
      - {at: 10000, do: stop}
    expect:
      cumulative_grade: 0
`), 0o644))

	stdout, _, code := execute(t, "", "test", "wrong.yaml")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "✗ wrong grade")
	assert.Contains(t, stdout, "cumulative_grade: expected 0, got 2")

	stdout, _, code = execute(t, "", "test", "wrong.yaml", "--format", "json")
	assert.Equal(t, ExitFailure, code)
	resp := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, 1, strings.Count(stdout, `"status"`), "one envelope only")
}

func TestTestCommand_UpdateGolden(t *testing.T) {
	setupWorkspace(t)
	require.NoError(t, os.WriteFile("short.yaml", []byte(`name: short
description: One trial without freezes
trials:
  - patient: P-1
    label: Hallway
    steps:
      - {at: 500, do: stop}
`), 0o644))

	_, _, code := execute(t, "", "test", "short.yaml", "--update")
	assert.Equal(t, ExitCommandError, code)

	_, _, code = execute(t, "", "test", "short.yaml", "--golden", "golden", "--update")
	require.Equal(t, ExitSuccess, code)
	data, err := os.ReadFile(filepath.Join("golden", "short.golden"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Patient ID,"))

	_, _, code = execute(t, "", "test", "short.yaml", "--golden", "golden")
	assert.Equal(t, ExitSuccess, code)

	require.NoError(t, os.WriteFile(filepath.Join("golden", "short.golden"), []byte("stale\n"), 0o644))
	stdout, _, code := execute(t, "", "test", "short.yaml", "--golden", "golden")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "does not match golden file")
}

func TestTestCommand_MissingPath(t *testing.T) {
	_, stderr, code := execute(t, "", "test", "/nonexistent/scenarios")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "scenario path not found")
}

func TestRun_ConsoleFromStdin(t *testing.T) {
	setupWorkspace(t)

	script := strings.Join([]string{
		"start P-7",
		"press",
		"release",
		"stop",
		"start",
		"status",
		"quit",
	}, "\n")
	stdout, _, code := execute(t, script, "run", "--console")
	require.Equal(t, ExitSuccess, code, stdout)
	assert.Contains(t, stdout, "started: P-7, OFF - Gait Initiation - Trial 1")
	assert.Contains(t, stdout, "Freeze 1 off:")
	assert.Contains(t, stdout, "started: P-7, OFF - Gait Initiation - Trial 2")
	assert.Contains(t, stdout, "Stopping running trial.")

	stdout, _, code = execute(t, "", "list", "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var rows []summary
	decodeData(t, stdout, &rows)
	require.Len(t, rows, 2, "the trial running at quit is archived")
	assert.Equal(t, 1, rows[0].FreezeCount)
	assert.Equal(t, trial.TaskLabel("OFF", "Gait Initiation", 2).String(), rows[1].Label)
}
