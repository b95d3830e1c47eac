// Package harness runs scripted trials against the real trial engine.
//
// A scenario is a YAML file describing one or more trials: who the patient
// is, what the task label is, and a timeline of operator intents (press,
// release, hold, stop, and post-hoc edit/delete) at fixed offsets from the
// trial start. The harness drives an engine.Session with a manual clock, an
// in-memory SQLite archive and sequential trial ids, so every run of a
// scenario produces byte-identical reports and CSV exports.
//
// Example:
//
//	name: single_long_freeze
//	description: One 2.5 s freeze in a 10 s walk
//	trials:
//	  - patient: P-001
//	    label: 10m walk
//	    steps:
//	      - {at: 1000, do: press}
//	      - {at: 3500, do: release}
//	      - {at: 10000, do: stop}
//	    expect:
//	      freeze_count: 1
//	      cumulative_grade: 2
//	      frequency_grade: 2
//
// Expectations are subset matches: only the fields a scenario names are
// checked. RunWithGolden additionally compares the CSV export against
// testdata/golden/<name>.golden.
package harness
