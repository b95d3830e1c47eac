// Package protocol loads the trial protocol catalog.
//
// A protocol lists the clinical conditions (e.g. medication OFF/ON), the
// provocation tasks performed under each condition, and how many trials of
// each task are recorded. Protocols are written in CUE and checked against
// the embedded #Protocol schema:
//
//	name: "Standard FoG provocation"
//	conditions: ["OFF", "ON"]
//	tasks: ["Gait Initiation", "Turn 360", "Doorway"]
//	trials_per_task: 3
//
// A Protocol implements trial.LabelValidator: structured labels must name a
// known condition and task, and a trial number within trials_per_task. Free
// text labels are always accepted.
//
// Next walks the catalog in recording order (trial number, then task, then
// condition) so the operator does not retype labels between trials.
//
// Thread-safety: a loaded Protocol is immutable and safe for concurrent use.
package protocol
