// Package trial provides the data model for timed Freezing of Gait trials.
//
// This package contains the trial and freeze-episode types, the freeze
// interval tracker, and the time formatting shared by reports and exports.
// It imports nothing internal; classification lives in package fog and
// lifecycle control in package engine.
//
// Key design constraints:
//   - All times are int64 milliseconds (epoch for timestamps, trial-relative for offsets)
//   - Derived statistics are computed on demand and never stored
//   - Freeze ids are unique within a trial and never reused
//   - All JSON tags use snake_case
package trial
