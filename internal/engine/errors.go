package engine

import "errors"

// ErrNotRunning is returned by Stop when no trial is running.
var ErrNotRunning = errors.New("no trial is running")

// ErrNoTrial is returned by freeze edits when the session has no current or
// last-stopped trial.
var ErrNoTrial = errors.New("no trial to edit")
