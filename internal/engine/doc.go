// Package engine implements the trial state machine.
//
// A Session owns exactly one trial at a time and moves through three states:
//
//	Idle --Start--> Running --Stop--> Stopped --Start--> Running ...
//
// ARCHITECTURE:
//
// Single control thread:
// Presentation layers (the TUI, the line console) call Session methods from
// their own loop. Session serializes calls with a mutex so snapshot reads
// from a render loop are safe, but the design assumes one operator issuing
// one intent at a time.
//
// Wall-clock timing:
// Every duration of record is derived from Clock.NowMillis() minus the trial
// start timestamp at the moment of the intent. The elapsed-time ticker is a
// display aid only: it reads the clock and the immutable start timestamp and
// never accumulates time. Stop cancels the ticker and waits for its goroutine
// to exit, so no tick is delivered after Stop returns.
//
// Fan-out at stop:
// Stop force-closes a held freeze at the trial end, classifies the trial
// (package fog), and appends it to the archive. Edits made after Stop go
// through the archive so the persisted log and the on-screen report agree.
//
// Change notification:
// Every mutating call emits an Event to subscribers after the mutation is
// applied. Listeners run on the caller's goroutine and must not block.
package engine
