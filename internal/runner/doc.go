// Package runner implements the sequential activation runner.
//
// A run emits Index(0) .. Index(M-1) with a fixed pause after each step and
// finishes with Done. The runner is a small state machine:
//
//	Idle --Start--> Running --Start--> CancelRequested
//	  ^                |                     |
//	  +----- Done -----+---------------------+
//
// Cancellation is cooperative: it is checked once per step, before the step
// is emitted.
package runner
