// Package scheduler triggers recurring jobs from cron or interval specs and
// runs them in-process.
//
// Each schedule carries its own RunState, so a trigger that fires while the
// previous run of the same schedule is still in flight is skipped rather than
// queued. Runs get a per-schedule timeout, panic recovery and a bounded
// history for diagnostics.
package scheduler
