// Package scheduler drives periodic work (the dispatch loop) on a cron or
// fixed-interval cadence.
//
// Every registered schedule runs through a cron chain that recovers panics and
// skips a trigger while the previous run of the same schedule is still in
// flight, so invocations never overlap within one process.
package scheduler
