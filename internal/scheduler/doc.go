// Package scheduler runs a pipeline repeatedly on a fixed frequency.
//
// # How It Works
//
// The scheduler is a single-threaded event loop over a time-ordered queue of
// pending ticks. Exactly one tick runs at a time, so pipeline runs never
// overlap:
//  1. Pop the earliest tick and wait until its deadline (Waiting).
//  2. Execute one full pipeline run (Running). A failure is logged and
//     counted; it never escapes the loop.
//  3. Compute the next tick and arm it, or stop when the sample cap is met.
//
// # Next-Tick Computation
//
// The next anchor is always the previous scheduled time plus the frequency,
// never "now plus frequency", so run duration does not cause drift. When a
// run overran and the anchor already passed, the tick is missed: the missed
// counter grows by exactly one and a single catch-up run is armed
// immediately, however many periods were skipped.
//
// # Lifecycle
//
//	Idle -> Waiting -> Running -> Waiting
//	                          \-> Stopped
//
// Stopped is reached only when a sample cap is configured and that many
// runs passed. Without a cap, Run returns only when its context is
// cancelled, and cancellation is observed only while waiting between ticks.
package scheduler
