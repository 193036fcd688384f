// Package clock provides the timer primitive used for backoff and uplink
// interval waits.
//
// Waits are context-aware: Sleep returns ctx.Err() as soon as the context is
// cancelled, so a supervisor can stop the join or uplink loop between (or
// during) waits. Real uses the monotonic clock via time.Timer; Fake advances
// virtual time instantly and records every wait for tests.
package clock
