// Package backoff computes the delay between LoRaWAN join attempts.
//
// # Schedule
//
// The base delay ramps linearly with the number of failed attempts and is
// capped at one hour:
//
//	base   = min(10 + 10*retries, 3600) seconds
//	jitter = base / 5
//	delay  = (base - jitter) + random(jitter ..= 2*jitter)
//
// The jitter is one-sided: delay always lies in [base, base+jitter], so a
// device never retries sooner than the unjittered base. Spreading retries
// this way keeps a fleet that lost power together from re-joining in lock
// step.
//
// # Determinism
//
// A delay consumes exactly one draw from the Source. Given the same retry
// count and the same draw, the delay is the same.
package backoff
