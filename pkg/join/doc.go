// Package join drives OTAA join attempts until the network accepts the
// device.
//
// # State Machine
//
//	NOT_JOINED --(JoinSuccess)--> JOINED
//
// Every other outcome - an explicit rejection, a missing JoinAccept or a
// transport error - is retryable and handled identically: compute the
// backoff delay for the current retry count, wait, increment the count and
// try again. Nothing is fatal and there is no retry limit; a device that
// cannot join keeps trying roughly once an hour once the backoff is capped.
//
// JOINED is terminal. Once reached, Step and Run return immediately without
// touching the MAC.
//
// # Driving the Loop
//
// Step performs exactly one iteration so a supervisor or test can drive the
// coordinator and stop between attempts. Run loops Step until JOINED. Both
// stop early only when the context is cancelled.
package join
