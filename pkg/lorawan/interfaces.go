package lorawan

import (
	"context"
	"errors"
)

// JoinResponse is the outcome of a join attempt that completed at the MAC
// level. Transport failures are reported as errors instead.
type JoinResponse uint8

const (
	// JoinSuccess means a valid JoinAccept was received and a session derived.
	JoinSuccess JoinResponse = iota

	// JoinRejected means the network explicitly refused the request.
	JoinRejected

	// NoJoinAccept means both receive windows closed without a JoinAccept.
	NoJoinAccept
)

// String returns the response name.
func (r JoinResponse) String() string {
	switch r {
	case JoinSuccess:
		return "JOIN_SUCCESS"
	case JoinRejected:
		return "JOIN_REJECTED"
	case NoJoinAccept:
		return "NO_JOIN_ACCEPT"
	default:
		return "UNKNOWN"
	}
}

// ErrTransport is the base error for radio or MAC transport failures.
// MAC implementations wrap it so callers can tell transport errors apart
// from context cancellation.
var ErrTransport = errors.New("transport error")

// MAC is the LoRaWAN MAC/radio facade consumed by the device core.
// Both calls may block for an implementation-defined time and must honour
// ctx. Implementations need not be safe for concurrent use: the node keeps
// at most one call in flight.
type MAC interface {
	// Join performs one OTAA join attempt.
	Join(ctx context.Context, creds Credentials) (JoinResponse, error)

	// Send transmits one uplink on the given application port.
	Send(ctx context.Context, payload []byte, port uint8, confirmed bool) error
}
