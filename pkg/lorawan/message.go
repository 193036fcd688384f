package lorawan

import (
	"errors"
	"fmt"
)

// Application port range.
const (
	MinAppPort uint8 = 1
	MaxAppPort uint8 = 223
)

// DefaultMaxPayloadBytes is the largest payload accepted by default.
const DefaultMaxPayloadBytes = 64

// Uplink message errors.
var (
	ErrInvalidPort     = errors.New("port outside application range 1..223")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
)

// ValidPort reports whether port is in the application range.
func ValidPort(port uint8) bool {
	return port >= MinAppPort && port <= MaxAppPort
}

// UplinkMessage is a single application payload submitted to the MAC.
// It is built fresh on every scheduler tick and not retained afterwards.
type UplinkMessage struct {
	Payload   []byte
	Port      uint8
	Confirmed bool
}

// NewUplinkMessage validates the port and payload size and copies payload.
func NewUplinkMessage(payload []byte, port uint8, confirmed bool, maxPayload int) (UplinkMessage, error) {
	if !ValidPort(port) {
		return UplinkMessage{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if maxPayload > 0 && len(payload) > maxPayload {
		return UplinkMessage{}, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), maxPayload)
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	return UplinkMessage{Payload: p, Port: port, Confirmed: confirmed}, nil
}
