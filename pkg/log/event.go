package log

import (
	"time"
)

// Event represents one captured node event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the node run (UUID).
	SessionID string `cbor:"2,keyasint"`

	// DevEUI of the device that produced the event.
	DevEUI string `cbor:"3,keyasint,omitempty"`

	// Direction indicates radio direction for frame, join and uplink events.
	Direction Direction `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Join        *JoinEvent        `cbor:"11,keyasint,omitempty"`
	Backoff     *BackoffEvent     `cbor:"12,keyasint,omitempty"`
	Uplink      *UplinkEvent      `cbor:"13,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"14,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"`
}

// Direction indicates the direction of radio traffic.
type Direction uint8

const (
	// DirectionNone is used for events without radio traffic.
	DirectionNone Direction = 0
	// DirectionUp indicates device to network.
	DirectionUp Direction = 1
	// DirectionDown indicates network to device.
	DirectionDown Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "NONE"
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryJoin indicates a join attempt and its outcome.
	CategoryJoin Category = 0
	// CategoryBackoff indicates a wait between join attempts.
	CategoryBackoff Category = 1
	// CategoryUplink indicates an uplink tick.
	CategoryUplink Category = 2
	// CategoryState indicates a state change.
	CategoryState Category = 3
	// CategoryFrame indicates raw frame bytes from a MAC implementation.
	CategoryFrame Category = 4
	// CategoryError indicates an error event.
	CategoryError Category = 5
)

// Categories lists all categories in display order.
func Categories() []Category {
	return []Category{CategoryJoin, CategoryBackoff, CategoryUplink, CategoryState, CategoryFrame, CategoryError}
}

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryJoin:
		return "JOIN"
	case CategoryBackoff:
		return "BACKOFF"
	case CategoryUplink:
		return "UPLINK"
	case CategoryState:
		return "STATE"
	case CategoryFrame:
		return "FRAME"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw PHYPayload bytes.
type FrameEvent struct {
	// MType is the LoRaWAN message type from the MHDR.
	MType uint8 `cbor:"1,keyasint"`

	// Size is the frame size in bytes.
	Size int `cbor:"2,keyasint"`

	// Data is the raw frame (may be truncated).
	Data []byte `cbor:"3,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"4,keyasint,omitempty"`
}

// JoinEvent captures one join attempt.
type JoinEvent struct {
	// Attempt is the 1-based attempt number.
	Attempt uint32 `cbor:"1,keyasint"`

	// Retries is the retry count when the attempt was made.
	Retries uint32 `cbor:"2,keyasint"`

	// Response is the JoinResponse name, or empty on transport error.
	Response string `cbor:"3,keyasint,omitempty"`

	// Detail carries the transport error text.
	Detail string `cbor:"4,keyasint,omitempty"`

	// Duration is how long the attempt took. Stored as nanoseconds.
	Duration time.Duration `cbor:"5,keyasint,omitempty"`
}

// Succeeded reports whether the attempt joined the network.
func (j *JoinEvent) Succeeded() bool {
	return j != nil && j.Response == "JOIN_SUCCESS"
}

// BackoffEvent captures a wait between join attempts.
type BackoffEvent struct {
	// Retries is the retry count the delay was computed for.
	Retries uint32 `cbor:"1,keyasint"`

	// Delay is the jittered wait.
	Delay time.Duration `cbor:"2,keyasint"`

	// BaseSeconds is the unjittered delay.
	BaseSeconds uint32 `cbor:"3,keyasint"`

	// JitterSeconds is the jitter span.
	JitterSeconds uint32 `cbor:"4,keyasint"`
}

// UplinkEvent captures one uplink tick.
type UplinkEvent struct {
	// Tick is the 1-based scheduler tick.
	Tick uint64 `cbor:"1,keyasint"`

	// Port is the application port.
	Port uint8 `cbor:"2,keyasint"`

	// Confirmed is true for confirmed uplinks.
	Confirmed bool `cbor:"3,keyasint,omitempty"`

	// Size is the payload size in bytes.
	Size int `cbor:"4,keyasint"`

	// Payload is the application payload.
	Payload []byte `cbor:"5,keyasint,omitempty"`

	// Sent is true when the MAC accepted the uplink.
	Sent bool `cbor:"6,keyasint"`

	// Detail carries the failure text.
	Detail string `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures node lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityJoin indicates a join state change.
	StateEntityJoin StateEntity = 0
	// StateEntityNode indicates a node phase change.
	StateEntityNode StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityJoin:
		return "JOIN"
	case StateEntityNode:
		return "NODE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors outside join and uplink outcomes.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
