package uplink

import "context"

// DefaultGreeting is the default static payload.
const DefaultGreeting = "Hello from nRF52840!"

// PayloadSource produces the payload for one uplink.
type PayloadSource interface {
	Payload(ctx context.Context) ([]byte, error)
}

// PayloadFunc adapts a function to PayloadSource.
type PayloadFunc func(ctx context.Context) ([]byte, error)

// Payload calls f.
func (f PayloadFunc) Payload(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// StaticPayload returns the same bytes on every tick.
type StaticPayload []byte

// Payload returns a copy of the static bytes.
func (s StaticPayload) Payload(context.Context) ([]byte, error) {
	out := make([]byte, len(s))
	copy(out, s)
	return out, nil
}

// Compile-time interface satisfaction checks.
var (
	_ PayloadSource = PayloadFunc(nil)
	_ PayloadSource = StaticPayload(nil)
)
