package log

// Logger is the interface applications implement to receive node events.
// Pass nil or NoopLogger to disable event capture.
type Logger interface {
	// Log records an event. Implementations must be thread-safe and fast;
	// the node's join and uplink loops call Log inline.
	Log(event Event)
}

// NoopLogger discards all events. Use when capture is disabled.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
