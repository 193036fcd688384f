package log

import (
	"time"

	"github.com/google/uuid"
)

// Session stamps events with the common fields of one node run.
// A nil *Session is valid and drops everything.
type Session struct {
	logger Logger
	id     string
	devEUI string
	now    func() time.Time
}

// NewSession creates a Session with a fresh UUID. A nil logger is replaced
// by NoopLogger.
func NewSession(logger Logger, devEUI string) *Session {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Session{
		logger: logger,
		id:     uuid.New().String(),
		devEUI: devEUI,
		now:    time.Now,
	}
}

// ID returns the session UUID.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Log fills Timestamp, SessionID and DevEUI (when unset) and forwards the
// event.
func (s *Session) Log(event Event) {
	if s == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if event.SessionID == "" {
		event.SessionID = s.id
	}
	if event.DevEUI == "" {
		event.DevEUI = s.devEUI
	}
	s.logger.Log(event)
}

// Compile-time interface satisfaction check.
var _ Logger = (*Session)(nil)
