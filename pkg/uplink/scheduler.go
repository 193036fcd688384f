package uplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loranode/loranode-go/pkg/clock"
	"github.com/loranode/loranode-go/pkg/log"
	"github.com/loranode/loranode-go/pkg/lorawan"
)

// Default configuration values.
const (
	DefaultInterval = 60 * time.Second
	DefaultPort     = 1
)

// Scheduler errors.
var (
	ErrNoMAC           = errors.New("uplink: MAC is required")
	ErrNoSource        = errors.New("uplink: payload source is required")
	ErrInvalidInterval = errors.New("uplink: interval must be positive")
	ErrInvalidMaxBytes = errors.New("uplink: max payload bytes must not be negative")
	ErrPayloadSource   = errors.New("uplink: payload source failed")
	ErrSendFailed      = errors.New("uplink: send failed")
)

// Config configures a Scheduler.
type Config struct {
	// Interval is the wait between ticks. Defaults to DefaultInterval.
	Interval time.Duration

	// Port is the application port (1..223). Defaults to DefaultPort.
	Port uint8

	// Confirmed requests confirmed uplinks.
	Confirmed bool

	// MaxPayload bounds payload size in bytes. Zero disables the check.
	MaxPayload int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:   DefaultInterval,
		Port:       DefaultPort,
		MaxPayload: lorawan.DefaultMaxPayloadBytes,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if !lorawan.ValidPort(c.Port) {
		return fmt.Errorf("uplink: %w: %d", lorawan.ErrInvalidPort, c.Port)
	}
	if c.MaxPayload < 0 {
		return ErrInvalidMaxBytes
	}
	return nil
}

// Result is the outcome of one tick.
type Result struct {
	Tick    uint64
	At      time.Time
	Message lorawan.UplinkMessage
	Sent    bool
	Err     error

	// Dropped is set when no message was built, so nothing reached the MAC.
	Dropped bool
}

// Stats are cumulative scheduler counters.
type Stats struct {
	Ticks     uint64
	Sent      uint64
	Failed    uint64
	Dropped   uint64
	LastTick  time.Time
	LastError string
}

// Scheduler sends one uplink per tick.
type Scheduler struct {
	mu    sync.RWMutex
	stats Stats

	config Config
	mac    lorawan.MAC
	source PayloadSource
	clock  clock.Clock
	logger *slog.Logger
	events log.Logger

	onTick func(Result)
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithClock sets the clock used for interval waits.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithEvents sets the event logger.
func WithEvents(l log.Logger) Option {
	return func(s *Scheduler) { s.events = l }
}

// New creates a Scheduler. Zero Interval and Port take their defaults.
func New(mac lorawan.MAC, source PayloadSource, config Config, opts ...Option) (*Scheduler, error) {
	if mac == nil {
		return nil, ErrNoMAC
	}
	if source == nil {
		return nil, ErrNoSource
	}
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		config: config,
		mac:    mac,
		source: source,
		clock:  clock.Real{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		events: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config {
	return s.config
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// OnTick sets a callback invoked after every tick.
func (s *Scheduler) OnTick(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = fn
}

// Run ticks, then waits the interval, until ctx is cancelled.
// It always returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Uplink scheduler started", "interval", s.config.Interval, "port", s.config.Port)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Tick(ctx)
		if err := s.clock.Sleep(ctx, s.config.Interval); err != nil {
			return err
		}
	}
}

// Tick builds and sends one uplink. Failures are reported in the Result and
// counted; the message is not retried.
func (s *Scheduler) Tick(ctx context.Context) Result {
	s.mu.Lock()
	s.stats.Ticks++
	res := Result{Tick: s.stats.Ticks, At: s.clock.Now()}
	s.stats.LastTick = res.At
	s.mu.Unlock()

	payload, err := s.source.Payload(ctx)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrPayloadSource, err)
		return s.finish(res, true)
	}

	msg, err := lorawan.NewUplinkMessage(payload, s.config.Port, s.config.Confirmed, s.config.MaxPayload)
	if err != nil {
		res.Err = err
		return s.finish(res, true)
	}
	res.Message = msg

	if err := s.mac.Send(ctx, msg.Payload, msg.Port, msg.Confirmed); err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrSendFailed, err)
		return s.finish(res, false)
	}

	res.Sent = true
	return s.finish(res, false)
}

func (s *Scheduler) finish(res Result, dropped bool) Result {
	res.Dropped = dropped

	s.mu.Lock()
	switch {
	case res.Sent:
		s.stats.Sent++
	case dropped:
		s.stats.Dropped++
	default:
		s.stats.Failed++
	}
	if res.Err != nil {
		s.stats.LastError = res.Err.Error()
	}
	onTick := s.onTick
	s.mu.Unlock()

	event := &log.UplinkEvent{
		Tick:      res.Tick,
		Port:      s.config.Port,
		Confirmed: s.config.Confirmed,
		Size:      len(res.Message.Payload),
		Payload:   res.Message.Payload,
		Sent:      res.Sent,
	}

	if res.Sent {
		s.logger.Info("Uplink sent", "tick", res.Tick, "bytes", len(res.Message.Payload), "port", res.Message.Port)
	} else {
		event.Detail = res.Err.Error()
		if dropped {
			s.logger.Warn("Uplink dropped", "tick", res.Tick, "error", res.Err)
		} else {
			s.logger.Error("Failed to send uplink", "tick", res.Tick, "error", res.Err)
		}
	}

	s.events.Log(log.Event{
		Direction: log.DirectionUp,
		Category:  log.CategoryUplink,
		Uplink:    event,
	})

	if onTick != nil {
		onTick(res)
	}
	return res
}
