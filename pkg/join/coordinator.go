package join

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/loranode/loranode-go/pkg/backoff"
	"github.com/loranode/loranode-go/pkg/clock"
	"github.com/loranode/loranode-go/pkg/log"
	"github.com/loranode/loranode-go/pkg/lorawan"
)

// Coordinator errors.
var (
	ErrNoMAC = errors.New("join: MAC is required")
)

// State is the join state.
type State uint8

const (
	// StateNotJoined indicates no session with the network yet.
	StateNotJoined State = iota

	// StateJoined indicates a JoinAccept was received. Terminal.
	StateJoined
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotJoined:
		return "NOT_JOINED"
	case StateJoined:
		return "JOINED"
	default:
		return "UNKNOWN"
	}
}

// Attempt describes one completed join attempt.
type Attempt struct {
	// Number is the 1-based attempt number.
	Number uint32

	// Retries is the retry count at the time of the attempt.
	Retries uint32

	// Response is the MAC-level outcome. Only meaningful when Err is nil.
	Response lorawan.JoinResponse

	// Err is the transport error, if any.
	Err error

	// Duration is how long the MAC took to resolve the attempt.
	Duration time.Duration
}

// Succeeded reports whether the attempt joined the network.
func (a Attempt) Succeeded() bool {
	return a.Err == nil && a.Response == lorawan.JoinSuccess
}

// Outcome returns the response name, or TRANSPORT_ERROR.
func (a Attempt) Outcome() string {
	if a.Err != nil {
		return "TRANSPORT_ERROR"
	}
	return a.Response.String()
}

// Config configures a Coordinator.
type Config struct {
	// Credentials are presented unchanged on every attempt.
	Credentials lorawan.Credentials

	// MAC performs the join attempts. Required.
	MAC lorawan.MAC

	// Clock is used for backoff waits. Defaults to clock.Real.
	Clock clock.Clock

	// Backoff supplies retry delays. Defaults to a time-seeded generator.
	Backoff *backoff.Generator

	// Logger receives diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger

	// Events receives node events. Defaults to log.NoopLogger.
	Events log.Logger
}

// Coordinator owns the retry counter and the join state.
// Step and Run must be called from a single goroutine; the accessors are
// safe to call from any goroutine.
type Coordinator struct {
	mu sync.RWMutex

	state       State
	retries     uint32
	attempts    uint32
	joinedAt    time.Time
	lastAttempt *Attempt

	creds   lorawan.Credentials
	mac     lorawan.MAC
	clock   clock.Clock
	backoff *backoff.Generator
	logger  *slog.Logger
	events  log.Logger

	// Callbacks
	onStateChange func(oldState, newState State)
	onAttempt     func(Attempt)
	onRetry       func(retries uint32, delay time.Duration)
}

// New creates a Coordinator in StateNotJoined with zero retries.
func New(cfg Config) (*Coordinator, error) {
	if cfg.MAC == nil {
		return nil, ErrNoMAC
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Events == nil {
		cfg.Events = log.NoopLogger{}
	}

	return &Coordinator{
		state:   StateNotJoined,
		creds:   cfg.Credentials,
		mac:     cfg.MAC,
		clock:   cfg.Clock,
		backoff: cfg.Backoff,
		logger:  cfg.Logger,
		events:  cfg.Events,
	}, nil
}

// State returns the current join state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Retries returns the number of failed attempts whose backoff wait has
// completed.
func (c *Coordinator) Retries() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retries
}

// Attempts returns the number of join attempts made.
func (c *Coordinator) Attempts() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// JoinedAt returns when the join succeeded, or the zero time.
func (c *Coordinator) JoinedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joinedAt
}

// LastAttempt returns the most recent attempt, if any.
func (c *Coordinator) LastAttempt() (Attempt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastAttempt == nil {
		return Attempt{}, false
	}
	return *c.lastAttempt, true
}

// Run calls Step until the device is joined. It returns nil once joined and
// ctx.Err() if cancelled first.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		state, err := c.Step(ctx)
		if err != nil {
			return err
		}
		if state == StateJoined {
			return nil
		}
	}
}

// Step performs one join attempt and, on failure, the backoff wait that
// follows it. The returned error is non-nil only when ctx was cancelled.
func (c *Coordinator) Step(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.state == StateJoined {
		c.mu.Unlock()
		return StateJoined, nil
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return StateNotJoined, err
	}
	c.attempts++
	attempt := Attempt{Number: c.attempts, Retries: c.retries}
	c.mu.Unlock()

	start := c.clock.Now()
	attempt.Response, attempt.Err = c.mac.Join(ctx, c.creds)
	attempt.Duration = c.clock.Now().Sub(start)

	// A join aborted by cancellation is not a failed attempt.
	if attempt.Err != nil && ctx.Err() != nil {
		return StateNotJoined, ctx.Err()
	}

	c.recordAttempt(attempt)

	if attempt.Succeeded() {
		c.setJoined()
		return StateJoined, nil
	}

	delay := c.backoff.Delay(attempt.Retries)
	c.recordBackoff(attempt.Retries, delay)

	if err := c.clock.Sleep(ctx, delay); err != nil {
		return StateNotJoined, err
	}

	c.mu.Lock()
	if c.retries < math.MaxUint32 {
		c.retries++
	}
	c.mu.Unlock()

	return StateNotJoined, nil
}

func (c *Coordinator) recordAttempt(a Attempt) {
	c.mu.Lock()
	c.lastAttempt = &a
	onAttempt := c.onAttempt
	c.mu.Unlock()

	event := &log.JoinEvent{
		Attempt:  a.Number,
		Retries:  a.Retries,
		Duration: a.Duration,
	}

	switch {
	case a.Err != nil:
		event.Detail = a.Err.Error()
		c.logger.Error("Join failed with error", "attempt", a.Number, "error", a.Err)
	case a.Response == lorawan.JoinSuccess:
		event.Response = a.Response.String()
		c.logger.Info("LoRaWAN network joined", "attempt", a.Number, "retries", a.Retries)
	default:
		event.Response = a.Response.String()
		c.logger.Error("Join response was not success", "attempt", a.Number, "response", a.Response)
		if a.Response == lorawan.NoJoinAccept {
			c.logger.Error("No join accept received - check RX windows, gateway downlink, or network server response")
		}
	}

	c.events.Log(log.Event{
		Direction: log.DirectionUp,
		Category:  log.CategoryJoin,
		Join:      event,
	})

	if onAttempt != nil {
		onAttempt(a)
	}
}

func (c *Coordinator) recordBackoff(retries uint32, delay time.Duration) {
	w := backoff.WindowFor(retries)

	c.logger.Info(fmt.Sprintf("Retrying join in %d seconds..", int64(delay/time.Second)),
		"retries", retries, "base_s", w.Base, "jitter_s", w.JitterSpan)

	c.events.Log(log.Event{
		Category: log.CategoryBackoff,
		Backoff: &log.BackoffEvent{
			Retries:       retries,
			Delay:         delay,
			BaseSeconds:   w.Base,
			JitterSeconds: w.JitterSpan,
		},
	})

	c.mu.RLock()
	onRetry := c.onRetry
	c.mu.RUnlock()
	if onRetry != nil {
		onRetry(retries, delay)
	}
}

func (c *Coordinator) setJoined() {
	c.mu.Lock()
	oldState := c.state
	c.state = StateJoined
	c.joinedAt = c.clock.Now()
	onStateChange := c.onStateChange
	c.mu.Unlock()

	c.events.Log(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityJoin,
			OldState: oldState.String(),
			NewState: StateJoined.String(),
			Reason:   lorawan.JoinSuccess.String(),
		},
	})

	if onStateChange != nil {
		onStateChange(oldState, StateJoined)
	}
}

// OnStateChange sets a callback for state changes.
func (c *Coordinator) OnStateChange(fn func(oldState, newState State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnAttempt sets a callback invoked after every join attempt.
func (c *Coordinator) OnAttempt(fn func(Attempt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAttempt = fn
}

// OnRetry sets a callback invoked before each backoff wait.
func (c *Coordinator) OnRetry(fn func(retries uint32, delay time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRetry = fn
}
